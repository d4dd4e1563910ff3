package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"socialsync/pkg/api"
	"socialsync/pkg/config"
	"socialsync/pkg/dispatch"
	"socialsync/pkg/engine"
	"socialsync/pkg/engine/presence"
	"socialsync/pkg/models"
	"socialsync/pkg/session"
	"socialsync/pkg/store"
	"socialsync/pkg/transport"
)

func main() {
	// ══════════════════════════════════════════════════════════════
	// STRUCTURED LOGGING
	// ══════════════════════════════════════════════════════════════
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// ══════════════════════════════════════════════════════════════
	// CONFIGURATION
	// ══════════════════════════════════════════════════════════════
	conf, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("Failed to load conf", "error", err)
		os.Exit(1)
	}
	slog.Info("Config loaded", "http_endpoint", conf.HTTPEndpoint, "rpg_address", conf.RPGAddress)

	// ══════════════════════════════════════════════════════════════
	// LOCAL STORE
	// ══════════════════════════════════════════════════════════════
	st, err := store.Open(conf.DBPath)
	if err != nil {
		slog.Error("Failed to open local store", "error", err)
		os.Exit(1)
	}

	// ══════════════════════════════════════════════════════════════
	// SESSION CONTEXT
	// ══════════════════════════════════════════════════════════════
	var sessionMu sync.RWMutex
	current := &session.Session{}
	if cached, err := st.LoadSession(conf.EncryptionKey); err == nil {
		if cached.Expired(time.Now()) {
			slog.Info("Cached session expired, discarding", "user", cached.UserID)
			if err := st.ClearSession(); err != nil {
				slog.Error("Failed to purge session cache", "error", err)
			}
		} else {
			current = cached
			slog.Info("Session restored from cache", "user", current.UserID)
		}
	}
	sessionFn := func() *session.Session {
		sessionMu.RLock()
		defer sessionMu.RUnlock()
		return current
	}

	// ══════════════════════════════════════════════════════════════
	// TRANSPORT CORE
	// ══════════════════════════════════════════════════════════════
	manager := engine.NewManager()
	dispatcher := engine.NewDispatcher(conf.EventBufferSize)

	var queue *transport.QueueManager
	onSessionInvalid := func() {
		sessionMu.Lock()
		current = &session.Session{}
		sessionMu.Unlock()
		if err := st.ClearSession(); err != nil {
			slog.Error("Failed to purge session cache", "error", err)
		}
		queue.ClearAll()
		dispatcher.Publish(models.Event{Type: models.EventLoggedOut})
	}
	queue = transport.NewQueueManager(onSessionInvalid, manager.Poke)

	// ══════════════════════════════════════════════════════════════
	// CHANNELS
	// ══════════════════════════════════════════════════════════════
	creds := dispatch.Credentials{APIKey: conf.APIKey, APISecret: conf.APISecret}
	httpChannel := dispatch.NewHTTPChannel(queue, conf.HTTPEndpoint, creds, sessionFn,
		conf.HTTPWorkerCount, time.Duration(conf.HTTPTimeoutSeconds)*time.Second)

	var presenceEngine *presence.Engine
	rpgChannel := dispatch.NewRPGChannel(queue, conf.RPGAddress, creds, sessionFn,
		func() { presenceEngine.RequestPresenceList() },
		func() { presenceEngine.OfflineReset() },
	)

	// ══════════════════════════════════════════════════════════════
	// ENGINES
	// ══════════════════════════════════════════════════════════════
	presenceEngine = presence.New(queue, st, dispatcher, rpgChannel.Online, manager.Wake)
	manager.Register(presenceEngine)

	// ══════════════════════════════════════════════════════════════
	// RUN
	// ══════════════════════════════════════════════════════════════
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}
	run(manager.Run)
	run(httpChannel.Run)
	run(rpgChannel.Run)
	run(func(ctx context.Context) {
		queue.Run(ctx, time.Duration(conf.SweepIntervalSeconds)*time.Second)
	})

	if conf.DiagAddress != "" {
		diag := &api.Diag{Queue: queue, Presence: presenceEngine, Online: rpgChannel.Online}
		go func() {
			if err := diag.Serve(conf.DiagAddress); err != nil {
				slog.Error("Diagnostics endpoint failed", "error", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("Shutting down")
	wg.Wait()
}
