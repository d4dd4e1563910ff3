// Package api exposes a local diagnostics endpoint: queue depths, engine
// state and connectivity, for debugging a device in the field.
package api

import (
	"log/slog"
	"net/http"

	"socialsync/pkg/engine/presence"
	"socialsync/pkg/transport"

	"github.com/gin-gonic/gin"
)

// Diag aggregates the introspection points the status endpoint reports on.
type Diag struct {
	Queue    *transport.QueueManager
	Presence *presence.Engine
	Online   func() bool
}

// Router builds the gin engine serving the diagnostics routes.
func (d *Diag) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/status", d.statusHandler)

	return r
}

// Serve blocks serving the diagnostics API.
func (d *Diag) Serve(addr string) error {
	slog.Info("Serving diagnostics", "component", "DiagAPI", "addr", addr)
	return d.Router().Run(addr)
}

func (d *Diag) statusHandler(c *gin.Context) {
	requests, responses := d.Queue.Depths()

	state := "idle"
	if d.Presence.State() == presence.StateBatchProcessing {
		state = "batch_processing"
	}

	c.JSON(http.StatusOK, gin.H{
		"online": d.Online(),
		"queues": gin.H{
			"requests":  requests,
			"responses": responses,
		},
		"presence": gin.H{
			"state":         state,
			"pending_batch": d.Presence.PendingBatch(),
		},
	})
}
