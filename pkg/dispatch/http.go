package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"socialsync/pkg/transport"
	"socialsync/pkg/wire"
)

// HTTPChannel sends APP_ONLY and EITHER requests as discrete HTTP calls. A
// small sender pool keeps slow calls from serializing the whole drain.
type HTTPChannel struct {
	queue       *transport.QueueManager
	client      *http.Client
	endpoint    string
	creds       Credentials
	sessionFn   SessionFunc
	workerCount int

	wake chan struct{}
	jobs chan *transport.Request
}

func NewHTTPChannel(queue *transport.QueueManager, endpoint string, creds Credentials, sessionFn SessionFunc, workerCount int, timeout time.Duration) *HTTPChannel {
	if workerCount < 1 {
		workerCount = 1
	}
	c := &HTTPChannel{
		queue:       queue,
		client:      &http.Client{Timeout: timeout},
		endpoint:    endpoint,
		creds:       creds,
		sessionFn:   sessionFn,
		workerCount: workerCount,
		wake:        make(chan struct{}, 1),
		jobs:        make(chan *transport.Request, 100),
	}
	queue.OnQueueChanged(c.Wake)
	return c
}

// Wake nudges the drain loop.
func (c *HTTPChannel) Wake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Run starts the sender workers and the drain loop. Blocks until the
// context is cancelled; on exit the channel's in-flight requests are
// cleared so no caller waits on a dead channel.
func (c *HTTPChannel) Run(ctx context.Context) {
	slog.Info("Starting channel", "component", "HTTPChannel",
		"endpoint", c.endpoint, "workers", c.workerCount)

	var wg sync.WaitGroup
	for i := 0; i < c.workerCount; i++ {
		wg.Add(1)
		go c.worker(ctx, i, &wg)
	}

	ticker := time.NewTicker(drainTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Context cancelled, shutting down", "component", "HTTPChannel")
			wg.Wait()
			c.queue.ClearActive(transport.ChannelHTTP, true)
			return
		case <-c.wake:
			c.drain(ctx)
		case <-ticker.C:
			c.drain(ctx)
		}
	}
}

// drain hands every eligible pending request to the sender pool. The claim
// marks requests active atomically so neither a second drain nor the RPG
// channel can pick them up again.
func (c *HTTPChannel) drain(ctx context.Context) {
	for _, req := range c.queue.ClaimPending(transport.ChannelHTTP) {
		select {
		case c.jobs <- req:
		case <-ctx.Done():
			return
		}
	}
}

func (c *HTTPChannel) worker(ctx context.Context, id int, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.jobs:
			c.send(ctx, req)
		}
	}
}

func (c *HTTPChannel) send(ctx context.Context, req *transport.Request) {
	payload := encodeRequest(req, c.creds, c.sessionFn())

	outcome, err := c.post(ctx, req, payload)
	if req.FireAndForget {
		// No response is awaited; drop tracking as soon as transmitted.
		c.queue.Discard(req.ID())
		return
	}
	if err != nil {
		slog.Warn("HTTP call failed", "component", "HTTPChannel",
			"request_id", req.ID(), "operation", req.Operation, "error", err)
		c.queue.Publish(&transport.Outcome{
			RequestID: req.ID(),
			Kind:      transport.OutcomeServerError,
			Items: []transport.Item{{
				Kind: transport.PayloadServerError,
				Err:  &transport.ServerError{Code: "TRANSPORT_FAILED", Message: err.Error()},
			}},
		})
		return
	}
	c.queue.Publish(outcome)
}

func (c *HTTPChannel) post(ctx context.Context, req *transport.Request, payload []byte) (*transport.Outcome, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<24))
	if err != nil {
		return nil, err
	}
	return wire.DecodeOutcome(req.ID(), body)
}
