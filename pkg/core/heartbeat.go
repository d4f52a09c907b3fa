package core

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jllopis/gestalt/pkg/errors"
	"github.com/jllopis/gestalt/pkg/integrity"
	"github.com/jllopis/gestalt/pkg/resilience"
)

// heartbeatBody is the outbound presence report.
type heartbeatBody struct {
	Identity    string             `json:"identity"`
	Anchor      string             `json:"anchor"`
	Version     string             `json:"version"`
	Generation  string             `json:"generation"`
	Tick        uint64             `json:"tick"`
	Fingerprint string             `json:"fingerprint"`
	Grains      []string           `json:"grains"`
	Emotions    map[string]float64 `json:"emotions"`
}

// heartbeatLoop posts a presence report every interval. Delivery is
// best-effort with bounded retries; failures are logged and counted, never
// fatal, and the next period always tries again.
func (c *AgentCore) heartbeatLoop(ctx context.Context) {
	defer c.wg.Done()

	interval := c.cfg.Heartbeat.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if err := c.sendHeartbeat(ctx); err != nil {
				c.metrics.RecordHeartbeatFailure(ctx)
				c.logger.Warn("heartbeat delivery failed", "url", c.cfg.Heartbeat.URL, "error", err)
			}
		}
	}
}

func (c *AgentCore) sendHeartbeat(ctx context.Context) error {
	body, err := json.Marshal(heartbeatBody{
		Identity:    c.cfg.Identity.Name,
		Anchor:      c.cfg.Identity.Anchor,
		Version:     c.Version(),
		Generation:  c.Generation().ID,
		Tick:        c.state.Tick(),
		Fingerprint: integrity.Fingerprint(c.surface()),
		Grains:      c.Grains(),
		Emotions:    c.state.Emotions(),
	})
	if err != nil {
		return errors.New(errors.CodeInternal, "marshal heartbeat", err)
	}

	timeout := c.cfg.Heartbeat.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	retry := resilience.DefaultRetryConfig().
		WithInitialDelay(500 * time.Millisecond).
		WithMaxDelay(5 * time.Second)
	return retry.Do(ctx, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.Heartbeat.URL, bytes.NewReader(body))
		if err != nil {
			return errors.New(errors.CodeInvalidInput, "build heartbeat request", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return errors.New(errors.CodeExternalFault, "post heartbeat", err).
				WithRecoverable(true)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return errors.New(errors.CodeExternalFault, "heartbeat rejected", nil).
				WithContext("status", resp.StatusCode).
				WithRecoverable(resp.StatusCode >= 500)
		}
		return nil
	})
}
