// Package analytics ships named product events to an external sink. Tracking
// is fire-and-forget: a failed or slow sink never blocks or fails the caller.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type Tracker interface {
	Track(event string, userID uint, properties map[string]interface{})
}

// Client posts events to a Segment-style HTTP collector.
type Client struct {
	Endpoint string
	WriteKey string
	logger   *zap.Logger
	http     *http.Client
}

func NewClient(endpoint, writeKey string, logger *zap.Logger) *Client {
	return &Client{
		Endpoint: endpoint,
		WriteKey: writeKey,
		logger:   logger,
		http:     &http.Client{Timeout: 5 * time.Second},
	}
}

type event struct {
	Event      string                 `json:"event"`
	UserID     uint                   `json:"user_id"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

func (c *Client) Track(name string, userID uint, properties map[string]interface{}) {
	ev := event{Event: name, UserID: userID, Properties: properties, Timestamp: time.Now().UTC()}
	go c.send(ev)
}

func (c *Client) send(ev event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	body, _ := json.Marshal(ev)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+"/v1/track", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.WriteKey, "")
	resp, err := c.http.Do(req)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("analytics send failed", zap.String("event", ev.Event), zap.Error(err))
		}
		return
	}
	resp.Body.Close()
}

// Noop discards all events; used when no sink is configured and in tests.
type Noop struct{}

func (Noop) Track(string, uint, map[string]interface{}) {}
