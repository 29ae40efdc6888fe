// Package natsio moves raw frames over NATS JetStream so capture and
// decoding can run as separate processes.
package natsio

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Stream layout for raw frames.
const (
	StreamRawFrames = "ADSB_RAW"
	SubjectRawFrame = "adsb.frames.raw"
)

// RawFrame is the wire form of one captured frame.
type RawFrame struct {
	Hex       string    `json:"hex"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Client wraps a NATS connection with the raw-frame stream attached.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New connects to NATS and ensures the raw-frame stream exists.
func New(url string) (*Client, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamRawFrames,
		Subjects: []string{SubjectRawFrame},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{conn: nc, js: js}, nil
}

// PublishFrame publishes one raw frame to the stream.
func (c *Client) PublishFrame(frame *RawFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	if _, err := c.js.Publish(SubjectRawFrame, data); err != nil {
		return fmt.Errorf("failed to publish frame: %w", err)
	}
	return nil
}

// SubscribeFrames delivers raw frames to handler. Messages that fail to
// unmarshal are skipped; the stream keeps flowing.
func (c *Client) SubscribeFrames(handler func(*RawFrame)) error {
	_, err := c.js.Subscribe(SubjectRawFrame, func(msg *nats.Msg) {
		var frame RawFrame
		if err := json.Unmarshal(msg.Data, &frame); err != nil {
			return
		}
		handler(&frame)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	return nil
}

// Close closes the NATS connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
