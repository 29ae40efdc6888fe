// Package capture reads raw Mode-S frames from TCP feeds in AVR format
// (the dump1090 "raw output" port): one frame per line, framed as
// *<hex>; — and keeps each connection alive with reconnect.
package capture

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const reconnectDelay = 5 * time.Second

// Frame is one captured raw frame.
type Frame struct {
	Source    string
	Hex       string
	Timestamp time.Time
}

// Capture maintains connections to raw-frame feeds and delivers frames on
// a channel.
type Capture struct {
	sources   []string
	logger    *logrus.Logger
	frameChan chan Frame
	stopChan  chan struct{}
	wg        sync.WaitGroup

	mu    sync.Mutex
	conns map[string]net.Conn
}

// New creates a capture for the given host:port sources.
func New(sources []string, logger *logrus.Logger) *Capture {
	return &Capture{
		sources:   sources,
		logger:    logger,
		frameChan: make(chan Frame, 1000),
		stopChan:  make(chan struct{}),
		conns:     make(map[string]net.Conn),
	}
}

// Start begins reading from all sources.
func (c *Capture) Start() {
	for _, source := range c.sources {
		c.wg.Add(1)
		go c.readSource(source)
	}
}

// Stop closes all connections and waits for the readers to finish. The
// frame channel is closed once everything has drained.
func (c *Capture) Stop() {
	close(c.stopChan)
	c.mu.Lock()
	for _, conn := range c.conns {
		conn.Close()
	}
	c.mu.Unlock()
	c.wg.Wait()
	close(c.frameChan)
}

// Frames returns the channel frames are delivered on.
func (c *Capture) Frames() <-chan Frame {
	return c.frameChan
}

func (c *Capture) readSource(source string) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		conn, err := net.DialTimeout("tcp", source, 10*time.Second)
		if err != nil {
			c.logger.WithError(err).Warnf("connect to %s failed, retrying in %s", source, reconnectDelay)
			select {
			case <-c.stopChan:
				return
			case <-time.After(reconnectDelay):
				continue
			}
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.SetKeepAlive(true)
			_ = tcpConn.SetKeepAlivePeriod(2 * time.Second)
			_ = tcpConn.SetNoDelay(true)
		}

		c.mu.Lock()
		c.conns[source] = conn
		c.mu.Unlock()
		c.logger.Infof("connected to %s", source)

		c.readLines(source, conn)

		c.mu.Lock()
		delete(c.conns, source)
		c.mu.Unlock()
		conn.Close()

		select {
		case <-c.stopChan:
			return
		default:
			c.logger.Warnf("connection to %s lost, reconnecting", source)
		}
	}
}

func (c *Capture) readLines(source string, conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		hex, ok := ParseAVRLine(scanner.Text())
		if !ok {
			continue
		}
		frame := Frame{Source: source, Hex: hex, Timestamp: time.Now()}
		select {
		case c.frameChan <- frame:
		case <-c.stopChan:
			return
		default:
			// Channel full: drop rather than stall the feed.
			c.logger.Debug("frame channel full, dropping frame")
		}
	}
}

// ParseAVRLine extracts the hex payload from one feed line. AVR framing
// (*<hex>;) is stripped, including the timestamped variant (@<12 hex
// MLAT counter><hex>;); bare hex lines pass through. Empty lines and
// comments report not-ok; payload validation is the decoder's job.
func ParseAVRLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false
	}
	switch line[0] {
	case '*':
		return strings.TrimSuffix(line[1:], ";"), true
	case '@':
		body := strings.TrimSuffix(line[1:], ";")
		if len(body) <= 12 {
			return "", false
		}
		return body[12:], true
	default:
		return line, true
	}
}
