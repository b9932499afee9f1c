// Package wsdevice bridges a microphone gateway over WebSocket. The gateway
// owns the physical input device and enforces exclusivity; this client holds
// one connection per granted stream and delivers the gateway's binary frames
// as PCM chunks in arrival order.
package wsdevice

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obi-sound/obi-core/internal/capture"
	"github.com/obi-sound/obi-core/internal/diaglog"
)

// Config configures the gateway connection.
type Config struct {
	URL            string // ws:// or wss:// endpoint of the microphone gateway
	HandshakeSecs  int    // dial handshake timeout, default 10
	ReadLimitBytes int64  // max frame size, default 1 MiB
}

// Device dials the gateway on each Acquire. It implements capture.Device.
type Device struct {
	cfg    Config
	dialer *websocket.Dialer

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// New creates a Device for the given gateway config.
func New(cfg Config) *Device {
	if cfg.HandshakeSecs <= 0 {
		cfg.HandshakeSecs = 10
	}
	if cfg.ReadLimitBytes <= 0 {
		cfg.ReadLimitBytes = 1 << 20
	}
	return &Device{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: time.Duration(cfg.HandshakeSecs) * time.Second,
		},
	}
}

// SetLogger injects a diaglog.Logger for debug logging.
func (d *Device) SetLogger(l *diaglog.Logger) {
	d.loggerMu.Lock()
	d.logger = l
	d.loggerMu.Unlock()
}

func (d *Device) log(entry diaglog.LogEntry) {
	d.loggerMu.RLock()
	l := d.logger
	d.loggerMu.RUnlock()
	if l == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentDevice
	}
	l.Log(entry)
}

// Acquire dials the gateway and starts the frame reader. A refused handshake
// (gateway down, or 403/409 when the device is held elsewhere) comes back as
// a plain error; the capture session wraps it as ErrDeviceAccessDenied.
func (d *Device) Acquire(ctx context.Context) (capture.Stream, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.cfg.URL, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusConflict) {
			d.log(diaglog.LogEntry{Event: diaglog.EventDeviceDenied, Reason: resp.Status})
			return nil, fmt.Errorf("gateway refused stream: %s", resp.Status)
		}
		d.log(diaglog.LogEntry{Event: diaglog.EventDeviceDenied, Reason: err.Error()})
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	conn.SetReadLimit(d.cfg.ReadLimitBytes)
	d.log(diaglog.LogEntry{Event: diaglog.EventDeviceAcquire, Payload: map[string]interface{}{"url": d.cfg.URL}})

	s := &stream{
		conn:   conn,
		chunks: make(chan []byte, 64),
		dev:    d,
	}
	go s.readFrames()
	return s, nil
}

// stream is one granted gateway connection.
type stream struct {
	conn   *websocket.Conn
	chunks chan []byte
	dev    *Device

	closeOnce sync.Once
}

func (s *stream) Chunks() <-chan []byte { return s.chunks }

// readFrames pumps binary frames into the chunk channel until the
// connection errors or closes. Text frames are gateway keepalives and are
// skipped.
func (s *stream) readFrames() {
	defer close(s.chunks)
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		chunk := make([]byte, len(data))
		copy(chunk, data)
		s.chunks <- chunk
	}
}

// Close releases the gateway stream. Safe to call more than once; only the
// first call sends the close frame.
func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "released"), deadline)
		err = s.conn.Close()
		s.dev.log(diaglog.LogEntry{Event: diaglog.EventDeviceReleased})
	})
	return err
}
