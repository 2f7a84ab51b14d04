// Package wsconn implements the backend transport over gorilla/websocket.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"angelvoice/internal/ports"
)

// CloseAbnormal is reported when the connection ends without a close frame.
const CloseAbnormal = websocket.CloseAbnormalClosure

var ErrClosed = errors.New("websocket connection is closed")

// Config controls websocket dial and write behavior.
type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Headers          http.Header
	Logger           zerolog.Logger
}

// Dialer implements ports.TransportDialer.
type Dialer struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewDialer(cfg Config) *Dialer {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Dialer{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// Dial opens a connection to rawURL. ctx bounds the handshake only.
func (d *Dialer) Dial(ctx context.Context, rawURL string) (ports.TransportConn, error) {
	wsURL := normalizeURL(rawURL)
	conn, resp, err := d.dialer.DialContext(ctx, wsURL, d.cfg.Headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to %s: %s: %w", wsURL, resp.Status, err)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}

	s := &session{
		conn:         conn,
		writeTimeout: d.cfg.WriteTimeout,
		log:          d.cfg.Logger.With().Str("component", "wsconn").Str("url", wsURL).Logger(),
		incoming:     make(chan []byte, 64),
		outgoing:     make(chan []byte, 32),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		_ = conn.Close()
		close(s.done)
	}()

	return s, nil
}

type session struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	log          zerolog.Logger

	incoming chan []byte
	outgoing chan []byte
	quit     chan struct{}
	done     chan struct{}

	wg sync.WaitGroup

	quitOnce  sync.Once
	closeOnce sync.Once

	statusMu  sync.Mutex
	status    ports.CloseStatus
	statusSet bool
}

func (s *session) Send(payload []byte) error {
	copied := append([]byte(nil), payload...)
	select {
	case <-s.quit:
		return ErrClosed
	default:
	}
	select {
	case s.outgoing <- copied:
		return nil
	case <-s.quit:
		return ErrClosed
	}
}

func (s *session) Incoming() <-chan []byte {
	return s.incoming
}

func (s *session) Wait() ports.CloseStatus {
	<-s.done
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// Close sends a close frame with code and reason, then tears the connection
// down. Only the first call has any effect.
func (s *session) Close(code int, reason string) error {
	var err error
	s.closeOnce.Do(func() {
		s.setStatus(ports.CloseStatus{Code: code, Reason: reason})
		deadline := time.Now().Add(s.writeTimeout)
		err = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		if errors.Is(err, websocket.ErrCloseSent) {
			err = nil
		}
		s.shutdown()
		_ = s.conn.Close()
	})
	<-s.done
	return err
}

func (s *session) shutdown() {
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *session) setStatus(status ports.CloseStatus) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if s.statusSet {
		return
	}
	s.status = status
	s.statusSet = true
}

func (s *session) readLoop() {
	defer s.wg.Done()
	defer close(s.incoming)
	defer s.shutdown()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setStatus(statusFromError(err))
			s.log.Debug().Err(err).Msg("read loop finished")
			return
		}
		select {
		case s.incoming <- payload:
		case <-s.quit:
			return
		}
	}
}

func (s *session) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case payload := <-s.outgoing:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.setStatus(ports.CloseStatus{Code: CloseAbnormal, Err: fmt.Errorf("failed to send message: %w", err)})
				s.shutdown()
				_ = s.conn.Close()
				return
			}
		case <-s.quit:
			return
		}
	}
}

func statusFromError(err error) ports.CloseStatus {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return ports.CloseStatus{Code: closeErr.Code, Reason: closeErr.Text}
	}
	return ports.CloseStatus{Code: CloseAbnormal, Err: err}
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://")
	}
	return raw
}
