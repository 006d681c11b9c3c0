// Package relay bridges a client's live audio socket to a streaming
// speech-recognition session and relays accepted transcript fragments
// back to the client while appending them to the transcript store.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/interviewd/internal/audio"
	"github.com/obiente/interviewd/internal/deepgram"
	"github.com/obiente/interviewd/internal/store"
	"github.com/obiente/interviewd/internal/transcript"
)

const (
	readTimeout = 60 * time.Second
	stopTimeout = 10 * time.Second
	closeGrace  = time.Second
)

// Provider is an open streaming recognition session.
type Provider interface {
	SendAudio(chunk []byte) error
	KeepAlive() error
	Finish() error
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens a new provider session for one client connection.
type Dialer func(ctx context.Context) (Provider, error)

// Store is the subset of the transcript store the relay writes to.
type Store interface {
	GetSession(ctx context.Context, id int64) (*store.Session, error)
	AppendFragment(ctx context.Context, sessionID int64, f transcript.Fragment) (int64, error)
}

type Server struct {
	store     Store
	dial      Dialer
	keepAlive time.Duration
	expect    *audio.Expect
	upgrader  websocket.Upgrader
}

// NewServer returns a relay. keepAlive <= 0 disables provider keepalives.
func NewServer(st Store, dial Dialer, keepAlive time.Duration) *Server {
	return &Server{
		store:     st,
		dial:      dial,
		keepAlive: keepAlive,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024 * 16,
			WriteBufferSize: 1024 * 16,
		},
	}
}

// ExpectFormat enables checking the first audio chunk of every connection
// against the format the provider sessions are opened for. Disagreements
// are logged and reported to the client as a warning message.
func (s *Server) ExpectFormat(e audio.Expect) {
	s.expect = &e
}

// conn is one relayed client connection.
type conn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	provider  Provider
	sessionID int64
	stopping  atomic.Bool

	// providerGone is set before the client is told the provider side
	// ended; failed additionally means the session must be torn down.
	providerGone atomic.Bool
	failed       atomic.Bool
	log          zerolog.Logger
}

func (c *conn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *conn) closeWith(code int, reason string) {
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

// Handle serves GET /ws/transcribe?session_id=<id>.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(r.URL.Query().Get("session_id"), 10, 64)
	if err != nil {
		http.Error(w, "session_id required", http.StatusBadRequest)
		return
	}
	if _, err := s.store.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Int64("session_id", sessionID).Msg("relay: session lookup failed")
		http.Error(w, "session lookup failed", http.StatusInternalServerError)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer ws.Close()

	c := &conn{
		ws:        ws,
		sessionID: sessionID,
		log:       log.With().Str("conn_id", uuid.NewString()).Int64("session_id", sessionID).Logger(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, err := s.dial(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("relay: provider connection failed")
		c.closeWith(websocket.CloseInternalServerErr, "transcription provider unavailable")
		return
	}
	c.provider = provider
	c.log.Info().Msg("relay: session started")

	providerDone := make(chan struct{})
	go func() {
		defer close(providerDone)
		s.pumpResults(c)
	}()
	if s.keepAlive > 0 {
		go s.pumpKeepAlive(ctx, c, providerDone)
	}

	stopped := s.pumpAudio(c)

	if stopped {
		select {
		case <-providerDone:
		case <-time.After(stopTimeout):
			c.log.Warn().Msg("relay: provider did not close after stop")
		}
	}
	cancel()
	_ = provider.Close()
	<-providerDone

	if stopped && !c.failed.Load() {
		_ = c.writeJSON(map[string]any{"type": "stopped"})
		c.closeWith(websocket.CloseNormalClosure, "")
	}
	c.log.Info().Bool("stopped", stopped).Bool("failed", c.failed.Load()).Msg("relay: session closed")
}

// pumpAudio forwards client audio to the provider until the client goes
// away, asks to stop (returns true) or the provider side has closed.
func (s *Server) pumpAudio(c *conn) bool {
	_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(readTimeout)) })

	probed := false
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Msg("relay: client closed")
			} else {
				c.log.Warn().Err(err).Msg("ws read error")
			}
			return false
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))

		if c.failed.Load() {
			return false
		}
		if c.providerGone.Load() {
			// Outbound side is gone; drop whatever the client still sends.
			continue
		}

		switch mt {
		case websocket.BinaryMessage:
			if !probed {
				probed = true
				f := audio.Probe(data)
				c.log.Info().
					Str("container", f.Container).
					Int("sample_rate", f.SampleRate).
					Int("channels", f.Channels).
					Int("bit_depth", f.BitDepth).
					Msg("relay: first audio chunk")
				if s.expect != nil {
					if m := f.Mismatches(*s.expect); len(m) > 0 {
						c.log.Warn().Strs("mismatch", m).Msg("relay: audio format disagrees with provider session")
						_ = c.writeJSON(map[string]any{"type": "warning", "detail": strings.Join(m, "; ")})
					}
				}
			}
			if err := c.provider.SendAudio(data); err != nil {
				c.log.Warn().Err(err).Msg("relay: forward to provider failed")
				return false
			}
		case websocket.TextMessage:
			var msg struct {
				Type string `json:"type"`
				TS   any    `json:"ts,omitempty"`
			}
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = c.writeJSON(map[string]any{"type": "error", "detail": "invalid json"})
				continue
			}
			switch msg.Type {
			case "ping":
				_ = c.writeJSON(map[string]any{"type": "pong", "ts": msg.TS})
			case "stop":
				c.stopping.Store(true)
				if err := c.provider.Finish(); err != nil {
					c.log.Warn().Err(err).Msg("relay: provider finish failed")
				}
				return true
			default:
				_ = c.writeJSON(map[string]any{"type": "error", "detail": "unknown message type"})
			}
		}
	}
}

// pumpResults relays provider events to the client in arrival order.
func (s *Server) pumpResults(c *conn) {
	for {
		data, err := c.provider.ReadMessage()
		if err != nil {
			c.log.Debug().Err(err).Msg("relay: provider stream ended")
			c.providerGone.Store(true)
			if !c.stopping.Load() {
				c.closeWith(websocket.CloseGoingAway, "transcription provider closed")
			}
			return
		}

		frag, ok, err := deepgram.ParseResult(data)
		if err != nil {
			c.log.Warn().Err(err).Str("payload", truncate(data, 256)).Msg("relay: dropping provider event")
			continue
		}
		if !ok {
			continue
		}

		if _, err := s.store.AppendFragment(context.Background(), c.sessionID, frag); err != nil {
			// The client must never see a fragment extraction cannot.
			c.log.Error().Err(err).Msg("relay: append fragment failed, closing session")
			c.failed.Store(true)
			c.providerGone.Store(true)
			c.closeWith(websocket.CloseInternalServerErr, "transcript store unavailable")
			_ = c.ws.SetReadDeadline(time.Now().Add(closeGrace))
			return
		}
		if err := c.writeJSON(frag); err != nil {
			c.log.Debug().Err(err).Msg("relay: client write failed")
		}
	}
}

func (s *Server) pumpKeepAlive(ctx context.Context, c *conn, providerDone <-chan struct{}) {
	t := time.NewTicker(s.keepAlive)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-providerDone:
			return
		case <-t.C:
			if err := c.provider.KeepAlive(); err != nil {
				c.log.Debug().Err(err).Msg("relay: keepalive failed")
				return
			}
		}
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
