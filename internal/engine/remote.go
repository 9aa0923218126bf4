package engine

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// ErrUnavailable is returned by Available when the remote engine has no
// endpoint or credentials configured. Callers map this onto their own
// capability error.
var ErrUnavailable = errors.New("recognition engine endpoint is not configured")

const remoteHandshakeTimeout = 10 * time.Second

// RemoteConfig holds connection settings for the remote recognition service.
type RemoteConfig struct {
	URL        string // wss:// endpoint
	APIKey     string
	SampleRate float64 // e.g. 44100
	Channels   int     // e.g. 1 or 2
}

// Remote streams PCM to a fingerprinting service over a websocket and
// reports the service's verdict through the session listener.
type Remote struct {
	cfg RemoteConfig
}

// NewRemote creates a websocket-backed engine.
func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 44100
	}
	if cfg.Channels == 0 {
		cfg.Channels = 2
	}
	return &Remote{cfg: cfg}
}

// Available reports ErrUnavailable when the endpoint is not configured.
func (r *Remote) Available() error {
	if r.cfg.URL == "" || r.cfg.APIKey == "" {
		return ErrUnavailable
	}
	return nil
}

// NewSession dials the service and starts the response reader.
func (r *Remote) NewSession(l Listener) (Session, error) {
	if err := r.Available(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s?encoding=float32&sample_rate=%d&channels=%d",
		r.cfg.URL, int(r.cfg.SampleRate), r.cfg.Channels)

	header := http.Header{}
	header.Set("Authorization", "Token "+r.cfg.APIKey)

	dialer := websocket.Dialer{HandshakeTimeout: remoteHandshakeTimeout}
	conn, _, err := dialer.Dial(url, header)
	if err != nil {
		return nil, fmt.Errorf("recognition service connection failed: %w", err)
	}

	s := &remoteSession{
		conn:     conn,
		listener: l,
		done:     make(chan struct{}),
	}
	go s.readResponses()

	log.Debug("Connected to recognition service", "url", r.cfg.URL)
	return s, nil
}

type remoteSession struct {
	conn     *websocket.Conn
	listener Listener

	mu        sync.Mutex
	closed    bool
	delivered bool
	done      chan struct{}
}

// resultMessage is the service's terminal event.
type resultMessage struct {
	Type          string  `json:"type"` // "match" | "no_match" | "error"
	Title         string  `json:"title"`
	Artist        *string `json:"artist"`
	ArtworkURL    *string `json:"artwork_url"`
	PrimaryLink   *string `json:"primary_link"`
	SecondaryLink *string `json:"secondary_link"`
	Message       string  `json:"message"`
}

// Feed writes one packed buffer as a binary frame. Feeding a session that
// has already been closed is a benign no-op; shutdown races are expected.
func (s *remoteSession) Feed(buf *PCMBuffer) error {
	if buf == nil || buf.FrameCount == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	frame := make([]byte, buf.ByteLength)
	for i, sample := range buf.Data {
		binary.LittleEndian.PutUint32(frame[i*4:], math.Float32bits(sample))
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("failed to send audio to recognition service: %w", err)
	}
	return nil
}

// Close tears the connection down. Idempotent.
func (s *remoteSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	// Best effort; the service treats an abrupt close the same way.
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}

func (s *remoteSession) readResponses() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if s.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			s.deliver(func(l Listener) { l.OnError(err) })
			return
		}

		var msg resultMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Warn("Discarding malformed recognition service message", "error", err)
			continue
		}

		switch msg.Type {
		case "match":
			title := msg.Title
			if title == "" {
				title = "Unknown Title"
			}
			s.deliver(func(l Listener) {
				l.OnMatch(Match{
					Title:         title,
					Artist:        msg.Artist,
					ArtworkURL:    msg.ArtworkURL,
					PrimaryLink:   msg.PrimaryLink,
					SecondaryLink: msg.SecondaryLink,
				})
			})
			return
		case "no_match":
			s.deliver(func(l Listener) { l.OnNoMatch() })
			return
		case "error":
			text := msg.Message
			if text == "" {
				text = "recognition service reported an unspecified failure"
			}
			s.deliver(func(l Listener) { l.OnError(errors.New(text)) })
			return
		default:
			log.Debug("Ignoring recognition service message", "type", msg.Type)
		}
	}
}

// deliver fires the listener at most once for the life of the session.
func (s *remoteSession) deliver(fire func(Listener)) {
	s.mu.Lock()
	if s.delivered {
		s.mu.Unlock()
		return
	}
	s.delivered = true
	l := s.listener
	s.mu.Unlock()

	if l != nil {
		fire(l)
	}
}

func (s *remoteSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
