package engine

import (
	"encoding/binary"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu        sync.Mutex
	matches   []Match
	noMatches int
	errs      []error
}

func (l *recordingListener) OnMatch(m Match) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.matches = append(l.matches, m)
}

func (l *recordingListener) OnNoMatch() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.noMatches++
}

func (l *recordingListener) OnError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *recordingListener) counts() (int, int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.matches), l.noMatches, len(l.errs)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// recognitionStub is a fake recognition service: it records received binary
// frames and replies with canned JSON messages.
type recognitionStub struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	frames [][]byte
	auth   string

	replies []string
}

func (s *recognitionStub) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.auth = r.Header.Get("Authorization")
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for _, reply := range s.replies {
		if reply == "" {
			// Wait for one audio frame before replying.
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				s.mu.Lock()
				s.frames = append(s.frames, data)
				s.mu.Unlock()
			}
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			return
		}
	}

	// Keep reading until the client closes.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *recognitionStub) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func newStubEngine(t *testing.T, replies ...string) (*Remote, *recognitionStub) {
	t.Helper()
	stub := &recognitionStub{replies: replies}
	srv := httptest.NewServer(http.HandlerFunc(stub.handler))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return NewRemote(RemoteConfig{URL: wsURL, APIKey: "test-key"}), stub
}

func TestRemoteAvailable(t *testing.T) {
	assert.ErrorIs(t, NewRemote(RemoteConfig{}).Available(), ErrUnavailable)
	assert.ErrorIs(t, NewRemote(RemoteConfig{URL: "wss://x"}).Available(), ErrUnavailable)
	assert.ErrorIs(t, NewRemote(RemoteConfig{APIKey: "k"}).Available(), ErrUnavailable)
	assert.NoError(t, NewRemote(RemoteConfig{URL: "wss://x", APIKey: "k"}).Available())
}

func TestRemoteSessionUnavailable(t *testing.T) {
	_, err := NewRemote(RemoteConfig{}).NewSession(&recordingListener{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRemoteFeedAndMatch(t *testing.T) {
	eng, stub := newStubEngine(t,
		"", // consume one audio frame first
		`{"type":"match","title":"Teardrop","artist":"Massive Attack","artwork_url":"https://example.com/a.jpg"}`,
	)
	l := &recordingListener{}

	sess, err := eng.NewSession(l)
	require.NoError(t, err)
	defer sess.Close()

	samples := []float32{0.5, -0.5, 0.25, -0.25}
	require.NoError(t, sess.Feed(&PCMBuffer{
		Format:     Format{SampleRate: 44100, Channels: 2},
		FrameCount: 2,
		Data:       samples,
		ByteLength: len(samples) * 4,
	}))

	waitFor(t, func() bool { m, _, _ := l.counts(); return m == 1 })

	stub.mu.Lock()
	require.Len(t, stub.frames, 1)
	frame := stub.frames[0]
	stub.mu.Unlock()
	require.Len(t, frame, 16)
	for i, want := range samples {
		got := math.Float32frombits(binary.LittleEndian.Uint32(frame[i*4:]))
		assert.Equal(t, want, got)
	}

	require.Len(t, l.matches, 1)
	m := l.matches[0]
	assert.Equal(t, "Teardrop", m.Title)
	require.NotNil(t, m.Artist)
	assert.Equal(t, "Massive Attack", *m.Artist)
	require.NotNil(t, m.ArtworkURL)
	assert.Nil(t, m.PrimaryLink, "absent fields stay nil")

	stub.mu.Lock()
	auth := stub.auth
	stub.mu.Unlock()
	assert.Equal(t, "Token test-key", auth)
}

func TestRemoteNoMatch(t *testing.T) {
	eng, _ := newStubEngine(t, `{"type":"no_match"}`)
	l := &recordingListener{}

	sess, err := eng.NewSession(l)
	require.NoError(t, err)
	defer sess.Close()

	waitFor(t, func() bool { _, n, _ := l.counts(); return n == 1 })
}

func TestRemoteServiceError(t *testing.T) {
	eng, _ := newStubEngine(t, `{"type":"error","message":"no network"}`)
	l := &recordingListener{}

	sess, err := eng.NewSession(l)
	require.NoError(t, err)
	defer sess.Close()

	waitFor(t, func() bool { _, _, e := l.counts(); return e == 1 })
	assert.EqualError(t, l.errs[0], "no network")
}

func TestRemoteDeliversAtMostOnce(t *testing.T) {
	eng, _ := newStubEngine(t,
		`{"type":"match","title":"Once"}`,
		`{"type":"match","title":"Twice"}`,
		`{"type":"no_match"}`,
	)
	l := &recordingListener{}

	sess, err := eng.NewSession(l)
	require.NoError(t, err)
	defer sess.Close()

	waitFor(t, func() bool { m, _, _ := l.counts(); return m == 1 })
	time.Sleep(100 * time.Millisecond)

	matches, noMatches, errs := l.counts()
	assert.Equal(t, 1, matches)
	assert.Zero(t, noMatches)
	assert.Zero(t, errs)
}

func TestRemoteCloseIsIdempotentAndSilencesFeeds(t *testing.T) {
	eng, stub := newStubEngine(t)
	l := &recordingListener{}

	sess, err := eng.NewSession(l)
	require.NoError(t, err)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())

	// Feeding after close is a benign no-op, shutdown races are expected.
	require.NoError(t, sess.Feed(&PCMBuffer{
		Format:     Format{SampleRate: 44100, Channels: 1},
		FrameCount: 1,
		Data:       []float32{0.1},
		ByteLength: 4,
	}))
	assert.Zero(t, stub.frameCount())

	// The dropped connection must not surface as an error event.
	time.Sleep(100 * time.Millisecond)
	_, _, errs := l.counts()
	assert.Zero(t, errs)
}
