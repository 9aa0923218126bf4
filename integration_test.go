package main

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacktop/tuneid/internal/engine"
	"github.com/blacktop/tuneid/internal/engine/enginetest"
	"github.com/blacktop/tuneid/internal/history"
	"github.com/blacktop/tuneid/internal/identify"
	"github.com/blacktop/tuneid/internal/recognition"
)

// TestRecognitionPipeline runs the whole stack below the speaker: a fake
// playback loop feeds PCM through the identify manager into the session
// bridge, the fake engine reports a match, and the track lands in history.
func TestRecognitionPipeline(t *testing.T) {
	eng := &enginetest.Fake{}
	reg := recognition.NewRegistry(eng)
	defer reg.Shutdown()

	store, err := history.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	mgr, err := identify.New(reg, store, time.Minute)
	require.NoError(t, err)
	defer mgr.Close()

	require.NoError(t, mgr.IdentifyNow(&identify.SourceMetadata{Title: "NTS 1"}))

	// Simulated decoder loop: 20 stereo chunks.
	chunk := make([]float32, 2048)
	for i := range chunk {
		chunk[i] = float32(i%7) * 0.01
	}
	for range 20 {
		mgr.IngestAudio(chunk, 2, 44100)
	}

	sub := eng.Last()
	require.NotNil(t, sub)
	require.Equal(t, 20, sub.FedCount())
	assert.Equal(t, 1024, sub.Fed()[0].FrameCount)
	assert.Equal(t, 2048*4, sub.Fed()[0].ByteLength)

	artist := "Massive Attack"
	sub.FireMatch(engine.Match{Title: "Teardrop", Artist: &artist})

	var ev identify.Event
	select {
	case ev = <-mgr.Results():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for recognition result")
	}
	assert.Equal(t, "match", ev.Kind)

	tracks, err := store.List()
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Teardrop", tracks[0].Title)

	// The attempt is finished; stragglers from the decoder are no-ops.
	mgr.IngestAudio(chunk, 2, 44100)
	assert.Equal(t, 20, sub.FedCount())
}

// TestBridgeHandleContract exercises the C-shaped six-operation surface as
// an embedding process would drive it.
func TestBridgeHandleContract(t *testing.T) {
	eng := &enginetest.Fake{}
	reg := recognition.NewRegistry(eng)
	defer reg.Shutdown()

	// create with no callback: no handle, non-empty message.
	h, err := reg.Create(nil, nil)
	require.Error(t, err)
	assert.NotEmpty(t, err.Error())
	assert.Zero(t, h)

	var calls atomic.Int32
	h, err = reg.Create(func(recognition.Result, any) { calls.Add(1) }, nil)
	require.NoError(t, err)

	// feed before start: success, nothing delivered.
	require.NoError(t, reg.Feed(h, []float32{0, 0}, 1, 2, 44100))

	require.NoError(t, reg.Start(h))
	require.NoError(t, reg.Feed(h, []float32{0, 0}, 1, 2, 44100))

	// zero-length feed: success, state unchanged.
	require.NoError(t, reg.Feed(h, nil, 0, 0, 44100))
	assert.Equal(t, 1, eng.Last().FedCount())

	eng.Last().FireNoMatch()
	assert.Equal(t, int32(1), calls.Load())

	reg.Stop(h)
	reg.Stop(h)
	reg.Destroy(h)
	assert.Equal(t, int32(1), calls.Load())
}

// TestConcurrentFeedStopAndResolve hammers one session from a decoder
// goroutine, a control goroutine, and the engine delegate at once.
func TestConcurrentFeedStopAndResolve(t *testing.T) {
	for round := range 30 {
		t.Run(fmt.Sprintf("round-%d", round), func(t *testing.T) {
			t.Parallel()

			eng := &enginetest.Fake{}
			reg := recognition.NewRegistry(eng)
			defer reg.Shutdown()

			var calls atomic.Int32
			h, err := reg.Create(func(recognition.Result, any) { calls.Add(1) }, nil)
			require.NoError(t, err)
			require.NoError(t, reg.Start(h))
			sub := eng.Last()

			var wg sync.WaitGroup
			wg.Add(3)
			go func() {
				defer wg.Done()
				for range 100 {
					_ = reg.Feed(h, []float32{0.1, 0.2}, 1, 2, 44100)
				}
			}()
			go func() {
				defer wg.Done()
				sub.FireMatch(engine.Match{Title: "racer"})
			}()
			go func() {
				defer wg.Done()
				reg.Stop(h)
			}()
			wg.Wait()

			assert.LessOrEqual(t, calls.Load(), int32(1))
			assert.True(t, sub.Closed())
		})
	}
}
