package player

import (
	"github.com/gopxl/beep/v2"
)

// SampleSink receives every decoded block as interleaved float32. The slice
// is reused between calls; implementations must copy anything they keep.
type SampleSink func(samples []float32, channels int, sampleRate float64)

// tap wraps a beep.Streamer and mirrors each decoded block to a sink on its
// way to the speaker. The playback path never waits on the sink beyond the
// interleave copy.
type tap struct {
	streamer beep.Streamer
	format   beep.Format
	sink     SampleSink
	buf      []float32
}

func newTap(streamer beep.Streamer, format beep.Format, sink SampleSink) *tap {
	return &tap{streamer: streamer, format: format, sink: sink}
}

func (t *tap) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = t.streamer.Stream(samples)
	if n == 0 || t.sink == nil {
		return n, ok
	}

	// beep streams stereo float64; recognition wants interleaved float32.
	need := n * 2
	if cap(t.buf) < need {
		t.buf = make([]float32, need)
	}
	out := t.buf[:need]
	for i := 0; i < n; i++ {
		out[i*2] = float32(samples[i][0])
		out[i*2+1] = float32(samples[i][1])
	}
	t.sink(out, 2, float64(t.format.SampleRate))

	return n, ok
}

func (t *tap) Err() error {
	return t.streamer.Err()
}
