package recognition

import (
	"fmt"
	"math"

	"github.com/blacktop/tuneid/internal/engine"
)

const bytesPerSample = 4 // float32

// PackPCM turns one caller-supplied span of interleaved float32 samples into
// the buffer the recognition engine consumes. The samples slice is copied;
// the caller's buffer is never retained past the call.
//
// An empty chunk (no samples, zero frames, or zero channels) is a documented
// no-op that returns (nil, nil): there is nothing to feed, which commonly
// happens during stream startup and teardown and is not an error.
func PackPCM(samples []float32, frameCount, channelCount int, sampleRate float64) (*engine.PCMBuffer, error) {
	if len(samples) == 0 || frameCount <= 0 || channelCount <= 0 {
		return nil, nil
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %v", ErrFormat, sampleRate)
	}
	if frameCount > (math.MaxInt/bytesPerSample)/channelCount {
		return nil, fmt.Errorf("%w: %d frames x %d channels", ErrAllocation, frameCount, channelCount)
	}

	need := frameCount * channelCount
	if len(samples) < need {
		return nil, fmt.Errorf("%w: frame data was not aligned with channel count (%d samples, need %d)",
			ErrFormat, len(samples), need)
	}

	data := make([]float32, need)
	copy(data, samples[:need])

	return &engine.PCMBuffer{
		Format: engine.Format{
			SampleRate: sampleRate,
			Channels:   channelCount,
		},
		FrameCount: frameCount,
		Data:       data,
		ByteLength: need * bytesPerSample,
	}, nil
}
