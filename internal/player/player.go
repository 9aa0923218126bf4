// Package player decodes a network audio stream and plays it locally while
// mirroring the decoded PCM to a sample sink for recognition.
package player

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
)

const speakerBufferSize = 250 * time.Millisecond

// Player streams one station at a time.
type Player struct {
	client *http.Client
	sink   SampleSink
}

// New creates a player that forwards decoded samples to sink. A nil sink
// plays audio without the recognition tap.
func New(sink SampleSink) *Player {
	return &Player{
		client: &http.Client{},
		sink:   sink,
	}
}

// Play fetches streamURL, decodes it as MP3 and plays it until the stream
// ends or ctx is cancelled. Blocks for the duration of playback.
func (p *Player) Play(ctx context.Context, streamURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return fmt.Errorf("invalid stream url: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream request failed with status %d", resp.StatusCode)
	}

	streamer, format, err := mp3.Decode(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to decode stream: %w", err)
	}
	defer streamer.Close()

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(speakerBufferSize)); err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}
	defer speaker.Close()

	log.Info("Playing stream", "url", streamURL,
		"sampleRate", format.SampleRate, "channels", format.NumChannels)

	done := make(chan error, 1)
	tapped := newTap(streamer, format, p.sink)
	speaker.Play(beep.Seq(tapped, beep.Callback(func() {
		done <- tapped.Err()
	})))

	select {
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("stream playback failed: %w", err)
		}
		return nil
	}
}
