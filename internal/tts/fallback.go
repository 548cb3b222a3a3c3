package tts

import (
	"context"
	"log"
)

// Fallback tries a primary synthesizer and, when it fails, a secondary one.
// onFallback, if non-nil, is invoked each time the secondary is used.
type Fallback struct {
	primary    Synthesizer
	secondary  Synthesizer
	onFallback func()
}

// NewFallback creates a Fallback over the two synthesizers.
func NewFallback(primary, secondary Synthesizer, onFallback func()) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, onFallback: onFallback}
}

func (f *Fallback) Synthesize(ctx context.Context, text string) (*Audio, error) {
	audio, err := f.primary.Synthesize(ctx, text)
	if err == nil {
		return audio, nil
	}
	log.Printf("[tts] primary synthesizer failed, falling back: %v", err)
	if f.onFallback != nil {
		f.onFallback()
	}
	audio, ferr := f.secondary.Synthesize(ctx, text)
	if ferr != nil {
		// Report the primary failure; it is the one worth fixing.
		return nil, err
	}
	return audio, nil
}
