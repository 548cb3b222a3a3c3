// Package tts turns reply text into audio. The proxy prefers the OpenAI
// speech endpoint and falls back to Amazon Polly when it fails.
package tts

import "context"

// Audio is one synthesized utterance.
type Audio struct {
	Data        []byte
	ContentType string
}

// Synthesizer renders text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*Audio, error)
}
