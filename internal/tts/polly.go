package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
)

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Polly synthesizes speech through Amazon Polly. The AWS client is resolved
// lazily on first use so construction never needs credentials.
type Polly struct {
	region string
	voice  string
	engine string

	mu     sync.Mutex
	client synthClient
}

// NewPolly creates a Polly synthesizer. Empty fields fall back to us-east-1,
// Joanna, neural.
func NewPolly(region, voice, engine string) *Polly {
	return NewPollyWithClient(region, voice, engine, nil)
}

// NewPollyWithClient creates a Polly synthesizer over an explicit client.
// Tests inject a fake here.
func NewPollyWithClient(region, voice, engine string, client synthClient) *Polly {
	if strings.TrimSpace(region) == "" {
		region = "us-east-1"
	}
	if strings.TrimSpace(voice) == "" {
		voice = "Joanna"
	}
	if strings.TrimSpace(engine) == "" {
		engine = "neural"
	}
	return &Polly{region: region, voice: voice, engine: engine, client: client}
}

func (p *Polly) Synthesize(ctx context.Context, text string) (*Audio, error) {
	client, err := p.resolveClient(ctx)
	if err != nil {
		return nil, err
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(p.engine, "neural") {
		engine = pollytypes.EngineNeural
	}

	out, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(p.voice),
	})
	if err != nil {
		return nil, classifyPollyError(err)
	}
	if out == nil || out.AudioStream == nil {
		return nil, fmt.Errorf("polly: empty audio stream")
	}
	defer out.AudioStream.Close()

	data, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("polly: read audio stream: %w", err)
	}

	ct := "audio/mpeg"
	if out.ContentType != nil && *out.ContentType != "" {
		ct = *out.ContentType
	}
	return &Audio{Data: data, ContentType: ct}, nil
}

func classifyPollyError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException":
			return fmt.Errorf("polly: throttled: %w", err)
		case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException":
			return fmt.Errorf("polly: rejected input: %w", err)
		default:
			return fmt.Errorf("polly: service error %s: %w", apiErr.ErrorCode(), err)
		}
	}
	return fmt.Errorf("polly: synthesize: %w", err)
}

func (p *Polly) resolveClient(ctx context.Context) (synthClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	p.client = polly.NewFromConfig(awsCfg)
	return p.client, nil
}
