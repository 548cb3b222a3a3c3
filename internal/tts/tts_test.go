package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
)

func TestOpenAI_Synthesize(t *testing.T) {
	var gotReq speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte("mp3bytes"))
	}))
	defer srv.Close()

	o := NewOpenAI(srv.URL, "sk-test", "gpt-4o-mini-tts", "alloy")
	audio, err := o.Synthesize(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if gotReq.Model != "gpt-4o-mini-tts" || gotReq.Voice != "alloy" || gotReq.Input != "hello world" {
		t.Errorf("request = %+v", gotReq)
	}
	if gotReq.ResponseFormat != "mp3" {
		t.Errorf("response_format = %q", gotReq.ResponseFormat)
	}
	if string(audio.Data) != "mp3bytes" || audio.ContentType != "audio/mpeg" {
		t.Errorf("audio = %+v", audio)
	}
}

func TestOpenAI_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	o := NewOpenAI(srv.URL, "sk-test", "m", "v")
	_, err := o.Synthesize(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "status 429") {
		t.Errorf("error = %v", err)
	}
}

type fakeSynthClient struct {
	input *polly.SynthesizeSpeechInput
	out   *polly.SynthesizeSpeechOutput
	err   error
}

func (f *fakeSynthClient) SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error) {
	f.input = params
	return f.out, f.err
}

func TestPolly_Synthesize(t *testing.T) {
	ct := "audio/mpeg"
	fake := &fakeSynthClient{out: &polly.SynthesizeSpeechOutput{
		AudioStream: io.NopCloser(bytes.NewReader([]byte("pollymp3"))),
		ContentType: &ct,
	}}
	p := NewPollyWithClient("us-east-1", "Joanna", "neural", fake)

	audio, err := p.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio.Data) != "pollymp3" || audio.ContentType != "audio/mpeg" {
		t.Errorf("audio = %+v", audio)
	}

	if fake.input.Engine != pollytypes.EngineNeural {
		t.Errorf("engine = %v", fake.input.Engine)
	}
	if fake.input.VoiceId != pollytypes.VoiceId("Joanna") {
		t.Errorf("voice = %v", fake.input.VoiceId)
	}
	if fake.input.Text == nil || *fake.input.Text != "hello" {
		t.Errorf("text = %v", fake.input.Text)
	}
}

func TestPolly_DefaultsApplied(t *testing.T) {
	fake := &fakeSynthClient{out: &polly.SynthesizeSpeechOutput{
		AudioStream: io.NopCloser(bytes.NewReader([]byte("x"))),
	}}
	p := NewPollyWithClient("", "", "standard", fake)

	if _, err := p.Synthesize(context.Background(), "hi"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if fake.input.Engine != pollytypes.EngineStandard {
		t.Errorf("engine = %v", fake.input.Engine)
	}
	if fake.input.VoiceId != pollytypes.VoiceId("Joanna") {
		t.Errorf("voice = %v", fake.input.VoiceId)
	}
}

type fakeAPIError struct{ code string }

func (f *fakeAPIError) Error() string                 { return f.code }
func (f *fakeAPIError) ErrorCode() string             { return f.code }
func (f *fakeAPIError) ErrorMessage() string          { return f.code }
func (f *fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

func TestPolly_ClassifiesAPIErrors(t *testing.T) {
	cases := []struct {
		code string
		want string
	}{
		{"TooManyRequestsException", "throttled"},
		{"TextLengthExceededException", "rejected input"},
		{"ServiceFailureException", "service error"},
	}
	for _, tc := range cases {
		fake := &fakeSynthClient{err: &fakeAPIError{code: tc.code}}
		p := NewPollyWithClient("us-east-1", "Joanna", "neural", fake)
		_, err := p.Synthesize(context.Background(), "hi")
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: error = %v, want substring %q", tc.code, err, tc.want)
		}
	}
}

// stubSynth scripts one Synthesizer outcome.
type stubSynth struct {
	audio *Audio
	err   error
	calls int
}

func (s *stubSynth) Synthesize(ctx context.Context, text string) (*Audio, error) {
	s.calls++
	return s.audio, s.err
}

func TestFallback_PrimaryWins(t *testing.T) {
	primary := &stubSynth{audio: &Audio{Data: []byte("a"), ContentType: "audio/mpeg"}}
	secondary := &stubSynth{audio: &Audio{Data: []byte("b"), ContentType: "audio/mpeg"}}
	fellBack := 0
	f := NewFallback(primary, secondary, func() { fellBack++ })

	audio, err := f.Synthesize(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio.Data) != "a" || secondary.calls != 0 || fellBack != 0 {
		t.Errorf("audio = %q, secondary calls = %d, fallbacks = %d", audio.Data, secondary.calls, fellBack)
	}
}

func TestFallback_SecondaryOnPrimaryFailure(t *testing.T) {
	primary := &stubSynth{err: errors.New("quota exceeded")}
	secondary := &stubSynth{audio: &Audio{Data: []byte("b"), ContentType: "audio/mpeg"}}
	fellBack := 0
	f := NewFallback(primary, secondary, func() { fellBack++ })

	audio, err := f.Synthesize(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio.Data) != "b" || fellBack != 1 {
		t.Errorf("audio = %q, fallbacks = %d", audio.Data, fellBack)
	}
}

func TestFallback_BothFailReportsPrimary(t *testing.T) {
	primaryErr := errors.New("primary down")
	primary := &stubSynth{err: primaryErr}
	secondary := &stubSynth{err: errors.New("secondary down")}
	f := NewFallback(primary, secondary, nil)

	_, err := f.Synthesize(context.Background(), "hi")
	if !errors.Is(err, primaryErr) {
		t.Errorf("error = %v, want primary failure", err)
	}
}
