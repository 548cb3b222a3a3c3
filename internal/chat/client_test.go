package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aegisvoice/voicebridge/internal/domain"
	"github.com/aegisvoice/voicebridge/internal/events"
)

func TestStream_PostsHistoryAndDecodes(t *testing.T) {
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"type\":\"response.output_text.delta\",\"delta\":\"Hi\"}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	history := []domain.Turn{
		{Role: domain.RoleSystem, Content: "be brief"},
		{Role: domain.RoleUser, Content: "hello"},
	}

	var got []events.StreamEvent
	err := NewClient(srv.URL).Stream(context.Background(), history, func(ev events.StreamEvent) error {
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if len(gotBody.Messages) != 2 || gotBody.Messages[1].Content != "hello" {
		t.Errorf("relayed messages = %+v", gotBody.Messages)
	}
	if len(got) != 1 || got[0].Kind != events.KindTextDelta || got[0].Delta != "Hi" {
		t.Errorf("events = %+v", got)
	}
}

func TestStream_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Stream(context.Background(), nil, func(events.StreamEvent) error {
		t.Error("no events expected")
		return nil
	})

	var se *domain.StreamError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want StreamError", err)
	}
	if se.Status != http.StatusBadGateway {
		t.Errorf("status = %d", se.Status)
	}
}

func TestStream_CallbackErrorStopsStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data: {\"type\":\"response.output_text.delta\",\"delta\":\"a\"}\n\n"))
		w.Write([]byte("data: {\"type\":\"response.output_text.delta\",\"delta\":\"b\"}\n\n"))
	}))
	defer srv.Close()

	stop := errors.New("stop")
	calls := 0
	err := NewClient(srv.URL).Stream(context.Background(), nil, func(events.StreamEvent) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("error = %v, want %v", err, stop)
	}
	if calls != 1 {
		t.Errorf("callback calls = %d, want 1", calls)
	}
}
