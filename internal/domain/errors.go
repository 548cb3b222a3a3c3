package domain

import "fmt"

// SessionError reports a credential fetch or parse failure.
type SessionError struct {
	Reason string
	Err    error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session: %s: %v", e.Reason, e.Err)
	}
	return "session: " + e.Reason
}

func (e *SessionError) Unwrap() error { return e.Err }

// SignalingError reports a non-success SDP exchange, carrying the remote
// status and a truncated copy of the body for diagnostics.
type SignalingError struct {
	Status int
	Body   string
}

func (e *SignalingError) Error() string {
	return fmt.Sprintf("signaling: upstream status %d: %s", e.Status, e.Body)
}

// ChannelError reports a data channel that failed to open or closed
// prematurely.
type ChannelError struct {
	Reason string
}

func (e *ChannelError) Error() string { return "channel: " + e.Reason }

// StreamError reports an explicit upstream error event or a non-success
// streaming response.
type StreamError struct {
	Status  int
	Message string
}

func (e *StreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("stream: upstream status %d: %s", e.Status, e.Message)
	}
	return "stream: " + e.Message
}
