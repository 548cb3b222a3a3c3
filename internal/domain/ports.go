package domain

import "context"

// SessionFetcher retrieves short-lived credentials from the session endpoint.
type SessionFetcher interface {
	FetchSession(ctx context.Context) (*Session, error)
}

// Signaler performs the SDP offer/answer exchange with the remote endpoint.
type Signaler interface {
	Exchange(ctx context.Context, offerSDP string, sess *Session) (answerSDP string, err error)
}

// Channel is the open bidirectional transport used to exchange events after
// negotiation succeeds. Outbound values are JSON-encoded text frames.
type Channel interface {
	Send(v any) error
	Close() error
}

// Peer manages one underlying connection attempt: local description creation,
// candidate gathering and the event channel lifecycle.
type Peer interface {
	CreateOffer() error
	LocalDescription() string
	SetRemoteDescription(answerSDP string) error
	GatheringComplete() <-chan struct{}
	ChannelOpen() <-chan struct{}
	ChannelClosed() <-chan struct{}
	Channel() Channel
	Close()
}
