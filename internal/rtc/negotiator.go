// Package rtc owns the realtime peer connection lifecycle: local description
// creation, ICE candidate gathering, remote description application and event
// channel establishment.
package rtc

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aegisvoice/voicebridge/internal/domain"
)

// State tracks the negotiation state machine.
type State int

const (
	StateIdle State = iota
	StateFetchingSession
	StateCreatingOffer
	StateGatheringICE
	StateExchangingSDP
	StateAwaitingChannel
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingSession:
		return "fetching-session"
	case StateCreatingOffer:
		return "creating-offer"
	case StateGatheringICE:
		return "gathering-ice"
	case StateExchangingSDP:
		return "exchanging-sdp"
	case StateAwaitingChannel:
		return "awaiting-channel-open"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	// DefaultGatherTimeout bounds the ICE gathering wait. On expiry the
	// attempt proceeds with whatever candidates were gathered; the signaling
	// endpoint can usually complete the handshake host-side.
	DefaultGatherTimeout = 8 * time.Second
	// DefaultOpenTimeout bounds the channel-open wait. On expiry the attempt
	// fails; a channel that never opens cannot carry events.
	DefaultOpenTimeout = 15 * time.Second
)

// PeerFactory allocates one underlying peer for a connection attempt.
type PeerFactory func(onMessage func([]byte)) (domain.Peer, error)

// attempt is one in-flight negotiation. Concurrent callers block on done and
// share the outcome, including the same error instance on failure.
type attempt struct {
	done chan struct{}
	ch   domain.Channel
	err  error
}

// Negotiator establishes the realtime connection and exposes a single
// idempotent EnsureConnected operation. At most one attempt is in flight at a
// time; the current attempt is an explicit slot guarded by the mutex.
type Negotiator struct {
	sessions  domain.SessionFetcher
	signaler  domain.Signaler
	newPeer   PeerFactory
	onMessage func([]byte)

	// GatherTimeout and OpenTimeout default to DefaultGatherTimeout and
	// DefaultOpenTimeout; tests shorten them.
	GatherTimeout time.Duration
	OpenTimeout   time.Duration

	mu      sync.Mutex
	state   State
	current *attempt
	peer    domain.Peer
	closed  <-chan struct{}
}

// NewNegotiator creates a Negotiator. Inbound channel messages from every
// attempt's peer are delivered to onMessage.
func NewNegotiator(sessions domain.SessionFetcher, signaler domain.Signaler, newPeer PeerFactory, onMessage func([]byte)) *Negotiator {
	return &Negotiator{
		sessions:      sessions,
		signaler:      signaler,
		newPeer:       newPeer,
		onMessage:     onMessage,
		GatherTimeout: DefaultGatherTimeout,
		OpenTimeout:   DefaultOpenTimeout,
	}
}

// State reports the current negotiation state.
func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Negotiator) setState(s State) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
	log.Printf("[rtc] state: %s", s)
}

// EnsureConnected returns the open event channel, negotiating a connection if
// none is live. If an attempt is already in flight the caller attaches to it
// and shares its outcome. A call after a failed attempt starts fresh.
func (n *Negotiator) EnsureConnected(ctx context.Context) (domain.Channel, error) {
	n.mu.Lock()

	if n.peer != nil {
		select {
		case <-n.closed:
			// Channel died since the last success; tear down and renegotiate.
			n.peer.Close()
			n.peer = nil
			n.state = StateIdle
		default:
			ch := n.peer.Channel()
			n.mu.Unlock()
			return ch, nil
		}
	}

	if a := n.current; a != nil {
		n.mu.Unlock()
		select {
		case <-a.done:
			return a.ch, a.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	a := &attempt{done: make(chan struct{})}
	n.current = a
	n.mu.Unlock()

	ch, err := n.negotiate(ctx)

	n.mu.Lock()
	n.current = nil
	n.mu.Unlock()

	a.ch, a.err = ch, err
	close(a.done)
	return ch, err
}

// negotiate runs one connection attempt start to finish. A failed attempt
// closes its peer before returning, so no resources leak across retries.
func (n *Negotiator) negotiate(ctx context.Context) (domain.Channel, error) {
	n.setState(StateFetchingSession)
	sess, err := n.sessions.FetchSession(ctx)
	if err != nil {
		n.setState(StateFailed)
		return nil, err
	}

	n.setState(StateCreatingOffer)
	peer, err := n.newPeer(n.onMessage)
	if err != nil {
		n.setState(StateFailed)
		return nil, fmt.Errorf("create peer: %w", err)
	}
	if err := peer.CreateOffer(); err != nil {
		peer.Close()
		n.setState(StateFailed)
		return nil, err
	}

	n.setState(StateGatheringICE)
	gatherTimer := time.NewTimer(n.GatherTimeout)
	select {
	case <-peer.GatheringComplete():
		gatherTimer.Stop()
	case <-gatherTimer.C:
		// Partial candidate sets are acceptable; proceed.
		log.Printf("[rtc] ICE gathering incomplete after %s, proceeding", n.GatherTimeout)
	case <-ctx.Done():
		gatherTimer.Stop()
		peer.Close()
		n.setState(StateFailed)
		return nil, ctx.Err()
	}

	n.setState(StateExchangingSDP)
	answer, err := n.signaler.Exchange(ctx, peer.LocalDescription(), sess)
	if err != nil {
		peer.Close()
		n.setState(StateFailed)
		return nil, err
	}
	if err := peer.SetRemoteDescription(answer); err != nil {
		peer.Close()
		n.setState(StateFailed)
		return nil, &domain.SignalingError{Body: "malformed answer: " + err.Error()}
	}

	n.setState(StateAwaitingChannel)
	openTimer := time.NewTimer(n.OpenTimeout)
	defer openTimer.Stop()
	select {
	case <-peer.ChannelOpen():
	case <-peer.ChannelClosed():
		peer.Close()
		n.setState(StateFailed)
		return nil, &domain.ChannelError{Reason: "data channel closed before opening"}
	case <-openTimer.C:
		peer.Close()
		n.setState(StateFailed)
		return nil, &domain.ChannelError{
			Reason: fmt.Sprintf("data channel did not open within %s", n.OpenTimeout),
		}
	case <-ctx.Done():
		peer.Close()
		n.setState(StateFailed)
		return nil, ctx.Err()
	}

	n.mu.Lock()
	n.peer = peer
	n.closed = peer.ChannelClosed()
	n.state = StateConnected
	n.mu.Unlock()

	log.Printf("[rtc] state: %s", StateConnected)
	return peer.Channel(), nil
}

// Close tears down the live connection, if any.
func (n *Negotiator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.peer != nil {
		n.peer.Close()
		n.peer = nil
	}
	n.state = StateIdle
}
