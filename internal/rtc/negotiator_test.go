package rtc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aegisvoice/voicebridge/internal/domain"
)

// fakeChannel records sent messages.
type fakeChannel struct {
	mu    sync.Mutex
	sent  []any
	close int
}

func (c *fakeChannel) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, v)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.close++
	return nil
}

// fakePeer implements domain.Peer with controllable lifecycle latches.
type fakePeer struct {
	gather   chan struct{}
	open     chan struct{}
	closedCh chan struct{}
	ch       *fakeChannel

	mu         sync.Mutex
	closeCount int
	steps      *[]string
}

func newFakePeer(steps *[]string) *fakePeer {
	return &fakePeer{
		gather:   make(chan struct{}),
		open:     make(chan struct{}),
		closedCh: make(chan struct{}),
		ch:       &fakeChannel{},
		steps:    steps,
	}
}

func (p *fakePeer) record(step string) {
	if p.steps == nil {
		return
	}
	p.mu.Lock()
	*p.steps = append(*p.steps, step)
	p.mu.Unlock()
}

func (p *fakePeer) CreateOffer() error {
	p.record("create-offer")
	return nil
}

func (p *fakePeer) LocalDescription() string { return "v=0\r\noffer" }

func (p *fakePeer) SetRemoteDescription(answerSDP string) error {
	p.record("set-remote")
	return nil
}

func (p *fakePeer) GatheringComplete() <-chan struct{} { return p.gather }
func (p *fakePeer) ChannelOpen() <-chan struct{}       { return p.open }
func (p *fakePeer) ChannelClosed() <-chan struct{}     { return p.closedCh }
func (p *fakePeer) Channel() domain.Channel            { return p.ch }

func (p *fakePeer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCount++
}

func (p *fakePeer) closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCount
}

// fakeFetcher counts fetches and can fail.
type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
	steps *[]string
}

func (f *fakeFetcher) FetchSession(ctx context.Context) (*domain.Session, error) {
	f.mu.Lock()
	f.calls++
	if f.steps != nil {
		*f.steps = append(*f.steps, "fetch-session")
	}
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Session{Token: "ek_test", Model: "gpt-4o-realtime-preview"}, nil
}

// fakeSignaler records the exchanged offer and can fail.
type fakeSignaler struct {
	mu    sync.Mutex
	offer string
	err   error
	steps *[]string
}

func (s *fakeSignaler) Exchange(ctx context.Context, offerSDP string, sess *domain.Session) (string, error) {
	s.mu.Lock()
	s.offer = offerSDP
	if s.steps != nil {
		*s.steps = append(*s.steps, "exchange-sdp")
	}
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return "v=0\r\nanswer", nil
}

type fixture struct {
	steps    []string
	fetcher  *fakeFetcher
	signaler *fakeSignaler

	mu    sync.Mutex
	peers []*fakePeer
}

func newFixture() *fixture {
	f := &fixture{}
	f.fetcher = &fakeFetcher{steps: &f.steps}
	f.signaler = &fakeSignaler{steps: &f.steps}
	return f
}

// negotiator builds a Negotiator with short timeouts and the fixture's fakes.
func (f *fixture) negotiator() *Negotiator {
	n := NewNegotiator(f.fetcher, f.signaler, func(onMessage func([]byte)) (domain.Peer, error) {
		p := newFakePeer(&f.steps)
		f.mu.Lock()
		f.peers = append(f.peers, p)
		f.mu.Unlock()
		return p, nil
	}, nil)
	n.GatherTimeout = 50 * time.Millisecond
	n.OpenTimeout = 100 * time.Millisecond
	return n
}

func (f *fixture) peerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

func (f *fixture) peer(i int) *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peers[i]
}

// openPeersAsCreated completes gathering and opens the channel of every peer
// as soon as the factory creates it.
func (f *fixture) openPeersAsCreated(t *testing.T) (stop func()) {
	done := make(chan struct{})
	f.mu.Lock()
	seen := len(f.peers)
	f.mu.Unlock()
	go func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(time.Millisecond):
			}
			f.mu.Lock()
			for ; seen < len(f.peers); seen++ {
				close(f.peers[seen].gather)
				close(f.peers[seen].open)
			}
			f.mu.Unlock()
		}
	}()
	return func() { close(done) }
}

func TestEnsureConnected_StepOrder(t *testing.T) {
	f := newFixture()
	n := f.negotiator()
	stop := f.openPeersAsCreated(t)
	defer stop()

	ch, err := n.EnsureConnected(context.Background())
	if err != nil {
		t.Fatalf("EnsureConnected: %v", err)
	}
	if ch == nil {
		t.Fatal("nil channel")
	}

	want := []string{"fetch-session", "create-offer", "exchange-sdp", "set-remote"}
	if len(f.steps) != len(want) {
		t.Fatalf("steps = %v, want %v", f.steps, want)
	}
	for i := range want {
		if f.steps[i] != want[i] {
			t.Fatalf("steps = %v, want %v", f.steps, want)
		}
	}
	if got := n.State(); got != StateConnected {
		t.Errorf("state = %s, want connected", got)
	}
}

func TestEnsureConnected_SecondCallShortCircuits(t *testing.T) {
	f := newFixture()
	n := f.negotiator()
	stop := f.openPeersAsCreated(t)
	defer stop()

	first, err := n.EnsureConnected(context.Background())
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := n.EnsureConnected(context.Background())
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first != second {
		t.Error("expected the same channel from both calls")
	}
	if f.peerCount() != 1 {
		t.Errorf("peer count = %d, want 1", f.peerCount())
	}
	if f.fetcher.calls != 1 {
		t.Errorf("session fetches = %d, want 1", f.fetcher.calls)
	}
}

func TestEnsureConnected_SingleFlight(t *testing.T) {
	f := newFixture()
	n := f.negotiator()

	// Hold the attempt in the gathering step until both callers have joined.
	release := make(chan struct{})
	go func() {
		<-release
		for f.peerCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		p := f.peer(0)
		close(p.gather)
		close(p.open)
	}()

	var wg sync.WaitGroup
	results := make([]domain.Channel, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = n.EnsureConnected(context.Background())
		}(i)
	}
	close(release)
	wg.Wait()

	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
	}
	if results[0] != results[1] {
		t.Error("concurrent callers received different channels")
	}
	if f.peerCount() != 1 {
		t.Errorf("peer count = %d, want exactly 1 (single-flight)", f.peerCount())
	}
}

func TestEnsureConnected_ProceedsPastStuckICEGathering(t *testing.T) {
	f := newFixture()
	n := f.negotiator()

	// Gathering never completes; only open the channel once the exchange has
	// happened, proving the attempt moved past the gathering step.
	go func() {
		for {
			time.Sleep(time.Millisecond)
			f.signaler.mu.Lock()
			exchanged := f.signaler.offer != ""
			f.signaler.mu.Unlock()
			if exchanged {
				p := f.peer(0)
				close(p.open)
				return
			}
		}
	}()

	start := time.Now()
	if _, err := n.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected: %v", err)
	}
	if elapsed := time.Since(start); elapsed < n.GatherTimeout {
		t.Errorf("finished in %s, expected to wait out the %s gather timeout", elapsed, n.GatherTimeout)
	}
}

func TestEnsureConnected_ChannelOpenTimeout(t *testing.T) {
	f := newFixture()
	n := f.negotiator()

	// Gathering completes but the channel never opens.
	go func() {
		for f.peerCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		close(f.peer(0).gather)
	}()

	_, err := n.EnsureConnected(context.Background())
	var ce *domain.ChannelError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want ChannelError", err)
	}
	if f.peer(0).closes() == 0 {
		t.Error("failed attempt did not close its peer")
	}

	// The single-flight slot must be released: a subsequent call starts a
	// brand-new attempt.
	stop := f.openPeersAsCreated(t)
	defer stop()
	if _, err := n.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if f.peerCount() != 2 {
		t.Errorf("peer count = %d, want 2 (fresh attempt)", f.peerCount())
	}
}

func TestEnsureConnected_PrematureChannelClose(t *testing.T) {
	f := newFixture()
	n := f.negotiator()

	go func() {
		for f.peerCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		p := f.peer(0)
		close(p.gather)
		close(p.closedCh)
	}()

	_, err := n.EnsureConnected(context.Background())
	var ce *domain.ChannelError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want ChannelError", err)
	}
}

func TestEnsureConnected_SessionFailure(t *testing.T) {
	f := newFixture()
	f.fetcher.err = &domain.SessionError{Reason: "no usable token"}
	n := f.negotiator()

	_, err := n.EnsureConnected(context.Background())
	var se *domain.SessionError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want SessionError", err)
	}
	if f.peerCount() != 0 {
		t.Errorf("peer count = %d, want 0 (no peer allocated before session)", f.peerCount())
	}
	if got := n.State(); got != StateFailed {
		t.Errorf("state = %s, want failed", got)
	}
}

func TestEnsureConnected_SignalingFailureClosesPeer(t *testing.T) {
	f := newFixture()
	f.signaler.err = &domain.SignalingError{Status: 401, Body: "invalid token"}
	n := f.negotiator()

	go func() {
		for f.peerCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		close(f.peer(0).gather)
	}()

	_, err := n.EnsureConnected(context.Background())
	var se *domain.SignalingError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want SignalingError", err)
	}
	if f.peer(0).closes() == 0 {
		t.Error("failed attempt did not close its peer")
	}
}

func TestEnsureConnected_WaitersShareErrorInstance(t *testing.T) {
	f := newFixture()
	n := f.negotiator()

	// Channel never opens; both callers must reject with the same error
	// instance.
	go func() {
		for f.peerCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		close(f.peer(0).gather)
	}()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = n.EnsureConnected(context.Background())
		}(i)
	}
	wg.Wait()

	if errs[0] == nil || errs[1] == nil {
		t.Fatalf("expected both callers to fail, got %v / %v", errs[0], errs[1])
	}
	if errs[0] != errs[1] {
		t.Errorf("callers saw different error instances: %v vs %v", errs[0], errs[1])
	}
	if f.peerCount() != 1 {
		t.Errorf("peer count = %d, want 1", f.peerCount())
	}
}

func TestEnsureConnected_ReconnectsAfterChannelDies(t *testing.T) {
	f := newFixture()
	n := f.negotiator()
	stop := f.openPeersAsCreated(t)
	defer stop()

	if _, err := n.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("first connect: %v", err)
	}

	// Simulate the live channel dying.
	close(f.peer(0).closedCh)

	if _, err := n.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if f.peerCount() != 2 {
		t.Errorf("peer count = %d, want 2 after reconnect", f.peerCount())
	}
	if f.peer(0).closes() == 0 {
		t.Error("dead peer was not closed")
	}
}
