package rtc

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/pion/interceptor"
	pion "github.com/pion/webrtc/v4"

	"github.com/aegisvoice/voicebridge/internal/domain"
)

// channelLabel is the data channel carrying realtime events.
const channelLabel = "oai-events"

// Peer wraps a Pion PeerConnection and the event DataChannel.
// It implements domain.Peer.
type Peer struct {
	pc *pion.PeerConnection
	dc *pion.DataChannel

	gatherDone <-chan struct{}
	open       chan struct{}
	closed     chan struct{}
	openOnce   sync.Once
	closeOnce  sync.Once

	ch *dataChannel
}

// NewPeer creates a PeerConnection with an Opus audio transceiver and the
// event DataChannel. Inbound channel messages are delivered to onMessage.
func NewPeer(onMessage func([]byte)) (*Peer, error) {
	m := &pion.MediaEngine{}

	opusCodec := pion.RTPCodecParameters{
		RTPCodecCapability: pion.RTPCodecCapability{
			MimeType:    pion.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}
	if err := m.RegisterCodec(opusCodec, pion.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus: %w", err)
	}

	i := &interceptor.Registry{}
	if err := pion.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
	)

	pc, err := api.NewPeerConnection(pion.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	dc, err := pc.CreateDataChannel(channelLabel, nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}

	p := &Peer{
		pc:     pc,
		dc:     dc,
		open:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	p.ch = &dataChannel{dc: dc}

	dc.OnOpen(func() {
		log.Printf("[rtc] data channel opened")
		p.openOnce.Do(func() { close(p.open) })
	})
	dc.OnClose(func() {
		log.Printf("[rtc] data channel closed")
		p.closeOnce.Do(func() { close(p.closed) })
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		if onMessage != nil {
			onMessage(msg.Data)
		}
	})

	if _, err := pc.AddTransceiverFromKind(pion.RTPCodecTypeAudio, pion.RTPTransceiverInit{
		Direction: pion.RTPTransceiverDirectionSendrecv,
	}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("add audio transceiver: %w", err)
	}

	pc.OnTrack(func(track *pion.TrackRemote, receiver *pion.RTPReceiver) {
		codec := track.Codec()
		log.Printf("[rtc] got track: kind=%s codec=%s", track.Kind(), codec.MimeType)
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := track.Read(buf); err != nil {
					return
				}
			}
		}()
	})

	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		log.Printf("[rtc] ICE connection state: %s", state.String())
	})
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		log.Printf("[rtc] peer connection state: %s", state.String())
	})

	return p, nil
}

// CreateOffer creates an SDP offer and sets it as the local description,
// arming the gathering-complete promise first.
func (p *Peer) CreateOffer() error {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}

	p.gatherDone = pion.GatheringCompletePromise(p.pc)

	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	log.Printf("[rtc] local SDP offer set")
	return nil
}

// LocalDescription returns the current local SDP, including any candidates
// gathered so far.
func (p *Peer) LocalDescription() string {
	desc := p.pc.LocalDescription()
	if desc == nil {
		return ""
	}
	return desc.SDP
}

// SetRemoteDescription applies the remote SDP answer.
func (p *Peer) SetRemoteDescription(answerSDP string) error {
	answer := pion.SessionDescription{
		Type: pion.SDPTypeAnswer,
		SDP:  answerSDP,
	}
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	log.Printf("[rtc] remote SDP answer set")
	return nil
}

// GatheringComplete is closed once local ICE candidate gathering finishes.
func (p *Peer) GatheringComplete() <-chan struct{} { return p.gatherDone }

// ChannelOpen is closed when the event DataChannel reaches the open state.
func (p *Peer) ChannelOpen() <-chan struct{} { return p.open }

// ChannelClosed is closed when the event DataChannel closes.
func (p *Peer) ChannelClosed() <-chan struct{} { return p.closed }

// Channel returns the event channel handle.
func (p *Peer) Channel() domain.Channel { return p.ch }

// Close shuts down the DataChannel and PeerConnection.
func (p *Peer) Close() {
	if p.dc != nil {
		p.dc.Close()
	}
	if p.pc != nil {
		p.pc.Close()
	}
}

// dataChannel adapts a Pion DataChannel to domain.Channel. Writes are
// serialized; messages are JSON-encoded text frames.
type dataChannel struct {
	mu sync.Mutex
	dc *pion.DataChannel
}

func (c *dataChannel) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal channel message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.dc.SendText(string(data)); err != nil {
		return fmt.Errorf("send channel message: %w", err)
	}
	return nil
}

func (c *dataChannel) Close() error {
	return c.dc.Close()
}
