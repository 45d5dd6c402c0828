package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/memory-postcard/voicecall/domain/entities"
	"github.com/memory-postcard/voicecall/domain/repositories"
)

const (
	// Time allowed to write a control frame to the gateway.
	writeWait = 10 * time.Second

	gatewayEventBuffer = 64
)

// Gateway control and event frame. One struct covers both directions;
// only the fields relevant to Type are populated.
type gatewayMessage struct {
	Type string `json:"type"`

	AppID   string `json:"app_id,omitempty"`
	Token   string `json:"token,omitempty"`
	Channel string `json:"channel,omitempty"`
	UserID  uint   `json:"user_id,omitempty"`

	State  string `json:"state,omitempty"`
	Reason string `json:"reason,omitempty"`

	Uplink   int `json:"uplink,omitempty"`
	Downlink int `json:"downlink,omitempty"`

	HasAudio  bool    `json:"has_audio,omitempty"`
	SpeakerID uint    `json:"speaker_id,omitempty"`
	Text      string  `json:"text,omitempty"`
	IsFinal   bool    `json:"is_final,omitempty"`
	Timestamp float64 `json:"timestamp,omitempty"`
}

const (
	messageJoin        = "join"
	messageLeave       = "leave"
	messagePublish     = "publish"
	messageUnpublish   = "unpublish"
	messageUnsubscribe = "unsubscribe"
	messageParticipant = "participant"
	messageQuality     = "quality"
	messageState       = "state"
	messageFragment    = "fragment"
)

// Gateway implements repositories.RealtimeTransport against the
// realtime gateway's websocket signaling protocol. Media flows on the
// vendor's data plane; this client only drives membership, publishing,
// and the event feed.
type Gateway struct {
	url    string
	logger *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	events chan repositories.TransportEvent
}

var _ repositories.RealtimeTransport = (*Gateway)(nil)

// NewGateway creates a gateway client for the given websocket URL.
func NewGateway(url string, logger *zap.Logger) *Gateway {
	return &Gateway{
		url:    url,
		logger: logger,
		events: make(chan repositories.TransportEvent, gatewayEventBuffer),
	}
}

// CreateMicrophoneTrack acquires the local capture handle. Capture runs
// on the device side of the gateway; the handle only carries the local
// enable flag used for mute.
func (g *Gateway) CreateMicrophoneTrack(_ context.Context) (repositories.LocalAudioTrack, error) {
	return &gatewayLocalTrack{enabled: true}, nil
}

// Join dials the gateway and announces channel membership, then starts
// the read loop feeding Events.
func (g *Gateway) Join(ctx context.Context, cfg repositories.JoinConfig) error {
	dialer := websocket.Dialer{HandshakeTimeout: writeWait}
	conn, _, err := dialer.DialContext(ctx, g.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial gateway: %w", err)
	}

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	if err := g.write(gatewayMessage{
		Type:    messageJoin,
		AppID:   cfg.AppID,
		Token:   cfg.Token,
		Channel: cfg.Channel,
		UserID:  cfg.UserID,
	}); err != nil {
		g.closeConn()
		return fmt.Errorf("failed to join channel: %w", err)
	}

	go g.readLoop(conn)

	g.logger.Info("Joined gateway channel",
		zap.String("channel", cfg.Channel), zap.Uint("userID", cfg.UserID))
	return nil
}

// Publish announces the local track on the channel.
func (g *Gateway) Publish(_ context.Context, _ repositories.LocalAudioTrack) error {
	return g.write(gatewayMessage{Type: messagePublish})
}

// Unpublish withdraws the local track.
func (g *Gateway) Unpublish(_ context.Context) error {
	return g.write(gatewayMessage{Type: messageUnpublish})
}

// Leave announces departure and closes the connection, which also ends
// the read loop.
func (g *Gateway) Leave(_ context.Context) error {
	err := g.write(gatewayMessage{Type: messageLeave})
	g.closeConn()
	return err
}

// Events returns the gateway event feed.
func (g *Gateway) Events() <-chan repositories.TransportEvent {
	return g.events
}

func (g *Gateway) readLoop(conn *websocket.Conn) {
	for {
		var msg gatewayMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Warn("gateway read failed", zap.Error(err))
			}
			return
		}
		g.handleMessage(msg)
	}
}

func (g *Gateway) handleMessage(msg gatewayMessage) {
	switch msg.Type {
	case messageParticipant:
		participant := repositories.RemoteParticipant{UserID: msg.UserID}
		if msg.HasAudio {
			participant.Audio = &gatewayRemoteTrack{gateway: g, userID: msg.UserID}
		}
		g.emit(repositories.ParticipantChanged{Participant: participant})
	case messageQuality:
		g.emit(repositories.QualitySample{
			Sample: entities.SignalSample{Uplink: msg.Uplink, Downlink: msg.Downlink},
		})
	case messageState:
		g.emit(repositories.ConnectionStateChanged{State: msg.State, Reason: msg.Reason})
	case messageFragment:
		g.emit(repositories.FragmentReceived{Fragment: entities.Fragment{
			SpeakerID: msg.SpeakerID,
			Text:      msg.Text,
			IsFinal:   msg.IsFinal,
			Timestamp: msg.Timestamp,
		}})
	default:
		g.logger.Debug("ignoring gateway message", zap.String("type", msg.Type))
	}
}

func (g *Gateway) emit(ev repositories.TransportEvent) {
	select {
	case g.events <- ev:
	default:
		g.logger.Warn("dropping gateway event, consumer too slow")
	}
}

func (g *Gateway) write(msg gatewayMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return fmt.Errorf("gateway not connected")
	}
	if err := g.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return g.conn.WriteJSON(msg)
}

func (g *Gateway) closeConn() {
	g.mu.Lock()
	conn := g.conn
	g.conn = nil
	g.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// gatewayLocalTrack is the local capture handle. Mute never touches the
// channel, so the handle is purely local state.
type gatewayLocalTrack struct {
	mu      sync.Mutex
	enabled bool
	closed  bool
}

var _ repositories.LocalAudioTrack = (*gatewayLocalTrack)(nil)

func (t *gatewayLocalTrack) SetEnabled(enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("track already closed")
	}
	t.enabled = enabled
	return nil
}

func (t *gatewayLocalTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// gatewayRemoteTrack is a remote participant's inbound audio handle.
type gatewayRemoteTrack struct {
	gateway *Gateway
	userID  uint
}

var _ repositories.RemoteAudioTrack = (*gatewayRemoteTrack)(nil)

// SetDevice routes playback locally; the gateway is not involved.
func (t *gatewayRemoteTrack) SetDevice(deviceID string) error {
	t.gateway.logger.Debug("playback device selected",
		zap.Uint("userID", t.userID), zap.String("deviceID", deviceID))
	return nil
}

// Stop unsubscribes from the participant's audio.
func (t *gatewayRemoteTrack) Stop() error {
	return t.gateway.write(gatewayMessage{Type: messageUnsubscribe, UserID: t.userID})
}
