package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/memory-postcard/voicecall/domain/entities"
	"github.com/memory-postcard/voicecall/domain/repositories"
)

const (
	// defaultGraphName selects the agent pipeline to run.
	defaultGraphName = "voice_assistant"

	defaultHeartbeatPeriod = 3 * time.Second
)

// AgentController drives the backend compute session for a call: it
// starts the session once, keeps it alive with periodic pings, and
// stops it best-effort on teardown. The heartbeat timer is owned
// exclusively by this controller; every write path clears any existing
// timer before setting a new one, so two timers can never run at once.
type AgentController struct {
	agents repositories.AgentService
	logger *zap.Logger

	period time.Duration

	mu      sync.Mutex
	channel string // single source of truth for the ping target
	started bool   // start latch, set only after a successful start
	epoch   int    // bumped by Stop so a raced in-flight start loses
	beat    chan struct{}
}

// NewAgentController creates a controller with the 3 s heartbeat period.
func NewAgentController(agents repositories.AgentService, logger *zap.Logger) *AgentController {
	return &AgentController{
		agents: agents,
		logger: logger,
		period: defaultHeartbeatPeriod,
	}
}

// StartOnce starts the backend session for the channel and begins the
// heartbeat. Repeated calls while already started are no-ops. On
// failure the latch stays unset, so the caller may retry later.
func (c *AgentController) StartOnce(
	ctx context.Context,
	channel string,
	userID uint,
	character *entities.Character,
	recentPostcards []entities.Postcard,
) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.channel = channel
	epoch := c.epoch
	c.mu.Unlock()

	req := repositories.StartAgentRequest{
		Channel:   channel,
		UserID:    userID,
		GraphName: defaultGraphName,
		Prompt:    entities.BuildPersonaPrompt(character, recentPostcards),
		Greeting:  entities.DefaultGreeting,
	}
	if character != nil {
		req.VoiceReferenceID = character.VoiceID
	}

	if err := c.agents.Start(ctx, req); err != nil {
		return fmt.Errorf("start agent session: %w", err)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		// Stop raced the in-flight start; the hangup wins. Release the
		// backend session we just created instead of latching it.
		c.mu.Unlock()
		if err := c.agents.Stop(ctx, channel); err != nil {
			c.logger.Warn("releasing agent session after hangup failed",
				zap.String("channel", channel), zap.Error(err))
		}
		return nil
	}
	c.started = true
	c.startHeartbeatLocked()
	c.mu.Unlock()

	c.logger.Info("agent session started", zap.String("channel", channel))
	return nil
}

// SetChannel updates the ping target. Heartbeat ticks read it live, so
// a channel change mid-call is honored without restarting anything.
func (c *AgentController) SetChannel(channel string) {
	c.mu.Lock()
	c.channel = channel
	c.mu.Unlock()
}

// SetConnected tracks the agent's connected flag: the transition to
// connected (re)arms the heartbeat, the transition to disconnected
// stops it.
func (c *AgentController) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !connected {
		c.stopHeartbeatLocked()
		return
	}
	if c.started {
		c.startHeartbeatLocked()
	}
}

// Stop halts the heartbeat and releases the backend session
// best-effort. A failed stop is logged and swallowed: ending a call
// must never block on network cleanup. Safe to call twice; the second
// call finds the latch cleared and issues no network call.
func (c *AgentController) Stop(ctx context.Context, channel string) {
	c.mu.Lock()
	wasStarted := c.started
	c.started = false
	c.epoch++
	c.stopHeartbeatLocked()
	c.mu.Unlock()

	if !wasStarted {
		return
	}
	if err := c.agents.Stop(ctx, channel); err != nil {
		c.logger.Warn("agent stop failed", zap.String("channel", channel), zap.Error(err))
		return
	}
	c.logger.Info("agent session stopped", zap.String("channel", channel))
}

// startHeartbeatLocked arms the heartbeat, first clearing any timer
// already running. Callers must hold c.mu.
func (c *AgentController) startHeartbeatLocked() {
	c.stopHeartbeatLocked()
	beat := make(chan struct{})
	c.beat = beat
	go c.heartbeat(beat)
}

// stopHeartbeatLocked clears the timer handle. Callers must hold c.mu.
func (c *AgentController) stopHeartbeatLocked() {
	if c.beat != nil {
		close(c.beat)
		c.beat = nil
	}
}

func (c *AgentController) heartbeat(stop <-chan struct{}) {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			channel := c.channel
			c.mu.Unlock()

			// Liveness only: the response does not steer control flow.
			if err := c.agents.Ping(context.Background(), channel); err != nil {
				c.logger.Warn("agent ping failed", zap.String("channel", channel), zap.Error(err))
			}
		}
	}
}

// heartbeatActive reports whether a heartbeat timer is armed.
func (c *AgentController) heartbeatActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.beat != nil
}
