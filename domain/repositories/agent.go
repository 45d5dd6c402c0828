package repositories

import "context"

// StartAgentRequest describes the backend compute session to start for
// one call.
type StartAgentRequest struct {
	Channel          string
	UserID           uint
	GraphName        string
	Prompt           string
	Greeting         string
	VoiceReferenceID string
}

// AgentService is the backend agent control surface. Start is called
// once per call, Ping keeps the compute session alive, Stop releases it.
type AgentService interface {
	Start(ctx context.Context, req StartAgentRequest) error
	Ping(ctx context.Context, channel string) error
	Stop(ctx context.Context, channel string) error
}
