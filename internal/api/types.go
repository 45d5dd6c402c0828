package api

import "github.com/memory-postcard/voicecall/domain/entities"

// StartCallRequest starts a voice call against a character.
type StartCallRequest struct {
	CharacterID uint `json:"character_id" validate:"required"`
}

// StartCallResponse acknowledges the call and names its channel.
type StartCallResponse struct {
	Channel string `json:"channel"`
}

// MuteRequest toggles the local microphone.
type MuteRequest struct {
	Muted bool `json:"muted"`
}

// TranscriptResponse returns the reconciled transcript of the active call.
type TranscriptResponse struct {
	Channel string                     `json:"channel"`
	Entries []entities.TranscriptEntry `json:"entries"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
