package entities

import "time"

// Character is the persona the user is calling. It is produced by the
// character CRUD backend; the engine only reads it.
type Character struct {
	ID           uint      `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	VoiceID      string    `json:"voice_id,omitempty"`
	UserRoleName string    `json:"user_role_name"`
	UserRoleDesc string    `json:"user_role_desc"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PostcardType distinguishes who authored a postcard.
type PostcardType string

const (
	PostcardTypeUser PostcardType = "user"
	PostcardTypeAI   PostcardType = "ai"
)

// Postcard is one prior exchange between the user and a character.
// Recent postcards seed the persona prompt with conversation context.
type Postcard struct {
	ID          uint         `json:"id"`
	UserID      uint         `json:"user_id"`
	CharacterID uint         `json:"character_id"`
	Type        PostcardType `json:"type"`
	Content     string       `json:"content"`
	CreatedAt   time.Time    `json:"created_at"`
}
