package repositories

import (
	"context"

	"github.com/memory-postcard/voicecall/domain/entities"
)

// CharacterRepository reads character personas from the CRUD backend.
type CharacterRepository interface {
	GetCharacter(ctx context.Context, id uint) (*entities.Character, error)
}

// PostcardRepository reads the caller's postcards from the CRUD backend.
type PostcardRepository interface {
	// RecentPostcards returns up to limit postcards, newest first.
	RecentPostcards(ctx context.Context, limit int) ([]entities.Postcard, error)
}
