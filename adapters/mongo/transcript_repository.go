package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/memory-postcard/voicecall/domain/entities"
	"github.com/memory-postcard/voicecall/domain/repositories"
)

// TranscriptRepository archives finished-call transcripts in MongoDB.
type TranscriptRepository struct {
	collection *mongo.Collection
}

// NewTranscriptRepository creates a repository on the transcripts
// collection.
func NewTranscriptRepository(db *mongo.Database) repositories.TranscriptRepository {
	return &TranscriptRepository{
		collection: db.Collection("transcripts"),
	}
}

// Archive stores the reconciled transcript of one call, keyed by its
// channel id.
func (r *TranscriptRepository) Archive(ctx context.Context, channelID string, userID uint, entries []entities.TranscriptEntry) error {
	if channelID == "" {
		return errors.New("channel id cannot be empty")
	}

	doc := bson.M{
		"channel_id":  channelID,
		"user_id":     userID,
		"entries":     entries,
		"archived_at": time.Now(),
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to archive transcript: %w", err)
	}
	return nil
}
