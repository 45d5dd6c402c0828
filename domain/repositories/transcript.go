package repositories

import (
	"context"

	"github.com/memory-postcard/voicecall/domain/entities"
)

// TranscriptRepository archives the transcript of a finished call.
// Archival is best-effort; a failure must never block call teardown.
type TranscriptRepository interface {
	Archive(ctx context.Context, channelID string, userID uint, entries []entities.TranscriptEntry) error
}
