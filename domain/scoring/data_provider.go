package scoring

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// DataProvider materializes the ratings, notes, and participant ids a Scorer needs for
// one community. The production implementation reads from Postgres; tests substitute a
// fixture-backed implementation satisfying the same interface.
type DataProvider interface {
	GetAllRatings(ctx context.Context, communityID uuid.UUID) ([]Rating, error)
	GetAllNotes(ctx context.Context, communityID uuid.UUID) ([]Note, error)
	GetAllParticipants(ctx context.Context, communityID uuid.UUID) ([]string, error)
}

// Repository is the Postgres-backed DataProvider, and also answers the note-count query
// tier selection and the batch-scoring trigger need.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository builds a Repository bound to db.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log.With(logger.Scope("scoring.repo"))}
}

// GetAllRatings implements DataProvider.
func (r *Repository) GetAllRatings(ctx context.Context, communityID uuid.UUID) ([]Rating, error) {
	var ratings []Rating
	err := r.db.NewSelect().
		Model(&ratings).
		Join("JOIN opennotes.notes AS n ON n.id = r.note_id").
		Where("n.community_server_id = ?", communityID).
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("list ratings: %w", err))
	}
	return ratings, nil
}

// GetAllNotes implements DataProvider.
func (r *Repository) GetAllNotes(ctx context.Context, communityID uuid.UUID) ([]Note, error) {
	var notes []Note
	err := r.db.NewSelect().
		Model(&notes).
		Where("n.community_server_id = ?", communityID).
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("list notes: %w", err))
	}
	return notes, nil
}

// GetAllParticipants implements DataProvider, returning the distinct set of note authors
// and raters in the community (anyone who has participated in scoring).
func (r *Repository) GetAllParticipants(ctx context.Context, communityID uuid.UUID) ([]string, error) {
	var ids []string
	err := r.db.NewRaw(`
		SELECT author_participant_id FROM opennotes.notes WHERE community_server_id = ?
		UNION
		SELECT r.rater_participant_id FROM opennotes.ratings r
		JOIN opennotes.notes n ON n.id = r.note_id
		WHERE n.community_server_id = ?
	`, communityID, communityID).Scan(ctx, &ids)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("list participants: %w", err))
	}
	return ids, nil
}

// CountNotes returns the total note count for communityID, the input to tier selection
// and the batch-scoring trigger.
func (r *Repository) CountNotes(ctx context.Context, communityID uuid.UUID) (int, error) {
	n, err := r.db.NewSelect().
		Model((*Note)(nil)).
		Where("community_server_id = ?", communityID).
		Count(ctx)
	if err != nil {
		return 0, apperror.ErrInternal.WithInternal(fmt.Errorf("count notes: %w", err))
	}
	return n, nil
}
