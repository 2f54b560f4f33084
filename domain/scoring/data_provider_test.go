package scoring_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/opennotes-ai/opennotes-server/domain/scoring"
	"github.com/opennotes-ai/opennotes-server/internal/testutil"
)

func newTestDB(t *testing.T) *testutil.TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db, err := testutil.SetupTestDB(context.Background(), "scoring")
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func insertNote(t *testing.T, db *testutil.TestDB, communityID uuid.UUID) *scoring.Note {
	t.Helper()
	note := &scoring.Note{
		AuthorParticipantID: "user-1",
		CommunityServerID:   communityID,
		Classification:      "NOT_MISLEADING",
		Status:              "NEEDS_MORE_RATINGS",
	}
	_, err := db.DB.NewInsert().Model(note).Exec(context.Background())
	require.NoError(t, err)
	return note
}

func TestRepository_CountNotes_ScopedToCommunity(t *testing.T) {
	db := newTestDB(t)
	repo := scoring.NewRepository(db.DB, slog.Default())
	ctx := context.Background()

	communityA := uuid.New()
	communityB := uuid.New()

	insertNote(t, db, communityA)
	insertNote(t, db, communityA)
	insertNote(t, db, communityB)

	n, err := repo.CountNotes(ctx, communityA)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = repo.CountNotes(ctx, communityB)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRepository_GetAllParticipants_UnionsAuthorsAndRaters(t *testing.T) {
	db := newTestDB(t)
	repo := scoring.NewRepository(db.DB, slog.Default())
	ctx := context.Background()

	communityID := uuid.New()
	note := insertNote(t, db, communityID)

	rating := &scoring.Rating{
		NoteID:             note.ID,
		RaterParticipantID: "user-2",
		HelpfulnessLevel:   "HELPFUL",
	}
	_, err := db.DB.NewInsert().Model(rating).Exec(ctx)
	require.NoError(t, err)

	participants, err := repo.GetAllParticipants(ctx, communityID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"user-1", "user-2"}, participants)
}
