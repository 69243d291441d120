package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medtriage/internal/core"
	"medtriage/pkg"
)

func seedSession(t *testing.T, store *MemoryStore, at time.Time) *pkg.Session {
	t.Helper()
	sess := &pkg.Session{
		ID:    "11111111-1111-1111-1111-111111111111",
		Owner: "ben@example.com",
		State: pkg.StateIntake,
		Intake: pkg.IntakeProgress{
			Answers: map[string]string{"chief_complaint": "headache"},
		},
		CreatedAt:    at,
		LastActivity: at,
	}
	first := pkg.Message{
		SessionID: sess.ID,
		Role:      pkg.RoleAssistant,
		Content:   "What is your main issue today?",
		Timestamp: at,
		Phase:     pkg.PhaseIntake,
	}
	require.NoError(t, store.CreateSession(context.Background(), sess, first))
	return sess
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	sess := seedSession(t, store, at)

	got, err := store.Session(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.State, got.State)
	assert.Equal(t, sess.Owner, got.Owner)
	assert.Equal(t, sess.Intake.Answers, got.Intake.Answers)
	assert.True(t, got.LastActivity.Equal(at))

	msgs, err := store.Messages(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, pkg.PhaseIntake, msgs[0].Phase)
	assert.NotZero(t, msgs[0].ID)

	// Reads hand out copies: mutating a result must not leak into the store.
	got.Intake.Answers["chief_complaint"] = "tampered"
	again, err := store.Session(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "headache", again.Intake.Answers["chief_complaint"])
}

func TestMemoryStoreUnknownSession(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Session(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	err = store.Mutate(context.Background(), "missing", func(*pkg.Session) ([]pkg.Message, error) { return nil, nil })
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMutateCommitsSessionAndMessagesTogether(t *testing.T) {
	store := NewMemoryStore()
	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	sess := seedSession(t, store, at)

	err := store.Mutate(context.Background(), sess.ID, func(s *pkg.Session) ([]pkg.Message, error) {
		s.State = pkg.StateUrgent
		s.WasUrgent = true
		return []pkg.Message{{
			SessionID: s.ID,
			Role:      pkg.RoleAssistant,
			Content:   "escalated",
			Timestamp: at.Add(time.Minute),
			Phase:     pkg.PhaseSystem,
		}}, nil
	})
	require.NoError(t, err)

	got, err := store.Session(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, pkg.StateUrgent, got.State)
	msgs, err := store.Messages(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestMutateRollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	sess := seedSession(t, store, at)
	boom := errors.New("precondition failed")

	err := store.Mutate(context.Background(), sess.ID, func(s *pkg.Session) ([]pkg.Message, error) {
		s.State = pkg.StateClosed
		return []pkg.Message{{SessionID: s.ID, Content: "never persisted"}}, boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Session(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, pkg.StateIntake, got.State, "failed mutation must not persist")
	msgs, err := store.Messages(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSweepPassesAreConditional(t *testing.T) {
	store := NewMemoryStore()
	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	sess := seedSession(t, store, at)

	cutoff := at.Add(time.Minute)
	n, err := store.DemoteIdle(context.Background(), cutoff, "inactive note", cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Already inactive: a second soft pass matches nothing.
	n, err = store.DemoteIdle(context.Background(), cutoff, "inactive note", cutoff)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Hard pass only touches inactive sessions past the cutoff.
	n, err = store.ExpireDormant(context.Background(), cutoff, "closed note", cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Session(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, pkg.StateClosed, got.State)

	msgs, err := store.Messages(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}
