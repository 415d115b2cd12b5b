// ABOUTME: Tests for the conversation store and data model
// ABOUTME: Covers round-trip persistence, corrupt-file recovery, rating rules and cost invariants

package convstore

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return Open(filepath.Join(dir, "conversations.json"), "", 10, slog.Default())
}

func TestStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conversations.json")

	s := Open(path, "", 10, nil)
	conv := NewConversation("alice", "seed question", "en", "How do I start a new seed?", "greeting")
	conv.Append(RoleAssistant, "Like this.")
	conv.Cost.Add(0.01, 0.02, 0)
	rating := 7.0
	conv.Rating = &rating
	s.Put("thread-1", conv)
	require.NoError(t, s.Save())

	reloaded := Open(path, "", 10, nil)
	got, ok := reloaded.Get("thread-1")
	require.True(t, ok)
	assert.Equal(t, conv.Author, got.Author)
	assert.Equal(t, conv.Summary, got.Summary)
	assert.Equal(t, conv.Language, got.Language)
	assert.Equal(t, conv.Turns, got.Turns)
	assert.Equal(t, conv.Cost, got.Cost)
	require.NotNil(t, got.Rating)
	assert.Equal(t, 7.0, *got.Rating)
}

func TestStore_EmptyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conversations.json")

	s := Open(path, "", 10, nil)
	require.NoError(t, s.Save())

	reloaded := Open(path, "", 10, nil)
	assert.Equal(t, 0, reloaded.Len())
}

func TestStore_CorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conversations.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s := Open(path, "", 10, nil)
	assert.Equal(t, 0, s.Len())
}

func TestStore_MissingFileStartsEmpty(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "nope", "conversations.json"), "", 10, nil)
	assert.Equal(t, 0, s.Len())
}

func TestStore_SavePreservesPreviousOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conversations.json")
	s := Open(path, "", 10, nil)
	s.Put("t", NewConversation("a", "s", "en", "q", "g"))
	require.NoError(t, s.Save())

	// The saved file is valid JSON even after a second save.
	s.Put("t2", NewConversation("b", "s2", "en", "q2", "g2"))
	require.NoError(t, s.Save())
	reloaded := Open(path, "", 10, nil)
	assert.Equal(t, 2, reloaded.Len())
}

func TestStore_Mutators(t *testing.T) {
	s := testStore(t)
	s.Put("t", NewConversation("alice", "s", "en", "q", "g"))

	s.AppendTurn("t", RoleAssistant, "answer")
	s.AddCost("t", 0.01, 0.02, 0.001)
	require.NoError(t, s.SetRating("t", "alice", 8))
	require.NoError(t, s.SetCorrection("t", "note"))

	conv, ok := s.Get("t")
	require.True(t, ok)
	require.Len(t, conv.Turns, 3)
	assert.Equal(t, "answer", conv.Turns[2].Content)
	assert.InDelta(t, 0.031, conv.Cost.Total, 1e-12)
	require.NotNil(t, conv.Rating)
	assert.Equal(t, 8.0, *conv.Rating)
	assert.Equal(t, "note", conv.CorrectionNote)

	// Unknown IDs: appends are dropped, keyed mutations report ErrNotFound.
	s.AppendTurn("missing", RoleUser, "x")
	assert.ErrorIs(t, s.SetRating("missing", "alice", 5), ErrNotFound)
	assert.ErrorIs(t, s.SetCorrection("missing", "x"), ErrNotFound)
	assert.Equal(t, 1, s.Len())
}

func TestStore_SaveConcurrentWithAppend(t *testing.T) {
	s := testStore(t)
	s.Put("a", NewConversation("alice", "s", "en", "q", "g"))
	s.Put("b", NewConversation("bob", "s", "en", "q", "g"))

	// Saving one conversation must not observe another mid-append. Run the
	// two sides concurrently; the race detector catches any unlocked write.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			s.AppendTurn("b", RoleUser, "more")
			s.AddCost("b", 0.001, 0.001, 0)
		}
	}()
	for i := 0; i < 50; i++ {
		require.NoError(t, s.Save())
	}
	wg.Wait()

	conv, ok := s.Get("b")
	require.True(t, ok)
	assert.Len(t, conv.Turns, 52)
}

type captureAlerter struct {
	alerts []string
}

func (c *captureAlerter) SendOperatorAlert(_ context.Context, text string) error {
	c.alerts = append(c.alerts, text)
	return nil
}

func TestStore_CheckPressure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conversations.json")
	// Tiny capacity so any saved content exceeds the 80% mark.
	s := Open(path, "", 0.0000001, nil)
	s.Put("t", NewConversation("a", "s", "en", "q", "g"))
	require.NoError(t, s.Save())

	alerter := &captureAlerter{}
	s.CheckPressure(context.Background(), alerter)
	require.Len(t, alerter.alerts, 1)
	assert.Contains(t, alerter.alerts[0], "storage space")
}

func TestStore_CheckPressure_BelowThreshold(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Save())

	alerter := &captureAlerter{}
	s.CheckPressure(context.Background(), alerter)
	assert.Empty(t, alerter.alerts)
}

func TestConversation_SetRating(t *testing.T) {
	conv := NewConversation("alice", "s", "en", "q", "g")

	assert.ErrorIs(t, conv.SetRating("bob", 7), ErrNotAuthor)
	assert.Nil(t, conv.Rating)

	assert.ErrorIs(t, conv.SetRating("alice", 15), ErrRatingRange)
	assert.ErrorIs(t, conv.SetRating("alice", 0.5), ErrRatingRange)
	assert.Nil(t, conv.Rating)

	require.NoError(t, conv.SetRating("alice", 7))
	require.NotNil(t, conv.Rating)
	assert.Equal(t, 7.0, *conv.Rating)

	assert.ErrorIs(t, conv.SetRating("alice", 9), ErrRatingSet)
	assert.Equal(t, 7.0, *conv.Rating)
}

func TestConversation_SeedTurns(t *testing.T) {
	conv := NewConversation("alice", "s", "en", "opening", "greeting")
	require.Len(t, conv.Turns, 2)
	assert.Equal(t, RoleUser, conv.Turns[0].Role)
	assert.Equal(t, "opening", conv.Turns[0].Content)
	assert.Equal(t, RoleAssistant, conv.Turns[1].Role)
	assert.Equal(t, 1, conv.UserTurns())
}

func TestCost_TotalInvariant(t *testing.T) {
	var c Cost
	steps := [][3]float64{
		{0.001, 0.002, 0},
		{0.5, 0.25, 0.1},
		{0, 0, 0.0255},
	}
	for _, step := range steps {
		c.Add(step[0], step[1], step[2])
		assert.InDelta(t, c.Input+c.Output+c.Image, c.Total, 1e-12)
	}
}
