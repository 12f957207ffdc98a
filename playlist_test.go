package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetUpcomingNormalizes(t *testing.T) {
	p := &playlist{}

	p.setUpcoming([]Question{
		{Text: "a", Answer: "b", Points: 0},
		{ID: "q2", Text: "c", Answer: "d", Points: 500},
		{ID: "q3", Text: "e", Answer: "f", Points: 42},
	})

	require.Len(t, p.Upcoming, 3)
	assert.NotEmpty(t, p.Upcoming[0].ID, "missing ids are assigned")
	assert.Equal(t, 1, p.Upcoming[0].Points)
	assert.Equal(t, 100, p.Upcoming[1].Points)
	assert.Equal(t, 42, p.Upcoming[2].Points)
}

func TestConsumeIsIdempotent(t *testing.T) {
	p := &playlist{}
	p.setUpcoming(testQuestions())

	p.consume("q1")
	require.Len(t, p.Upcoming, 1)
	assert.Equal(t, "q2", p.Upcoming[0].ID)

	// Consuming an absent id changes nothing.
	p.consume("q1")
	p.consume("nope")
	assert.Len(t, p.Upcoming, 1)
}

func TestRepeatReidentifiesOnCollision(t *testing.T) {
	p := &playlist{}
	q := Question{ID: "q1", Text: "a", Answer: "b", Points: 10}

	p.repeat(q)
	p.repeat(q)

	require.Len(t, p.Upcoming, 2)
	assert.Equal(t, "q1", p.Upcoming[0].ID)
	assert.NotEqual(t, "q1", p.Upcoming[1].ID, "second copy gets a fresh id")
	assert.Equal(t, q.Text, p.Upcoming[1].Text)
}

func TestReseedRestoresFrozenSet(t *testing.T) {
	p := &playlist{}
	p.setUpcoming(testQuestions())

	frozen := append([]Question(nil), p.Upcoming...)

	p.consume("q1")
	p.consume("q2")
	require.Empty(t, p.Upcoming)

	p.reseed(frozen)
	assert.Equal(t, frozen, p.Upcoming)
}

func TestHistoryProjection(t *testing.T) {
	p := &playlist{}

	g := newGameState()
	assert.Nil(t, p.history(g), "idle games have no history")

	require.True(t, g.start([]Question{
		{ID: "q1", Answer: "a", Points: 1},
		{ID: "q2", Answer: "b", Points: 1},
		{ID: "q3", Answer: "c", Points: 1},
	}))

	require.True(t, g.buzz("alice"))
	require.True(t, g.submit("alice", "a"))
	require.True(t, g.next())

	// Two questions reached: the answered one and the current one.
	entries := p.history(g)
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].Index)
	assert.True(t, entries[0].Answered)
	require.NotNil(t, entries[0].Result)
	assert.Equal(t, "alice", entries[0].Result.UserID)
	assert.False(t, entries[1].Answered)

	// Finishing exposes every frozen question.
	require.True(t, g.finish())
	entries = p.history(g)
	assert.Len(t, entries, 3)
}

func TestNormalizeQuestionClampsPoints(t *testing.T) {
	assert.Equal(t, 1, normalizeQuestion(Question{Points: -5}).Points)
	assert.Equal(t, 1, normalizeQuestion(Question{Points: 0}).Points)
	assert.Equal(t, 100, normalizeQuestion(Question{Points: 101}).Points)
	assert.Equal(t, 50, normalizeQuestion(Question{Points: 50}).Points)

	q := normalizeQuestion(Question{Text: "x", Answer: "y", Points: 3})
	assert.NotEmpty(t, q.ID)

	keep := normalizeQuestion(Question{ID: "fixed", Points: 3})
	assert.Equal(t, "fixed", keep.ID)
}
