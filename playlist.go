package main

import (
	"slices"

	"github.com/google/uuid"
)

// playlist holds the mutable queue of upcoming questions and the static
// bank of reference questions. The room actor owns it; it survives game
// resets.
type playlist struct {
	Upcoming []Question `json:"upcoming"`
	Bank     []Question `json:"bank"`
}

// historyEntry is the read-only admin projection of one played (or
// reachable) question.
type historyEntry struct {
	Index    int           `json:"index"`
	Question Question      `json:"question"`
	Answered bool          `json:"answered"`
	Result   *answerResult `json:"result,omitempty"`
}

func (p *playlist) setUpcoming(qs []Question) {
	p.Upcoming = normalizeQuestions(qs)
}

func (p *playlist) setBank(qs []Question) {
	p.Bank = normalizeQuestions(qs)
}

// repeat appends a copy of a historical question to the upcoming queue.
// The copy gets a fresh id when it would otherwise collide with an entry
// already staged.
func (p *playlist) repeat(q Question) {
	q = normalizeQuestion(q)
	if slices.ContainsFunc(p.Upcoming, func(u Question) bool { return u.ID == q.ID }) {
		q.ID = uuid.NewString()
	}
	p.Upcoming = append(p.Upcoming, q)
}

// consume removes the question with the given id from the upcoming queue.
// Removing an absent id is a no-op, so the call is idempotent.
func (p *playlist) consume(id string) {
	p.Upcoming = slices.DeleteFunc(p.Upcoming, func(q Question) bool { return q.ID == id })
}

// reseed replaces the upcoming queue with the frozen question list of a
// reset game, restoring entries consumed while it ran.
func (p *playlist) reseed(frozen []Question) {
	p.Upcoming = slices.Clone(frozen)
}

// history projects the frozen question list up to the furthest index the
// game reached; every index once the game is finished. Idle games have no
// history.
func (p *playlist) history(g *gameState) []historyEntry {
	if g == nil || g.CurrentIndex < 0 && g.Status != statusFinished {
		return nil
	}

	limit := g.CurrentIndex
	if g.Status == statusFinished {
		limit = len(g.Questions) - 1
	}

	out := make([]historyEntry, 0, limit+1)
	for i := 0; i <= limit && i < len(g.Questions); i++ {
		entry := historyEntry{
			Index:    i,
			Question: g.Questions[i],
		}
		if i < len(g.PerQuestion) {
			entry.Answered = g.PerQuestion[i].Answered
			entry.Result = g.PerQuestion[i].Result
		}
		out = append(out, entry)
	}

	return out
}
