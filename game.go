package main

import (
	"math"
	"slices"
	"strings"
)

const (
	statusIdle      = "idle"
	statusRunning   = "running"
	statusAwaitNext = "await-next"
	statusFinished  = "finished"
)

// answerResult records the outcome of one submitted answer.
type answerResult struct {
	UserID  string `json:"userId"`
	Correct bool   `json:"correct"`
	Delta   int    `json:"delta"`
	Answer  string `json:"answerText"`
}

// questionOutcome is the per-question history slot.
type questionOutcome struct {
	Answered bool          `json:"answered"`
	Result   *answerResult `json:"result,omitempty"`
}

// gameState is the authoritative buzzer state machine for one room. All
// mutations happen on the owning room's goroutine; invalid or out-of-turn
// operations are silent no-ops since the protocol is cooperative and only
// the server enforces rules.
type gameState struct {
	Status           string            `json:"status"`
	Questions        []Question        `json:"questions"`
	CurrentIndex     int               `json:"currentIndex"`
	BuzzQueue        []string          `json:"buzzQueue"`
	CurrentResponder string            `json:"currentResponder,omitempty"`
	Scores           map[string]int    `json:"scores"`
	LastResult       *answerResult     `json:"lastResult,omitempty"`
	PerQuestion      []questionOutcome `json:"perQuestion"`
	Answered         map[string]bool   `json:"answeredThisQuestion"`
}

func newGameState() *gameState {
	return &gameState{
		Status:       statusIdle,
		CurrentIndex: -1,
		Scores:       make(map[string]int),
		Answered:     make(map[string]bool),
	}
}

// normalize repairs zero-value fields after a JSON round trip through
// storage so later mutations never hit a nil map.
func (g *gameState) normalize() {
	if g.Status == "" {
		g.Status = statusIdle
		g.CurrentIndex = -1
	}
	if g.Scores == nil {
		g.Scores = make(map[string]int)
	}
	if g.Answered == nil {
		g.Answered = make(map[string]bool)
	}
}

// start freezes upcoming as the game's question list and moves to the
// first question. Only valid from idle.
func (g *gameState) start(upcoming []Question) bool {
	if g.Status != statusIdle {
		return false
	}

	g.Status = statusRunning
	g.Questions = slices.Clone(upcoming)
	g.CurrentIndex = 0
	g.PerQuestion = make([]questionOutcome, len(g.Questions))
	g.clearRound()

	return true
}

// buzz appends userID to the queue for the current question. Ignored
// outside a running round, after the user has answered, or when already
// queued, so the queue stays set-like.
func (g *gameState) buzz(userID string) bool {
	if g.Status != statusRunning || g.Answered[userID] || slices.Contains(g.BuzzQueue, userID) {
		return false
	}

	g.BuzzQueue = append(g.BuzzQueue, userID)
	if g.CurrentResponder == "" {
		g.CurrentResponder = userID
	}

	return true
}

// submit scores an answer from the current responder. Correct answers earn
// the question's full points; wrong answers cost a penalty that halves
// with each buzz-order rank, floored at one point.
func (g *gameState) submit(userID, text string) bool {
	if g.Status != statusRunning || g.CurrentResponder != userID || g.Answered[userID] {
		return false
	}
	if g.CurrentIndex < 0 || g.CurrentIndex >= len(g.Questions) {
		return false
	}

	q := g.Questions[g.CurrentIndex]
	correct := strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(q.Answer))
	position := slices.Index(g.BuzzQueue, userID) + 1

	delta := q.Points
	if !correct {
		delta = -wrongAnswerPenalty(q.Points, position)
	}

	g.Scores[userID] += delta
	g.LastResult = &answerResult{
		UserID:  userID,
		Correct: correct,
		Delta:   delta,
		Answer:  text,
	}
	g.Answered[userID] = true

	if correct {
		g.endRound()
		return true
	}

	// Promote the next queued user who has not yet answered.
	for i := position; i < len(g.BuzzQueue); i++ {
		if !g.Answered[g.BuzzQueue[i]] {
			g.CurrentResponder = g.BuzzQueue[i]
			return true
		}
	}

	// Nobody left to answer; the round ends without a correct answer.
	g.endRound()

	return true
}

// next advances to the following question, or finishes the game when the
// frozen list is exhausted.
func (g *gameState) next() bool {
	if g.Status != statusAwaitNext {
		return false
	}

	if g.CurrentIndex+1 < len(g.Questions) {
		g.CurrentIndex++
		g.Status = statusRunning
		g.clearRound()
	} else {
		g.Status = statusFinished
	}

	return true
}

// finish forces the game over, preserving scores and history.
func (g *gameState) finish() bool {
	if g.Status == statusFinished {
		return false
	}

	g.Status = statusFinished

	return true
}

// reset returns the game to idle and hands back the frozen question list
// so the caller can re-seed the playlist.
func (g *gameState) reset() []Question {
	frozen := g.Questions

	g.Status = statusIdle
	g.CurrentIndex = -1
	g.Scores = make(map[string]int)
	g.PerQuestion = nil
	g.clearRound()

	return frozen
}

// currentQuestion returns the active question, if any.
func (g *gameState) currentQuestion() (Question, bool) {
	if g.CurrentIndex < 0 || g.CurrentIndex >= len(g.Questions) {
		return Question{}, false
	}
	return g.Questions[g.CurrentIndex], true
}

func (g *gameState) clearRound() {
	g.BuzzQueue = nil
	g.CurrentResponder = ""
	g.LastResult = nil
	g.Answered = make(map[string]bool)
}

func (g *gameState) endRound() {
	g.Status = statusAwaitNext
	g.CurrentResponder = ""
	g.BuzzQueue = nil
	if g.CurrentIndex >= 0 && g.CurrentIndex < len(g.PerQuestion) {
		g.PerQuestion[g.CurrentIndex] = questionOutcome{
			Answered: true,
			Result:   g.LastResult,
		}
	}
}

// wrongAnswerPenalty halves the question's points for each successive
// buzz-order rank (rounded, never below one), so the first to buzz and
// miss loses the most.
func wrongAnswerPenalty(points, position int) int {
	if position < 1 {
		position = 1
	}

	penalty := int(math.Round(float64(points) / math.Pow(2, float64(position-1))))
	if penalty < 1 {
		penalty = 1
	}

	return penalty
}
