// internal/game/round.go
package game

import (
	"strings"

	"github.com/google/uuid"

	"github.com/joachimageron/WhoIsIt-sub003/internal/models"
)

// Phase is the current step of the question/answer/guess cycle. Phases
// move strictly forward; only a completed answer returns the round to
// awaiting_question.
type Phase string

const (
	PhaseAwaitingQuestion Phase = "awaiting_question"
	PhaseAwaitingAnswer   Phase = "awaiting_answer"
	PhaseGuessResolution  Phase = "awaiting_guess_resolution"
)

// AnswerValue is a recorded yes/no answer. "unknown" is a legal answer and
// completes the turn exactly like yes or no.
type AnswerValue string

const (
	AnswerYes     AnswerValue = "yes"
	AnswerNo      AnswerValue = "no"
	AnswerUnknown AnswerValue = "unknown"
)

// Valid reports whether v is one of the accepted answer values.
func (v AnswerValue) Valid() bool {
	return v == AnswerYes || v == AnswerNo || v == AnswerUnknown
}

// Question is one asked yes/no question. Immutable once answered; a question
// abandoned by turn expiry keeps an empty Answer forever.
type Question struct {
	ID       uuid.UUID   `json:"id"`
	AskerID  uuid.UUID   `json:"askerId"`
	TargetID uuid.UUID   `json:"targetId"`
	Text     string      `json:"text"`
	Answer   AnswerValue `json:"answer,omitempty"`
}

// Guess is one resolved final guess. Terminal for its target if correct,
// terminal for the guesser if not.
type Guess struct {
	ID                uuid.UUID `json:"id"`
	GuesserID         uuid.UUID `json:"guesserId"`
	TargetID          uuid.UUID `json:"targetId"`
	TargetCharacterID string    `json:"targetCharacterId"`
	Correct           bool      `json:"correct"`
}

// GuessOutcome reports the effects of a resolved guess.
type GuessOutcome struct {
	Guess        *Guess
	EliminatedID uuid.UUID
	// RoundOver is set when the guess ended the game; WinnerID then names
	// the winner.
	RoundOver bool
	WinnerID  uuid.UUID
}

// Round is the question/answer/guess cycle of an active room. It is the
// single place turn and phase legality is decided: each transition
// validates every precondition before mutating anything, so a returned
// error guarantees the round (and the roster it was handed) is unchanged.
// All methods assume the owning room's lock is held.
type Round struct {
	ID          uuid.UUID
	TurnOrder   []uuid.UUID
	ActiveIndex int
	Phase       Phase

	PendingQuestion *Question
	Questions       []*Question
	Guesses         []*Guess
}

// NewRound starts a round with the given turn order (join order at room
// activation; it never changes afterwards).
func NewRound(turnOrder []uuid.UUID) *Round {
	order := make([]uuid.UUID, len(turnOrder))
	copy(order, turnOrder)
	return &Round{
		ID:        uuid.New(),
		TurnOrder: order,
		Phase:     PhaseAwaitingQuestion,
	}
}

// ActivePlayerID is the player whose turn it is: the only player allowed to
// ask or guess.
func (r *Round) ActivePlayerID() uuid.UUID {
	if len(r.TurnOrder) == 0 {
		return uuid.Nil
	}
	return r.TurnOrder[r.ActiveIndex]
}

// ActiveActorID is the player expected to act right now. During
// awaiting_answer that is the asked player, not the turn holder.
func (r *Round) ActiveActorID() uuid.UUID {
	if r.Phase == PhaseAwaitingAnswer && r.PendingQuestion != nil {
		return r.PendingQuestion.TargetID
	}
	return r.ActivePlayerID()
}

// inTurnOrder reports whether id holds a seat in this round.
func (r *Round) inTurnOrder(id uuid.UUID) bool {
	for _, pid := range r.TurnOrder {
		if pid == id {
			return true
		}
	}
	return false
}

// SubmitQuestion records a question from the active player to a living
// opponent and hands the floor to that opponent for the answer.
func (r *Round) SubmitQuestion(askerID, targetID uuid.UUID, text string, alive func(uuid.UUID) bool) (*Question, error) {
	if r.Phase != PhaseAwaitingQuestion {
		return nil, InvalidTransitionf("cannot ask a question during phase %s", r.Phase)
	}
	if askerID != r.ActivePlayerID() {
		return nil, Forbiddenf("it is not your turn to ask")
	}
	if targetID == askerID {
		return nil, InvalidTransitionf("cannot ask yourself a question")
	}
	if !r.inTurnOrder(targetID) {
		return nil, NotFoundf("target player %s is not in this round", targetID)
	}
	if !alive(targetID) {
		return nil, InvalidTransitionf("target player is eliminated")
	}
	if strings.TrimSpace(text) == "" {
		return nil, InvalidTransitionf("question text is empty")
	}

	q := &Question{
		ID:       uuid.New(),
		AskerID:  askerID,
		TargetID: targetID,
		Text:     text,
	}
	r.PendingQuestion = q
	r.Questions = append(r.Questions, q)
	r.Phase = PhaseAwaitingAnswer
	return q, nil
}

// SubmitAnswer records the answer to the pending question and completes the
// turn: the floor returns to awaiting_question with the next non-eliminated
// player in turn order active.
func (r *Round) SubmitAnswer(answererID, questionID uuid.UUID, value AnswerValue, alive func(uuid.UUID) bool) (*Question, error) {
	if r.Phase != PhaseAwaitingAnswer || r.PendingQuestion == nil {
		return nil, InvalidTransitionf("no question is awaiting an answer")
	}
	q := r.PendingQuestion
	if questionID != q.ID {
		return nil, NotFoundf("question %s is not the pending question", questionID)
	}
	if answererID != q.TargetID {
		return nil, Forbiddenf("only the asked player may answer")
	}
	if !value.Valid() {
		return nil, InvalidTransitionf("answer must be yes, no, or unknown")
	}

	q.Answer = value
	r.PendingQuestion = nil
	r.Phase = PhaseAwaitingQuestion
	r.advance(alive)
	return q, nil
}

// SubmitGuess resolves a final guess from the active player against a
// living opponent. A correct guess eliminates the target and ends the game
// with the guesser as winner; a wrong guess eliminates the guesser, and
// play continues if at least two players survive. Eliminations flow through
// here and nowhere else.
func (r *Round) SubmitGuess(guesserID, targetID uuid.UUID, characterID string, lookup func(uuid.UUID) *models.Player) (*GuessOutcome, error) {
	if r.Phase != PhaseAwaitingQuestion {
		return nil, InvalidTransitionf("cannot guess during phase %s", r.Phase)
	}
	if guesserID != r.ActivePlayerID() {
		return nil, Forbiddenf("it is not your turn to guess")
	}
	if targetID == guesserID {
		return nil, InvalidTransitionf("cannot guess your own character")
	}
	if !r.inTurnOrder(targetID) {
		return nil, NotFoundf("target player %s is not in this round", targetID)
	}
	target := lookup(targetID)
	if target == nil {
		return nil, NotFoundf("target player %s not found", targetID)
	}
	if target.Eliminated {
		return nil, InvalidTransitionf("target player is eliminated")
	}
	guesser := lookup(guesserID)
	if guesser == nil {
		return nil, NotFoundf("guessing player %s not found", guesserID)
	}
	if characterID == "" {
		return nil, InvalidTransitionf("guess names no character")
	}

	// All preconditions hold; everything below commits.
	g := &Guess{
		ID:                uuid.New(),
		GuesserID:         guesserID,
		TargetID:          targetID,
		TargetCharacterID: characterID,
		Correct:           target.SecretCharacterID == characterID,
	}
	r.Guesses = append(r.Guesses, g)
	r.Phase = PhaseGuessResolution

	out := &GuessOutcome{Guess: g}
	alive := func(id uuid.UUID) bool {
		p := lookup(id)
		return p != nil && !p.Eliminated
	}

	if g.Correct {
		target.Eliminated = true
		out.EliminatedID = targetID
		out.RoundOver = true
		out.WinnerID = guesserID
		return out, nil
	}

	guesser.Eliminated = true
	out.EliminatedID = guesserID
	if survivors := r.survivors(alive); len(survivors) <= 1 {
		out.RoundOver = true
		if len(survivors) == 1 {
			out.WinnerID = survivors[0]
		}
		return out, nil
	}

	// Play continues without the guesser.
	r.Phase = PhaseAwaitingQuestion
	r.advance(alive)
	return out, nil
}

// ExpireTurn is the server-forced pass: the floor advances with no answer
// recorded, identical downstream to a completed answer. An unanswered
// pending question stays in the history with an empty answer. Returns the
// player whose turn expired.
func (r *Round) ExpireTurn(alive func(uuid.UUID) bool) uuid.UUID {
	expired := r.ActiveActorID()
	r.PendingQuestion = nil
	r.Phase = PhaseAwaitingQuestion
	r.advance(alive)
	return expired
}

// advance moves ActiveIndex to the next non-eliminated player in turn
// order: a forward scan wrapping modulo the order length, always landing on
// a different player when one survives.
func (r *Round) advance(alive func(uuid.UUID) bool) {
	n := len(r.TurnOrder)
	for i := 1; i <= n; i++ {
		idx := (r.ActiveIndex + i) % n
		if alive(r.TurnOrder[idx]) {
			r.ActiveIndex = idx
			return
		}
	}
}

// survivors lists the non-eliminated players in turn order.
func (r *Round) survivors(alive func(uuid.UUID) bool) []uuid.UUID {
	var out []uuid.UUID
	for _, id := range r.TurnOrder {
		if alive(id) {
			out = append(out, id)
		}
	}
	return out
}
