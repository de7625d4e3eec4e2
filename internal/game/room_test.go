// internal/game/room_test.go
package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joachimageron/WhoIsIt-sub003/internal/auth"
	"github.com/joachimageron/WhoIsIt-sub003/internal/models"
)

// mockBroadcaster captures room events for test assertions.
type mockBroadcaster struct {
	mu           sync.Mutex
	allEvents    []Event
	playerEvents map[uuid.UUID][]Event
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{playerEvents: make(map[uuid.UUID][]Event)}
}

func (mb *mockBroadcaster) broadcastFn(ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = append(mb.allEvents, ev)
}

func (mb *mockBroadcaster) broadcastToPlayerFn(playerID uuid.UUID, ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.playerEvents[playerID] = append(mb.playerEvents[playerID], ev)
}

func (mb *mockBroadcaster) clear() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = nil
	mb.playerEvents = make(map[uuid.UUID][]Event)
}

func (mb *mockBroadcaster) findEventByType(eventType EventType) *Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for i := len(mb.allEvents) - 1; i >= 0; i-- {
		if mb.allEvents[i].Type == eventType {
			return &mb.allEvents[i]
		}
	}
	return nil
}

func (mb *mockBroadcaster) countEventsByType(eventType EventType) int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	n := 0
	for _, ev := range mb.allEvents {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func (mb *mockBroadcaster) lastPlayerEvent(playerID uuid.UUID) *Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	events := mb.playerEvents[playerID]
	if len(events) == 0 {
		return nil
	}
	return &events[len(events)-1]
}

// testCharacterIDs is a catalog large enough for any test roster.
func testCharacterIDs() []string {
	ids := make([]string, 8)
	for i := range ids {
		ids[i] = "char-0" + string(rune('1'+i))
	}
	return ids
}

// setupTestRoom seats numPlayers guest players, starts the game, and wires a
// mock broadcaster. Turn order is join order, so players[0] (the host) acts
// first. turnDuration of zero disables the countdown.
func setupTestRoom(t *testing.T, numPlayers int, turnDuration time.Duration) (*Room, []*models.Player, *mockBroadcaster) {
	t.Helper()

	rm := NewRoom("TEST", NewTurnClock())
	rm.TurnDuration = turnDuration
	mb := newMockBroadcaster()
	rm.BroadcastFn = mb.broadcastFn
	rm.BroadcastToPlayerFn = mb.broadcastToPlayerFn

	players := make([]*models.Player, numPlayers)
	for i := 0; i < numPlayers; i++ {
		role := models.RolePlayer
		if i == 0 {
			role = models.RoleHost
		}
		p, err := rm.AddPlayer("Player"+string(rune('A'+i)), nil, role)
		require.NoError(t, err)
		players[i] = p
	}

	caller := auth.Guest{GuestID: uuid.New()}
	require.NoError(t, rm.StartGame(caller, players[0].ID, testCharacterIDs()))
	mb.clear()
	return rm, players, mb
}

func guest() auth.Identity {
	return auth.Guest{GuestID: uuid.New()}
}

func TestAddPlayerRejectedAfterStart(t *testing.T) {
	rm, _, _ := setupTestRoom(t, 2, 0)
	_, err := rm.AddPlayer("Latecomer", nil, models.RolePlayer)
	require.Error(t, err)
	assert.Equal(t, CodeInvalidTransition, CodeOf(err))
}

func TestStartGameValidation(t *testing.T) {
	t.Run("only the host may start", func(t *testing.T) {
		rm := NewRoom("TEST", NewTurnClock())
		rm.BroadcastFn = func(Event) {}
		rm.BroadcastToPlayerFn = func(uuid.UUID, Event) {}
		_, err := rm.AddPlayer("Host", nil, models.RoleHost)
		require.NoError(t, err)
		other, err := rm.AddPlayer("Other", nil, models.RolePlayer)
		require.NoError(t, err)

		err = rm.StartGame(guest(), other.ID, testCharacterIDs())
		require.Error(t, err)
		assert.Equal(t, CodeForbidden, CodeOf(err))
		assert.Equal(t, StatusLobby, rm.Status)
	})

	t.Run("needs at least two players", func(t *testing.T) {
		rm := NewRoom("TEST", NewTurnClock())
		rm.BroadcastFn = func(Event) {}
		rm.BroadcastToPlayerFn = func(uuid.UUID, Event) {}
		host, err := rm.AddPlayer("Host", nil, models.RoleHost)
		require.NoError(t, err)

		err = rm.StartGame(guest(), host.ID, testCharacterIDs())
		require.Error(t, err)
		assert.Equal(t, CodeInvalidTransition, CodeOf(err))
	})

	t.Run("character set must cover the roster", func(t *testing.T) {
		rm := NewRoom("TEST", NewTurnClock())
		rm.BroadcastFn = func(Event) {}
		rm.BroadcastToPlayerFn = func(uuid.UUID, Event) {}
		host, err := rm.AddPlayer("Host", nil, models.RoleHost)
		require.NoError(t, err)
		_, err = rm.AddPlayer("Other", nil, models.RolePlayer)
		require.NoError(t, err)

		err = rm.StartGame(guest(), host.ID, []string{"char-01"})
		require.Error(t, err)
		assert.Equal(t, CodeInvalidTransition, CodeOf(err))
	})

	t.Run("cannot start twice", func(t *testing.T) {
		rm, players, _ := setupTestRoom(t, 2, 0)
		err := rm.StartGame(guest(), players[0].ID, testCharacterIDs())
		require.Error(t, err)
		assert.Equal(t, CodeInvalidTransition, CodeOf(err))
	})
}

func TestStartGameDealsDistinctSecrets(t *testing.T) {
	rm, players, _ := setupTestRoom(t, 4, 0)

	seen := make(map[string]bool)
	for _, p := range players {
		require.NotEmpty(t, p.SecretCharacterID)
		assert.False(t, seen[p.SecretCharacterID], "secrets must be distinct")
		seen[p.SecretCharacterID] = true
	}
	assert.Equal(t, StatusActive, rm.Status)
	assert.Equal(t, 1, rm.TurnID)
}

func TestAskAnswerGuessScenario(t *testing.T) {
	rm, players, mb := setupTestRoom(t, 2, 0)
	p1, p2 := players[0], players[1]

	q, err := rm.HandleAskQuestion(guest(), p1.ID, p2.ID, "Does your character wear glasses?")
	require.NoError(t, err)

	ev := mb.findEventByType(EventQuestionAsked)
	require.NotNil(t, ev)
	assert.Equal(t, p1.ID, ev.ActorID)
	assert.Equal(t, q.ID.String(), ev.Payload["questionId"])

	_, err = rm.HandleSubmitAnswer(guest(), p2.ID, q.ID, AnswerNo)
	require.NoError(t, err)
	require.NotNil(t, mb.findEventByType(EventAnswerSubmitted))
	assert.Equal(t, p2.ID, rm.Round.ActivePlayerID())

	out, err := rm.HandleSubmitGuess(guest(), p2.ID, p1.ID, p1.SecretCharacterID)
	require.NoError(t, err)
	assert.True(t, out.Guess.Correct)
	assert.True(t, out.RoundOver)

	assert.Equal(t, StatusFinished, rm.Status)
	assert.Equal(t, p2.ID, rm.WinnerID)

	over := mb.findEventByType(EventGameOver)
	require.NotNil(t, over)
	assert.Equal(t, p2.ID.String(), over.Payload["winnerId"])
}

func TestRejectedActionLeavesStateUntouched(t *testing.T) {
	rm, players, mb := setupTestRoom(t, 2, 0)
	before := rm.StateSnapshot(uuid.Nil)
	mb.clear()

	// Answer with no pending question.
	_, err := rm.HandleSubmitAnswer(guest(), players[1].ID, uuid.New(), AnswerYes)
	require.Error(t, err)
	assert.Equal(t, CodeInvalidTransition, CodeOf(err))

	// Ask out of turn.
	_, err = rm.HandleAskQuestion(guest(), players[1].ID, players[0].ID, "q?")
	require.Error(t, err)
	assert.Equal(t, CodeForbidden, CodeOf(err))

	after := rm.StateSnapshot(uuid.Nil)
	assert.Equal(t, before, after, "rejected actions must not change observable state")
	assert.Empty(t, mb.allEvents, "rejected actions broadcast nothing")
}

func TestGuessWrongEliminatesGuesserAndContinues(t *testing.T) {
	rm, players, mb := setupTestRoom(t, 3, 0)

	out, err := rm.HandleSubmitGuess(guest(), players[0].ID, players[1].ID, "char-nope")
	require.NoError(t, err)
	assert.False(t, out.Guess.Correct)
	assert.False(t, out.RoundOver)

	assert.Equal(t, StatusActive, rm.Status)
	assert.True(t, players[0].Eliminated)
	assert.Equal(t, players[1].ID, rm.Round.ActivePlayerID())
	require.NotNil(t, mb.findEventByType(EventGuessResolved))
	assert.Nil(t, mb.findEventByType(EventGameOver))
}

func TestGuessWrongHeadToHeadEndsGame(t *testing.T) {
	rm, players, mb := setupTestRoom(t, 2, 0)

	out, err := rm.HandleSubmitGuess(guest(), players[0].ID, players[1].ID, "char-nope")
	require.NoError(t, err)
	assert.True(t, out.RoundOver)
	assert.Equal(t, players[1].ID, out.WinnerID)
	assert.Equal(t, StatusFinished, rm.Status)
	require.NotNil(t, mb.findEventByType(EventGameOver))
}

// failingCatalog simulates a content service outage.
type failingCatalog struct{}

func (failingCatalog) CharacterExists(context.Context, string) (bool, error) {
	return false, errors.New("catalog down")
}

// mapCatalog validates against a fixed id set.
type mapCatalog map[string]bool

func (m mapCatalog) CharacterExists(_ context.Context, id string) (bool, error) {
	return m[id], nil
}

func TestGuessCatalogValidation(t *testing.T) {
	t.Run("unknown character rejected", func(t *testing.T) {
		rm, players, _ := setupTestRoom(t, 2, 0)
		rm.Catalog = mapCatalog{players[1].SecretCharacterID: true}

		_, err := rm.HandleSubmitGuess(guest(), players[0].ID, players[1].ID, "char-bogus")
		require.Error(t, err)
		assert.Equal(t, CodeNotFound, CodeOf(err))
		assert.Equal(t, StatusActive, rm.Status)
		assert.False(t, players[0].Eliminated)
	})

	t.Run("catalog outage accepts the guess unvalidated", func(t *testing.T) {
		rm, players, _ := setupTestRoom(t, 2, 0)
		rm.Catalog = failingCatalog{}

		out, err := rm.HandleSubmitGuess(guest(), players[0].ID, players[1].ID, players[1].SecretCharacterID)
		require.NoError(t, err)
		assert.True(t, out.Guess.Correct)
	})
}

func TestTurnExpiryAdvancesTurn(t *testing.T) {
	rm, players, mb := setupTestRoom(t, 2, 60*time.Millisecond)

	require.Eventually(t, func() bool {
		return mb.findEventByType(EventTurnExpired) != nil
	}, time.Second, 10*time.Millisecond)

	// Expiries mutate and broadcast under the room lock, so holding it gives
	// a consistent view even if further fires are queued.
	rm.Mu.Lock()
	defer rm.Mu.Unlock()
	expiries := mb.countEventsByType(EventTurnExpired)
	require.GreaterOrEqual(t, expiries, 1)
	assert.Equal(t, expiries+1, rm.TurnID, "each expiry advances exactly one turn")
	assert.Equal(t, players[expiries%2].ID, rm.Round.ActivePlayerID(), "expiry passes the floor")
	assert.Equal(t, PhaseAwaitingQuestion, rm.Round.Phase)

	mb.mu.Lock()
	first := mb.allEvents[0]
	mb.mu.Unlock()
	assert.Equal(t, EventTurnExpired, first.Type)
	assert.Equal(t, players[0].ID, first.ActorID, "the opening turn holder timed out first")

	rm.clock.Cancel(rm.Code)
}

func TestAnswerBeatsTimerExactlyOneAdvance(t *testing.T) {
	rm, players, mb := setupTestRoom(t, 2, 300*time.Millisecond)

	q, err := rm.HandleAskQuestion(guest(), players[0].ID, players[1].ID, "Quick one?")
	require.NoError(t, err)
	_, err = rm.HandleSubmitAnswer(guest(), players[1].ID, q.ID, AnswerYes)
	require.NoError(t, err)

	// Disarm the countdown for the new turn, then let every deadline armed
	// before the answer pass; their fires must all be dropped as stale.
	rm.Mu.Lock()
	rm.clock.Cancel(rm.Code)
	rm.Mu.Unlock()
	time.Sleep(400 * time.Millisecond)

	rm.Mu.Lock()
	defer rm.Mu.Unlock()
	assert.Zero(t, mb.countEventsByType(EventTurnExpired), "a completed answer suppresses the pending expiry")
	assert.Equal(t, players[1].ID, rm.Round.ActivePlayerID())
	assert.Equal(t, PhaseAwaitingQuestion, rm.Round.Phase)
	assert.Equal(t, 3, rm.TurnID)
}

func TestDisconnectKeepsGameRunning(t *testing.T) {
	rm, players, mb := setupTestRoom(t, 2, 0)

	rm.HandleDisconnect(players[1].ID)
	assert.False(t, players[1].Connected)
	require.NotNil(t, mb.findEventByType(EventPlayerDisconnected))
	assert.Equal(t, StatusActive, rm.Status)

	// A disconnected player's seat still answers turn legality checks.
	q, err := rm.HandleAskQuestion(guest(), players[0].ID, players[1].ID, "Still there?")
	require.NoError(t, err)
	assert.Equal(t, players[1].ID, q.TargetID)

	// Repeated disconnects are no-ops.
	mb.clear()
	rm.HandleDisconnect(players[1].ID)
	assert.Empty(t, mb.allEvents)
}

func TestReconnectSendsFullSnapshot(t *testing.T) {
	rm, players, mb := setupTestRoom(t, 2, 0)
	p1, p2 := players[0], players[1]

	q, err := rm.HandleAskQuestion(guest(), p1.ID, p2.ID, "Mustache?")
	require.NoError(t, err)

	rm.HandleDisconnect(p2.ID)
	mb.clear()

	_, err = rm.HandleReconnect(guest(), p2.ID)
	require.NoError(t, err)
	require.NotNil(t, mb.findEventByType(EventPlayerReconnected))

	sync := mb.lastPlayerEvent(p2.ID)
	require.NotNil(t, sync)
	require.Equal(t, EventRoomState, sync.Type)
	require.NotNil(t, sync.State)

	expected := rm.StateSnapshot(p2.ID)
	assert.Equal(t, expected, *sync.State, "reconnect snapshot matches live state")
	require.NotNil(t, sync.State.Round)
	assert.Equal(t, PhaseAwaitingAnswer, sync.State.Round.Phase)
	require.NotNil(t, sync.State.Round.PendingQuestion)
	assert.Equal(t, q.ID, sync.State.Round.PendingQuestion.ID)

	// The returning player can act immediately.
	_, err = rm.HandleSubmitAnswer(guest(), p2.ID, q.ID, AnswerYes)
	require.NoError(t, err)
}

func TestSnapshotHidesOtherSecrets(t *testing.T) {
	rm, players, _ := setupTestRoom(t, 2, 0)

	snap := rm.StateSnapshot(players[0].ID)
	require.Len(t, snap.Players, 2)
	for _, pv := range snap.Players {
		if pv.ID == players[0].ID {
			assert.Equal(t, players[0].SecretCharacterID, pv.SecretCharacterID)
		} else {
			assert.Empty(t, pv.SecretCharacterID, "opponent secrets never leave the server")
		}
	}
	assert.Nil(t, snap.Secrets)
}

func TestLeaveInLobbyReleasesSeat(t *testing.T) {
	rm := NewRoom("TEST", NewTurnClock())
	rm.BroadcastFn = func(Event) {}
	rm.BroadcastToPlayerFn = func(uuid.UUID, Event) {}
	host, err := rm.AddPlayer("Host", nil, models.RoleHost)
	require.NoError(t, err)
	other, err := rm.AddPlayer("Other", nil, models.RolePlayer)
	require.NoError(t, err)

	require.NoError(t, rm.HandleLeave(guest(), other.ID))
	assert.Len(t, rm.Players, 1)
	assert.Equal(t, host.ID, rm.Players[0].ID)
}

func TestLeaveWhileActiveKeepsSeat(t *testing.T) {
	rm, players, _ := setupTestRoom(t, 2, 0)

	require.NoError(t, rm.HandleLeave(guest(), players[1].ID))
	assert.Len(t, rm.Players, 2, "active rosters are frozen")
	assert.False(t, players[1].Connected)
	assert.Equal(t, StatusActive, rm.Status)
}

func TestOnGameEndFires(t *testing.T) {
	rm, players, _ := setupTestRoom(t, 2, 0)

	var gotCode string
	var gotWinner uuid.UUID
	rm.OnGameEnd = func(roomCode string, winnerID uuid.UUID) {
		gotCode = roomCode
		gotWinner = winnerID
	}

	_, err := rm.HandleSubmitGuess(guest(), players[0].ID, players[1].ID, players[1].SecretCharacterID)
	require.NoError(t, err)
	assert.Equal(t, "TEST", gotCode)
	assert.Equal(t, players[0].ID, gotWinner)
}

func TestActionsRejectedOnFinishedRoom(t *testing.T) {
	rm, players, _ := setupTestRoom(t, 2, 0)
	_, err := rm.HandleSubmitGuess(guest(), players[0].ID, players[1].ID, players[1].SecretCharacterID)
	require.NoError(t, err)
	require.Equal(t, StatusFinished, rm.Status)

	_, err = rm.HandleAskQuestion(guest(), players[1].ID, players[0].ID, "q?")
	require.Error(t, err)
	assert.Equal(t, CodeInvalidTransition, CodeOf(err))
}
