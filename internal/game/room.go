// internal/game/room.go
package game

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joachimageron/WhoIsIt-sub003/internal/auth"
	"github.com/joachimageron/WhoIsIt-sub003/internal/models"
)

// RoomStatus is the room lifecycle state.
type RoomStatus string

const (
	StatusLobby    RoomStatus = "lobby"
	StatusActive   RoomStatus = "active"
	StatusFinished RoomStatus = "finished"
)

// DefaultTurnDuration is the countdown applied when no configuration
// overrides it.
const DefaultTurnDuration = 30 * time.Second

// SnapshotStore persists room state best-effort. In-memory state stays
// authoritative during an active session; failed saves are logged and the
// game continues.
type SnapshotStore interface {
	SaveRoomSnapshot(ctx context.Context, code string, state interface{}) error
}

// CharacterCatalog validates that guessed characters exist. A lookup error
// is a collaborator outage, not a rejection.
type CharacterCatalog interface {
	CharacterExists(ctx context.Context, id string) (bool, error)
}

// ActionJournal receives one ordered record per applied action.
type ActionJournal interface {
	Record(ctx context.Context, roomCode string, index int, actor uuid.UUID, action string, payload map[string]interface{}, ts int64) error
}

// OnGameEndFunc runs when a room reaches finished, after the final
// broadcast. The winner is Nil when nobody survived.
type OnGameEndFunc func(roomCode string, winnerID uuid.UUID)

// Room is one game instance and the serialization lane for everything that
// mutates it. All state-changing operations for a room code — join, ask,
// answer, guess, timer expiry, presence — run under Mu, one at a time;
// different rooms proceed fully in parallel. Broadcast callbacks are
// non-blocking, so the lane never waits on network I/O and state is
// committed before any send is attempted.
type Room struct {
	Code    string
	Status  RoomStatus
	Players []*models.Player
	Round   *Round

	WinnerID uuid.UUID

	// TurnID increments on every applied turn transition; timer fires
	// carry the TurnID they were armed for and are dropped when stale.
	TurnID       int
	TurnDuration time.Duration

	Mu sync.Mutex

	clock *TurnClock
	guard Guard

	// Communication callbacks, injected by the transport layer.
	BroadcastFn         func(ev Event)
	BroadcastToPlayerFn func(playerID uuid.UUID, ev Event)
	OnGameEnd           OnGameEndFunc

	// Collaborators. Any of them may be nil.
	Store   SnapshotStore
	Catalog CharacterCatalog
	Journal ActionJournal

	actionIndex int
}

// NewRoom creates a room in lobby state sharing the process-wide clock.
func NewRoom(code string, clock *TurnClock) *Room {
	rm := &Room{
		Code:         code,
		Status:       StatusLobby,
		TurnDuration: DefaultTurnDuration,
		clock:        clock,
	}
	rm.guard = Guard{Players: rm}
	return rm
}

// PlayerByID finds a player in the roster. Implements PlayerResolver.
// Assumes lock is held by caller.
func (rm *Room) PlayerByID(id uuid.UUID) *models.Player {
	for _, p := range rm.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// alive reports whether the player exists and is not eliminated.
// Assumes lock is held by caller.
func (rm *Room) alive(id uuid.UUID) bool {
	p := rm.PlayerByID(id)
	return p != nil && !p.Eliminated
}

// AddPlayer seats a new player while the room is in lobby state. The
// roster is frozen once the room activates.
func (rm *Room) AddPlayer(displayName string, owner *uuid.UUID, role models.PlayerRole) (*models.Player, error) {
	rm.Mu.Lock()
	defer rm.Mu.Unlock()

	if rm.Status != StatusLobby {
		return nil, InvalidTransitionf("room %s already started", rm.Code)
	}
	p := &models.Player{
		ID:          uuid.New(),
		DisplayName: displayName,
		OwnerID:     owner,
		Role:        role,
		Connected:   true,
	}
	rm.Players = append(rm.Players, p)
	rm.journal(p.ID, string(EventPlayerJoined), map[string]interface{}{"displayName": displayName})
	rm.broadcast(Event{Type: EventPlayerJoined, RoomCode: rm.Code, ActorID: p.ID, Payload: map[string]interface{}{
		"displayName": displayName,
		"role":        role,
	}})
	rm.broadcastStateToAll()
	return p, nil
}

// StartGame freezes the roster, records turn order as join order, deals
// each player a distinct secret character, and arms the first turn. Only
// the host may start.
func (rm *Room) StartGame(caller auth.Identity, hostPlayerID uuid.UUID, characterIDs []string) error {
	rm.Mu.Lock()
	defer rm.Mu.Unlock()

	if rm.Status != StatusLobby {
		return InvalidTransitionf("room %s already started", rm.Code)
	}
	host, err := rm.guard.Authorize(hostPlayerID, caller)
	if err != nil {
		return err
	}
	if host.Role != models.RoleHost {
		return Forbiddenf("only the host may start the game")
	}
	if len(rm.Players) < 2 {
		return InvalidTransitionf("need at least 2 players to start")
	}
	if len(characterIDs) < len(rm.Players) {
		return InvalidTransitionf("character set smaller than player count")
	}

	deck := make([]string, len(characterIDs))
	copy(deck, characterIDs)
	rand.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	order := make([]uuid.UUID, len(rm.Players))
	for i, p := range rm.Players {
		p.SecretCharacterID = deck[i]
		order[i] = p.ID
	}

	rm.Status = StatusActive
	rm.Round = NewRound(order)
	rm.TurnID = 1
	rm.armTurnClock()

	log.Printf("Room %s: game started with %d players.", rm.Code, len(rm.Players))
	rm.journal(hostPlayerID, string(EventGameStarted), map[string]interface{}{"players": len(rm.Players)})
	rm.persistSnapshot()
	rm.broadcast(Event{Type: EventGameStarted, RoomCode: rm.Code, ActorID: hostPlayerID})
	rm.broadcastStateToAll()
	return nil
}

// HandleAskQuestion applies the ask transition for an authorized caller and
// hands the floor to the asked player.
func (rm *Room) HandleAskQuestion(caller auth.Identity, askerID, targetID uuid.UUID, text string) (*Question, error) {
	rm.Mu.Lock()
	defer rm.Mu.Unlock()

	if rm.Status != StatusActive {
		return nil, InvalidTransitionf("room %s is not active", rm.Code)
	}
	if _, err := rm.guard.Authorize(askerID, caller); err != nil {
		return nil, err
	}
	q, err := rm.Round.SubmitQuestion(askerID, targetID, text, rm.alive)
	if err != nil {
		return nil, err
	}

	rm.TurnID++
	rm.armTurnClock()
	rm.journal(askerID, string(EventQuestionAsked), map[string]interface{}{
		"questionId": q.ID.String(),
		"targetId":   targetID.String(),
		"text":       text,
	})
	rm.persistSnapshot()
	rm.broadcast(Event{Type: EventQuestionAsked, RoomCode: rm.Code, ActorID: askerID, Payload: map[string]interface{}{
		"questionId": q.ID.String(),
		"targetId":   targetID.String(),
		"text":       text,
	}})
	rm.broadcastStateToAll()
	return q, nil
}

// HandleSubmitAnswer applies the answer transition for an authorized caller
// and advances the turn.
func (rm *Room) HandleSubmitAnswer(caller auth.Identity, answererID, questionID uuid.UUID, value AnswerValue) (*Question, error) {
	rm.Mu.Lock()
	defer rm.Mu.Unlock()

	if rm.Status != StatusActive {
		return nil, InvalidTransitionf("room %s is not active", rm.Code)
	}
	if _, err := rm.guard.Authorize(answererID, caller); err != nil {
		return nil, err
	}
	q, err := rm.Round.SubmitAnswer(answererID, questionID, value, rm.alive)
	if err != nil {
		return nil, err
	}

	rm.TurnID++
	rm.armTurnClock()
	rm.journal(answererID, string(EventAnswerSubmitted), map[string]interface{}{
		"questionId": q.ID.String(),
		"answer":     string(value),
	})
	rm.persistSnapshot()
	rm.broadcast(Event{Type: EventAnswerSubmitted, RoomCode: rm.Code, ActorID: answererID, Payload: map[string]interface{}{
		"questionId": q.ID.String(),
		"askerId":    q.AskerID.String(),
		"answer":     string(value),
	}})
	rm.broadcastStateToAll()
	return q, nil
}

// HandleSubmitGuess applies the guess transition for an authorized caller.
// The guessed character is validated against the content catalog when one
// is reachable; a catalog outage is logged and play continues on in-memory
// state alone.
func (rm *Room) HandleSubmitGuess(caller auth.Identity, guesserID, targetID uuid.UUID, characterID string) (*GuessOutcome, error) {
	rm.Mu.Lock()
	defer rm.Mu.Unlock()

	if rm.Status != StatusActive {
		return nil, InvalidTransitionf("room %s is not active", rm.Code)
	}
	if _, err := rm.guard.Authorize(guesserID, caller); err != nil {
		return nil, err
	}

	if rm.Catalog != nil && characterID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		exists, err := rm.Catalog.CharacterExists(ctx, characterID)
		cancel()
		switch {
		case err != nil:
			log.Printf("Room %s: character catalog unavailable, accepting guess unvalidated: %v", rm.Code, err)
		case !exists:
			return nil, NotFoundf("character %q does not exist", characterID)
		}
	}

	out, err := rm.Round.SubmitGuess(guesserID, targetID, characterID, rm.PlayerByID)
	if err != nil {
		return nil, err
	}

	rm.TurnID++
	rm.journal(guesserID, string(EventGuessResolved), map[string]interface{}{
		"guessId":      out.Guess.ID.String(),
		"targetId":     targetID.String(),
		"characterId":  characterID,
		"correct":      out.Guess.Correct,
		"eliminatedId": out.EliminatedID.String(),
	})
	rm.broadcast(Event{Type: EventGuessResolved, RoomCode: rm.Code, ActorID: guesserID, Payload: map[string]interface{}{
		"guessId":      out.Guess.ID.String(),
		"targetId":     targetID.String(),
		"characterId":  characterID,
		"correct":      out.Guess.Correct,
		"eliminatedId": out.EliminatedID.String(),
	}})

	if out.RoundOver {
		rm.finishGame(out.WinnerID)
	} else {
		rm.armTurnClock()
		rm.persistSnapshot()
		rm.broadcastStateToAll()
	}
	return out, nil
}

// HandleLeave is an explicit leave. In lobby the seat is released; once the
// game is active the player merely becomes unreachable — forfeiture is a
// rules-level policy, not enforced here.
func (rm *Room) HandleLeave(caller auth.Identity, playerID uuid.UUID) error {
	rm.Mu.Lock()
	defer rm.Mu.Unlock()

	p, err := rm.guard.Authorize(playerID, caller)
	if err != nil {
		return err
	}

	if rm.Status == StatusLobby {
		for i, pl := range rm.Players {
			if pl.ID == playerID {
				rm.Players = append(rm.Players[:i], rm.Players[i+1:]...)
				break
			}
		}
	} else {
		p.Connected = false
	}

	rm.journal(playerID, string(EventPlayerLeft), nil)
	rm.broadcast(Event{Type: EventPlayerLeft, RoomCode: rm.Code, ActorID: playerID})
	rm.broadcastStateToAll()
	return nil
}

// HandleDisconnect marks a player unreachable. Server-initiated on socket
// close, so no authorization. The game continues; any armed timer keeps
// running.
func (rm *Room) HandleDisconnect(playerID uuid.UUID) {
	rm.Mu.Lock()
	defer rm.Mu.Unlock()

	p := rm.PlayerByID(playerID)
	if p == nil || !p.Connected {
		return
	}
	p.Connected = false
	log.Printf("Room %s: player %s disconnected.", rm.Code, playerID)
	rm.journal(playerID, string(EventPlayerDisconnected), nil)
	rm.broadcast(Event{Type: EventPlayerDisconnected, RoomCode: rm.Code, ActorID: playerID})
	rm.broadcastStateToAll()
}

// HandleReconnect binds a returning caller to their seat and resynchronizes
// them with a full snapshot — the client may have missed any number of
// events while disconnected. Turn order, phase, and timers are unaffected.
func (rm *Room) HandleReconnect(caller auth.Identity, playerID uuid.UUID) (*models.Player, error) {
	rm.Mu.Lock()
	defer rm.Mu.Unlock()

	p, err := rm.guard.Authorize(playerID, caller)
	if err != nil {
		return nil, err
	}
	wasConnected := p.Connected
	p.Connected = true

	rm.sendSyncState(playerID)
	if !wasConnected {
		log.Printf("Room %s: player %s reconnected.", rm.Code, playerID)
		rm.journal(playerID, string(EventPlayerReconnected), nil)
		rm.broadcast(Event{Type: EventPlayerReconnected, RoomCode: rm.Code, ActorID: playerID})
		rm.broadcastStateToAll()
	}
	return p, nil
}

// StateSnapshot returns the observer-tailored snapshot under the room lock.
func (rm *Room) StateSnapshot(forPlayer uuid.UUID) RoomSnapshot {
	rm.Mu.Lock()
	defer rm.Mu.Unlock()
	return rm.Snapshot(forPlayer)
}

// armTurnClock (re)arms the countdown for the current turn. Assumes lock is
// held by caller.
func (rm *Room) armTurnClock() {
	if rm.clock == nil || rm.TurnDuration <= 0 || rm.Status != StatusActive {
		return
	}
	expectedTurnID := rm.TurnID
	rm.clock.Arm(rm.Code, rm.TurnDuration, func() {
		rm.handleTurnExpired(expectedTurnID)
	})
}

// handleTurnExpired funnels a clock fire through the room lane. The TurnID
// check drops fires that lost the race against a just-applied action, so
// exactly one of {action, timeout} ever advances a given turn.
func (rm *Room) handleTurnExpired(expectedTurnID int) {
	rm.Mu.Lock()
	defer rm.Mu.Unlock()

	if rm.Status != StatusActive || rm.TurnID != expectedTurnID {
		return
	}

	expired := rm.Round.ExpireTurn(rm.alive)
	rm.TurnID++
	log.Printf("Room %s: turn %d expired for player %s.", rm.Code, expectedTurnID, expired)
	rm.journal(expired, string(EventTurnExpired), map[string]interface{}{"turn": expectedTurnID})
	rm.broadcast(Event{Type: EventTurnExpired, RoomCode: rm.Code, ActorID: expired})

	if survivors := rm.Round.survivors(rm.alive); len(survivors) <= 1 {
		var winner uuid.UUID
		if len(survivors) == 1 {
			winner = survivors[0]
		}
		rm.finishGame(winner)
		return
	}

	rm.armTurnClock()
	rm.persistSnapshot()
	rm.broadcastStateToAll()
}

// finishGame transitions the room to finished, cancels the clock, persists
// and broadcasts the terminal state, and fires OnGameEnd. Assumes lock is
// held by caller.
func (rm *Room) finishGame(winnerID uuid.UUID) {
	if rm.Status == StatusFinished {
		return
	}
	rm.Status = StatusFinished
	rm.WinnerID = winnerID
	if rm.clock != nil {
		rm.clock.Cancel(rm.Code)
	}

	log.Printf("Room %s: game over, winner %s.", rm.Code, winnerID)
	rm.journal(winnerID, string(EventGameOver), map[string]interface{}{"winnerId": winnerID.String()})
	rm.persistSnapshot()
	rm.broadcast(Event{Type: EventGameOver, RoomCode: rm.Code, Payload: map[string]interface{}{
		"winnerId": winnerID.String(),
	}})
	rm.broadcastStateToAll()

	if rm.OnGameEnd != nil {
		rm.OnGameEnd(rm.Code, winnerID)
	}
}

// broadcast emits a public event through the injected callback.
// Assumes lock is held by caller.
func (rm *Room) broadcast(ev Event) {
	if rm.BroadcastFn == nil {
		log.Printf("Warning: Room %s: BroadcastFn is nil, cannot broadcast %s.", rm.Code, ev.Type)
		return
	}
	rm.BroadcastFn(ev)
}

// sendSyncState sends the full per-observer snapshot to one player.
// Assumes lock is held by caller.
func (rm *Room) sendSyncState(playerID uuid.UUID) {
	if rm.BroadcastToPlayerFn == nil {
		log.Printf("Warning: Room %s: BroadcastToPlayerFn is nil, cannot sync %s.", rm.Code, playerID)
		return
	}
	snap := rm.Snapshot(playerID)
	rm.BroadcastToPlayerFn(playerID, Event{Type: EventRoomState, RoomCode: rm.Code, State: &snap})
}

// broadcastStateToAll resynchronizes every connected player with their own
// view of the room. Assumes lock is held by caller.
func (rm *Room) broadcastStateToAll() {
	if rm.BroadcastToPlayerFn == nil {
		return
	}
	for _, p := range rm.Players {
		if p.Connected {
			rm.sendSyncState(p.ID)
		}
	}
}

// journal asynchronously records an applied action for the historian.
// Failures are logged, never propagated. Assumes lock is held by caller.
func (rm *Room) journal(actorID uuid.UUID, action string, payload map[string]interface{}) {
	rm.actionIndex++
	if rm.Journal == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	index := rm.actionIndex
	code := rm.Code
	journal := rm.Journal
	ts := time.Now().UnixMilli()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := journal.Record(ctx, code, index, actorID, action, payload, ts); err != nil {
			log.Printf("Error: Room %s: failed journaling action %d (%s): %v", code, index, action, err)
		}
	}()
}

// persistSnapshot saves the full room state best-effort, off the lane.
// Assumes lock is held by caller.
func (rm *Room) persistSnapshot() {
	if rm.Store == nil {
		return
	}
	snap := rm.persistenceSnapshot()
	store := rm.Store
	code := rm.Code
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := store.SaveRoomSnapshot(ctx, code, snap); err != nil {
			log.Printf("Error: Room %s: failed persisting snapshot: %v", code, err)
		}
	}()
}
