// internal/game/events.go
package game

import (
	"github.com/google/uuid"

	"github.com/joachimageron/WhoIsIt-sub003/internal/models"
)

// EventType names a broadcast game event.
type EventType string

const (
	EventRoomState          EventType = "room_state"
	EventPlayerJoined       EventType = "player_joined"
	EventPlayerLeft         EventType = "player_left"
	EventGameStarted        EventType = "game_started"
	EventQuestionAsked      EventType = "question_asked"
	EventAnswerSubmitted    EventType = "answer_submitted"
	EventGuessResolved      EventType = "guess_resolved"
	EventTurnExpired        EventType = "turn_expired"
	EventPlayerDisconnected EventType = "player_disconnected"
	EventPlayerReconnected  EventType = "player_reconnected"
	EventGameOver           EventType = "game_over"
)

// Event is the standard broadcast envelope for game state changes.
type Event struct {
	Type     EventType              `json:"type"`
	RoomCode string                 `json:"roomCode,omitempty"`
	ActorID  uuid.UUID              `json:"actorId,omitempty"`
	Payload  map[string]interface{} `json:"payload,omitempty"`

	// State carries the per-observer room snapshot on sync events.
	State *RoomSnapshot `json:"state,omitempty"`
}

// PlayerView is a player's state as seen by a specific observer.
type PlayerView struct {
	ID          uuid.UUID         `json:"id"`
	DisplayName string            `json:"displayName"`
	Role        models.PlayerRole `json:"role"`
	Eliminated  bool              `json:"eliminated"`
	Connected   bool              `json:"connected"`
	IsActive    bool              `json:"isActive"`

	// SecretCharacterID is populated only for the observer's own seat.
	SecretCharacterID string `json:"secretCharacterId,omitempty"`
}

// QuestionView mirrors a question for broadcast.
type QuestionView struct {
	ID       uuid.UUID   `json:"id"`
	AskerID  uuid.UUID   `json:"askerId"`
	TargetID uuid.UUID   `json:"targetId"`
	Text     string      `json:"text"`
	Answer   AnswerValue `json:"answer,omitempty"`
}

// RoundView is the round state as broadcast to clients.
type RoundView struct {
	ID              uuid.UUID     `json:"id"`
	Phase           Phase         `json:"phase"`
	ActiveIndex     int           `json:"activeIndex"`
	ActivePlayerID  uuid.UUID     `json:"activePlayerId"`
	ActiveActorID   uuid.UUID     `json:"activeActorId"`
	PendingQuestion *QuestionView `json:"pendingQuestion,omitempty"`
}

// RoomSnapshot is a consistent copy of room state tailored to one observer.
// Secrets belonging to other players are omitted; a persisted snapshot
// (observer uuid.Nil with reveal) keeps everything.
type RoomSnapshot struct {
	Code     string       `json:"code"`
	Status   RoomStatus   `json:"status"`
	TurnID   int          `json:"turnId"`
	Players  []PlayerView `json:"players"`
	Round    *RoundView   `json:"round,omitempty"`
	WinnerID uuid.UUID    `json:"winnerId,omitempty"`

	// Secrets maps player id to secret character id. Populated only on the
	// persistence snapshot, never on observer snapshots.
	Secrets map[string]string `json:"secrets,omitempty"`
}

// Snapshot builds the room state as seen by forPlayer. Freshly allocated
// throughout, so senders can serialize it after the lock is released.
// Assumes lock is held by caller.
func (rm *Room) Snapshot(forPlayer uuid.UUID) RoomSnapshot {
	return rm.snapshot(forPlayer, false)
}

// persistenceSnapshot keeps every secret; recovery material only.
// Assumes lock is held by caller.
func (rm *Room) persistenceSnapshot() RoomSnapshot {
	return rm.snapshot(uuid.Nil, true)
}

func (rm *Room) snapshot(forPlayer uuid.UUID, revealAll bool) RoomSnapshot {
	snap := RoomSnapshot{
		Code:     rm.Code,
		Status:   rm.Status,
		TurnID:   rm.TurnID,
		WinnerID: rm.WinnerID,
		Players:  make([]PlayerView, len(rm.Players)),
	}
	if revealAll {
		snap.Secrets = make(map[string]string, len(rm.Players))
	}

	var activeID uuid.UUID
	if rm.Round != nil && rm.Status == StatusActive {
		activeID = rm.Round.ActiveActorID()
	}

	for i, p := range rm.Players {
		view := PlayerView{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Role:        p.Role,
			Eliminated:  p.Eliminated,
			Connected:   p.Connected,
			IsActive:    p.ID == activeID,
		}
		if p.ID == forPlayer {
			view.SecretCharacterID = p.SecretCharacterID
		}
		if revealAll {
			snap.Secrets[p.ID.String()] = p.SecretCharacterID
		}
		snap.Players[i] = view
	}

	if rm.Round != nil {
		rv := &RoundView{
			ID:             rm.Round.ID,
			Phase:          rm.Round.Phase,
			ActiveIndex:    rm.Round.ActiveIndex,
			ActivePlayerID: rm.Round.ActivePlayerID(),
			ActiveActorID:  rm.Round.ActiveActorID(),
		}
		if q := rm.Round.PendingQuestion; q != nil {
			rv.PendingQuestion = &QuestionView{
				ID:       q.ID,
				AskerID:  q.AskerID,
				TargetID: q.TargetID,
				Text:     q.Text,
				Answer:   q.Answer,
			}
		}
		snap.Round = rv
	}

	return snap
}
