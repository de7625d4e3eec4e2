// internal/server/handlers.go
package server

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/joachimageron/WhoIsIt-sub003/internal/auth"
	"github.com/joachimageron/WhoIsIt-sub003/internal/game"
	"github.com/joachimageron/WhoIsIt-sub003/internal/models"
	"github.com/joachimageron/WhoIsIt-sub003/internal/session"
)

// clientMessage is the inbound message envelope. Fields beyond Type are
// operation-specific; unused ones stay empty.
type clientMessage struct {
	Type        string `json:"type"`
	RoomCode    string `json:"roomCode,omitempty"`
	PlayerID    string `json:"playerId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	TargetID    string `json:"targetId,omitempty"`
	QuestionID  string `json:"questionId,omitempty"`
	Text        string `json:"text,omitempty"`
	Answer      string `json:"answer,omitempty"`
	CharacterID string `json:"characterId,omitempty"`
}

// ack is the synchronous reply to every inbound message. Broadcast state
// updates travel separately.
type ack struct {
	Type     string `json:"type"` // always "ack"
	Op       string `json:"op"`
	Success  bool   `json:"success"`
	Code     string `json:"code,omitempty"`
	Error    string `json:"error,omitempty"`
	RoomCode string `json:"roomCode,omitempty"`
	PlayerID string `json:"playerId,omitempty"`
}

func okAck(op string) ack {
	return ack{Type: "ack", Op: op, Success: true}
}

func failAck(op string, err error) ack {
	return ack{Type: "ack", Op: op, Success: false, Code: string(game.CodeOf(err)), Error: err.Error()}
}

// defaultCharacterIDs backs game start when the content collaborator is
// unreachable; 24 slots matches the classic board.
var defaultCharacterIDs = func() []string {
	ids := make([]string, 24)
	for i := range ids {
		ids[i] = fmt.Sprintf("char-%02d", i+1)
	}
	return ids
}()

// handleMessage dispatches one decoded inbound message. Every player
// identifier a client supplies is re-authorized against the session's
// resolved identity inside the room; nothing here is trusted.
func (s *GameServer) handleMessage(ctx context.Context, sess *session.Session, msg clientMessage) ack {
	switch msg.Type {
	case "ping":
		return ack{Type: "pong", Op: "ping", Success: true}
	case "create_room":
		return s.handleCreateRoom(sess, msg)
	case "join":
		return s.handleJoin(sess, msg)
	case "leave":
		return s.handleLeave(sess, msg)
	case "start_game":
		return s.handleStartGame(ctx, sess, msg)
	case "ask_question":
		return s.handleAskQuestion(sess, msg)
	case "submit_answer":
		return s.handleSubmitAnswer(sess, msg)
	case "submit_guess":
		return s.handleSubmitGuess(sess, msg)
	default:
		return ack{Type: "ack", Op: msg.Type, Success: false,
			Code: string(game.CodeInvalidTransition), Error: "unknown message type"}
	}
}

// handleCreateRoom opens a lobby with the caller seated as host.
func (s *GameServer) handleCreateRoom(sess *session.Session, msg clientMessage) ack {
	const op = "create_room"
	name := msg.DisplayName
	if name == "" {
		name = "Host"
	}

	room := s.createRoom()
	player, err := room.AddPlayer(name, ownerOf(sess.Identity), models.RoleHost)
	if err != nil {
		s.removeRoom(room.Code)
		return failAck(op, err)
	}
	if _, err := s.registry.BindToRoom(sess.ID, room.Code, player.ID); err != nil {
		return failAck(op, game.Unavailablef("session no longer registered"))
	}

	a := okAck(op)
	a.RoomCode = room.Code
	a.PlayerID = player.ID.String()
	return a
}

// handleJoin binds the session to a room. Without a playerId it seats a new
// lobby player; with one it is the reconnection path — the caller is
// re-authorized for the seat, any other live session holding it is
// superseded, and the joiner receives a full snapshot.
func (s *GameServer) handleJoin(sess *session.Session, msg clientMessage) ack {
	const op = "join"
	room, ok := s.roomByCode(msg.RoomCode)
	if !ok {
		return failAck(op, game.NotFoundf("room %s not found", msg.RoomCode))
	}

	var player *models.Player
	if msg.PlayerID == "" {
		name := msg.DisplayName
		if name == "" {
			name = "Player"
		}
		p, err := room.AddPlayer(name, ownerOf(sess.Identity), models.RolePlayer)
		if err != nil {
			return failAck(op, err)
		}
		player = p
	} else {
		pid, err := uuid.Parse(msg.PlayerID)
		if err != nil {
			return failAck(op, game.NotFoundf("player id %q is not a valid id", msg.PlayerID))
		}
		p, err := room.HandleReconnect(sess.Identity, pid)
		if err != nil {
			return failAck(op, err)
		}
		player = p
	}

	superseded, err := s.registry.BindToRoom(sess.ID, room.Code, player.ID)
	if err != nil {
		return failAck(op, game.Unavailablef("session no longer registered"))
	}
	if superseded != nil && superseded.Cancel != nil {
		// Last writer wins; retire the stale connection.
		superseded.Cancel()
	}

	// Sync the joining connection now that the binding points at it; a
	// reconnect's earlier sync may have gone to the superseded session.
	snap := room.StateSnapshot(player.ID)
	room.BroadcastToPlayerFn(player.ID, game.Event{
		Type: game.EventRoomState, RoomCode: room.Code, State: &snap,
	})

	a := okAck(op)
	a.RoomCode = room.Code
	a.PlayerID = player.ID.String()
	return a
}

// handleLeave is the explicit leave path; it unbinds the session after the
// room has processed the departure.
func (s *GameServer) handleLeave(sess *session.Session, msg clientMessage) ack {
	const op = "leave"
	room, ok := s.roomByCode(msg.RoomCode)
	if !ok {
		return failAck(op, game.NotFoundf("room %s not found", msg.RoomCode))
	}
	pid, err := uuid.Parse(msg.PlayerID)
	if err != nil {
		return failAck(op, game.NotFoundf("player id %q is not a valid id", msg.PlayerID))
	}
	if err := room.HandleLeave(sess.Identity, pid); err != nil {
		return failAck(op, err)
	}
	s.registry.Unbind(sess.ID)
	return okAck(op)
}

// handleStartGame deals secret characters and begins the first turn. The
// character set comes from the content collaborator, falling back to the
// built-in board when it is unreachable.
func (s *GameServer) handleStartGame(ctx context.Context, sess *session.Session, msg clientMessage) ack {
	const op = "start_game"
	room, ok := s.roomByCode(msg.RoomCode)
	if !ok {
		return failAck(op, game.NotFoundf("room %s not found", msg.RoomCode))
	}
	pid, err := uuid.Parse(msg.PlayerID)
	if err != nil {
		return failAck(op, game.NotFoundf("player id %q is not a valid id", msg.PlayerID))
	}

	characters := defaultCharacterIDs
	if s.deps.Characters != nil {
		if ids, err := s.deps.Characters(ctx); err != nil {
			s.log.WithError(err).Warn("character catalog unavailable, using built-in set")
		} else if len(ids) > 0 {
			characters = ids
		}
	}

	if err := room.StartGame(sess.Identity, pid, characters); err != nil {
		return failAck(op, err)
	}
	return okAck(op)
}

func (s *GameServer) handleAskQuestion(sess *session.Session, msg clientMessage) ack {
	const op = "ask_question"
	room, ok := s.roomByCode(msg.RoomCode)
	if !ok {
		return failAck(op, game.NotFoundf("room %s not found", msg.RoomCode))
	}
	askerID, err := uuid.Parse(msg.PlayerID)
	if err != nil {
		return failAck(op, game.NotFoundf("player id %q is not a valid id", msg.PlayerID))
	}
	targetID, err := uuid.Parse(msg.TargetID)
	if err != nil {
		return failAck(op, game.NotFoundf("target id %q is not a valid id", msg.TargetID))
	}
	if _, err := room.HandleAskQuestion(sess.Identity, askerID, targetID, msg.Text); err != nil {
		return failAck(op, err)
	}
	return okAck(op)
}

func (s *GameServer) handleSubmitAnswer(sess *session.Session, msg clientMessage) ack {
	const op = "submit_answer"
	room, ok := s.roomByCode(msg.RoomCode)
	if !ok {
		return failAck(op, game.NotFoundf("room %s not found", msg.RoomCode))
	}
	answererID, err := uuid.Parse(msg.PlayerID)
	if err != nil {
		return failAck(op, game.NotFoundf("player id %q is not a valid id", msg.PlayerID))
	}
	questionID, err := uuid.Parse(msg.QuestionID)
	if err != nil {
		return failAck(op, game.NotFoundf("question id %q is not a valid id", msg.QuestionID))
	}
	if _, err := room.HandleSubmitAnswer(sess.Identity, answererID, questionID, game.AnswerValue(msg.Answer)); err != nil {
		return failAck(op, err)
	}
	return okAck(op)
}

func (s *GameServer) handleSubmitGuess(sess *session.Session, msg clientMessage) ack {
	const op = "submit_guess"
	room, ok := s.roomByCode(msg.RoomCode)
	if !ok {
		return failAck(op, game.NotFoundf("room %s not found", msg.RoomCode))
	}
	guesserID, err := uuid.Parse(msg.PlayerID)
	if err != nil {
		return failAck(op, game.NotFoundf("player id %q is not a valid id", msg.PlayerID))
	}
	targetID, err := uuid.Parse(msg.TargetID)
	if err != nil {
		return failAck(op, game.NotFoundf("target id %q is not a valid id", msg.TargetID))
	}
	if _, err := room.HandleSubmitGuess(sess.Identity, guesserID, targetID, msg.CharacterID); err != nil {
		return failAck(op, err)
	}
	return okAck(op)
}

// ownerOf maps a session identity to a player owner: registered accounts
// own their seats, guests leave the owner nil.
func ownerOf(identity auth.Identity) *uuid.UUID {
	if acct, ok := identity.(auth.Account); ok {
		id := acct.UserID
		return &id
	}
	return nil
}
