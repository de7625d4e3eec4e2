// internal/server/server.go
package server

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/joachimageron/WhoIsIt-sub003/internal/auth"
	"github.com/joachimageron/WhoIsIt-sub003/internal/config"
	"github.com/joachimageron/WhoIsIt-sub003/internal/game"
	"github.com/joachimageron/WhoIsIt-sub003/internal/session"
)

// roomCodeAlphabet avoids ambiguous characters in join codes.
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const roomCodeLength = 4

// finishedRoomTTL is how long a finished room stays addressable so clients
// can fetch the terminal state before it is dropped.
const finishedRoomTTL = 5 * time.Minute

// Deps are the collaborators injected into the server. Any of them may be
// nil; the game then runs on in-memory state alone.
type Deps struct {
	Store   game.SnapshotStore
	Catalog game.CharacterCatalog
	Journal game.ActionJournal

	// Characters supplies the character-set ids dealt at game start.
	Characters func(ctx context.Context) ([]string, error)

	Logger *logrus.Logger
}

// GameServer owns the websocket endpoint, the connection registry, and the
// set of live rooms. Each room serializes its own mutations; the server
// only routes.
type GameServer struct {
	cfg      config.Config
	log      *logrus.Logger
	tokens   *auth.TokenService
	registry *session.Registry
	clock    *game.TurnClock
	deps     Deps

	mu    sync.Mutex
	rooms map[string]*game.Room
}

// New assembles a server with a fresh registry and turn clock.
func New(cfg config.Config, tokens *auth.TokenService, deps Deps) *GameServer {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	return &GameServer{
		cfg:      cfg,
		log:      deps.Logger,
		tokens:   tokens,
		registry: session.NewRegistry(),
		clock:    game.NewTurnClock(),
		deps:     deps,
		rooms:    make(map[string]*game.Room),
	}
}

// Registry exposes the connection registry (test hooks and ops tooling).
func (s *GameServer) Registry() *session.Registry {
	return s.registry
}

// Handler returns the HTTP routes.
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// handleWS upgrades the connection, resolves the caller's identity from the
// session token, registers the session, and runs the read loop until the
// socket dies. Disconnection marks the bound player unreachable and removes
// the session record — nothing else.
func (s *GameServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.WithError(err).Warn("websocket accept failed")
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
			token = h[7:]
		}
	}
	identity := s.tokens.ResolveIdentity(token)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sessID := uuid.New()
	out := make(chan []byte, 64)
	sess := s.registry.Register(sessID, identity, out, cancel)
	s.log.WithField("session", sessID).Info("session connected")

	go s.writePump(ctx, conn, out)

	s.readLoop(ctx, conn, sess)

	// Socket is gone. Presence first, then the session record.
	if roomCode, playerID, ok := s.registry.Binding(sessID); ok && roomCode != "" && playerID != uuid.Nil {
		if room, ok := s.roomByCode(roomCode); ok {
			room.HandleDisconnect(playerID)
		}
	}
	s.registry.Unregister(sessID)
	s.log.WithField("session", sessID).Info("session disconnected")
	_ = conn.CloseNow()
}

// writePump drains the session's outbound channel onto the socket. It is
// the only goroutine writing to the connection.
func (s *GameServer) writePump(ctx context.Context, conn *websocket.Conn, out <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-out:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// readLoop decodes inbound messages and dispatches them, answering each
// with a synchronous ack on the same ordered channel the broadcasts use.
func (s *GameServer) readLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		s.registry.Touch(sess.ID)

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendAck(sess, ack{Type: "ack", Op: "unknown", Success: false,
				Code: string(game.CodeInvalidTransition), Error: "malformed message"})
			continue
		}
		s.sendAck(sess, s.handleMessage(ctx, sess, msg))
	}
}

func (s *GameServer) sendAck(sess *session.Session, a ack) {
	frame, err := json.Marshal(a)
	if err != nil {
		s.log.WithError(err).Error("marshal ack")
		return
	}
	sess.Send(frame)
}

// attachRoom wires a room's broadcast callbacks to the registry. The
// callbacks run inside the room lane, so they only enqueue frames on
// non-blocking session channels.
func (s *GameServer) attachRoom(room *game.Room) {
	code := room.Code
	room.BroadcastFn = func(ev game.Event) {
		frame, err := json.Marshal(ev)
		if err != nil {
			s.log.WithError(err).WithField("room", code).Error("marshal broadcast")
			return
		}
		for _, sess := range s.registry.SessionsInRoom(code) {
			sess.Send(frame)
		}
	}
	room.BroadcastToPlayerFn = func(playerID uuid.UUID, ev game.Event) {
		sess, ok := s.registry.SessionForPlayer(code, playerID)
		if !ok {
			return
		}
		frame, err := json.Marshal(ev)
		if err != nil {
			s.log.WithError(err).WithField("room", code).Error("marshal player event")
			return
		}
		sess.Send(frame)
	}
	room.OnGameEnd = func(code string, winnerID uuid.UUID) {
		s.log.WithFields(logrus.Fields{"room": code, "winner": winnerID}).Info("game over")
		time.AfterFunc(finishedRoomTTL, func() { s.removeRoom(code) })
	}
}

// createRoom allocates a room under an unused join code.
func (s *GameServer) createRoom() *game.Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	var code string
	for {
		code = newRoomCode()
		if _, taken := s.rooms[code]; !taken {
			break
		}
	}

	room := game.NewRoom(code, s.clock)
	room.TurnDuration = time.Duration(s.cfg.TurnTimerSec) * time.Second
	room.Store = s.deps.Store
	room.Catalog = s.deps.Catalog
	room.Journal = s.deps.Journal
	s.attachRoom(room)
	s.rooms[code] = room
	return room
}

func (s *GameServer) roomByCode(code string) (*game.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	return room, ok
}

func (s *GameServer) removeRoom(code string) {
	s.mu.Lock()
	delete(s.rooms, code)
	s.mu.Unlock()
}

// newRoomCode draws a short join code from the unambiguous alphabet.
func newRoomCode() string {
	buf := make([]byte, roomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is in far worse trouble
		// than room codes; fall back to a fixed-but-valid code.
		return "ZZZZ"
	}
	for i := range buf {
		buf[i] = roomCodeAlphabet[int(buf[i])%len(roomCodeAlphabet)]
	}
	return string(buf)
}
