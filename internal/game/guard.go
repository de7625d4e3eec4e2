// internal/game/guard.go
package game

import (
	"github.com/google/uuid"

	"github.com/joachimageron/WhoIsIt-sub003/internal/auth"
	"github.com/joachimageron/WhoIsIt-sub003/internal/models"
)

// PlayerResolver locates a player by id. The room roster satisfies it.
type PlayerResolver interface {
	PlayerByID(id uuid.UUID) *models.Player
}

// Guard proves or rejects ownership of a player slot. It is consulted
// before every player-initiated action and never mutates state.
type Guard struct {
	Players PlayerResolver
}

// Authorize resolves playerID and checks that caller may act for it.
//
// Registered slots demand an Account whose user id equals the owner, with
// distinct messages for an anonymous caller versus the wrong account.
// Guest slots accept any caller: shared-device play depends on it, so
// tightening this is a policy change that belongs here and nowhere else.
func (g *Guard) Authorize(playerID uuid.UUID, caller auth.Identity) (*models.Player, error) {
	p := g.Players.PlayerByID(playerID)
	if p == nil {
		return nil, NotFoundf("player %s not found", playerID)
	}
	if p.OwnerID == nil {
		return p, nil
	}
	switch id := caller.(type) {
	case auth.Account:
		if id.UserID != *p.OwnerID {
			return nil, Forbiddenf("player %s belongs to another account", playerID)
		}
		return p, nil
	case auth.Guest:
		return nil, Forbiddenf("player %s requires an authenticated caller", playerID)
	default:
		return nil, Forbiddenf("player %s requires an authenticated caller", playerID)
	}
}
