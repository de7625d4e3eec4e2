// internal/models/models.go
package models

import (
	"github.com/google/uuid"
)

// User mirrors the account record owned by the external account service.
// The game core never writes it; it only compares ownership ids.
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email,omitempty"`
}

// Character is one entry of the character set players guess against.
// Content curation lives outside the core; the core only checks existence.
type Character struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// PlayerRole distinguishes the room creator from regular players.
type PlayerRole string

const (
	RoleHost   PlayerRole = "host"
	RolePlayer PlayerRole = "player"
)

// Player is a logical seat in a room, owned by an account or a guest,
// distinct from the transient network session used to reach it. Identity
// fields are immutable for the life of the game; Eliminated is the only
// game-driven mutation, Connected the only presence-driven one.
type Player struct {
	ID          uuid.UUID  `json:"id"`
	DisplayName string     `json:"displayName"`
	OwnerID     *uuid.UUID `json:"ownerId,omitempty"` // nil for guest-owned slots
	Role        PlayerRole `json:"role"`
	Eliminated  bool       `json:"eliminated"`

	// SecretCharacterID is the character opponents are trying to guess.
	// Revealed only to the owning player in snapshots.
	SecretCharacterID string `json:"-"`

	Connected bool `json:"connected"`
}
