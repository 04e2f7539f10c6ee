package model

import (
	"time"
)

// Profile is the player's public profile. Rating is only written by the decision step.
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Rating    int       `json:"elo_rating"`
	IsPremium bool      `json:"is_premium"`
	CreatedAt time.Time `json:"created_at"`
}
