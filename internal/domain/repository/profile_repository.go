package repository

import (
	"context"

	"tradepost/internal/domain/entity"
)

// ProfileRepository reads display identities from the external profile
// store. This service only consumes it; profile writes happen elsewhere.
type ProfileRepository interface {
	// Lookup checks the known profile partitions in priority order and
	// returns the first match. A user present in no partition yields a
	// NOT_FOUND error.
	Lookup(ctx context.Context, userID string) (*entity.Participant, error)
}
