package usecase

import (
	"context"
	"sync"

	"tradepost/internal/domain/entity"
	"tradepost/internal/domain/repository"
	"tradepost/pkg/errors"
	"tradepost/pkg/logger"
)

// PlaceholderName is shown for participants whose profile cannot be
// resolved. Conversation rendering never blocks on the profile store.
const PlaceholderName = "Marketplace User"

// ParticipantCache resolves user ids to display identities, caching
// results for the life of the process. Profiles change rarely enough that
// staleness is acceptable; a missing profile is cached too so repeated
// lookups for a deleted user do not hammer the store.
type ParticipantCache struct {
	profiles repository.ProfileRepository

	mu   sync.RWMutex
	byID map[string]*entity.Participant
}

func NewParticipantCache(profiles repository.ProfileRepository) *ParticipantCache {
	return &ParticipantCache{
		profiles: profiles,
		byID:     make(map[string]*entity.Participant),
	}
}

// Resolve returns the display identity for userID. It never fails: when
// the profile store has no record or is unreachable, a placeholder is
// returned instead. Placeholders for transient failures are not cached,
// so the next call retries the lookup.
func (c *ParticipantCache) Resolve(ctx context.Context, userID string) *entity.Participant {
	c.mu.RLock()
	cached, ok := c.byID[userID]
	c.mu.RUnlock()
	if ok {
		return cached
	}

	participant, err := c.profiles.Lookup(ctx, userID)
	if err != nil {
		participant = &entity.Participant{
			UserID:      userID,
			DisplayName: PlaceholderName,
		}
		if !errors.Is(err, "NOT_FOUND") {
			// Transient failure: serve the placeholder but leave the cache
			// empty so the profile can still surface later.
			logger.Warn("participant lookup failed for %s: %v", userID, err)
			return participant
		}
	}

	c.mu.Lock()
	c.byID[userID] = participant
	c.mu.Unlock()

	return participant
}

// Invalidate drops one cached entry; used when a caller knows the profile
// changed.
func (c *ParticipantCache) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.byID, userID)
	c.mu.Unlock()
}

func (c *ParticipantCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
