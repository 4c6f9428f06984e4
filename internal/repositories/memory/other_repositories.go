package memory

import (
	"context"
	"fmt"

	domain "github.com/journeyforge/api/internal/domain"
)

// UserJourneyRepository implements repositories.UserJourneyRepository on the store.
type UserJourneyRepository struct {
	store *Store
}

// NewUserJourneyRepository constructs an in-memory grant repository.
func NewUserJourneyRepository(store *Store) *UserJourneyRepository {
	return &UserJourneyRepository{store: store}
}

func grantKey(userID, journeyID string) string {
	return fmt.Sprintf("%s_%s", userID, journeyID)
}

// Create stores the grant, rejecting duplicates for the same user and journey.
func (r *UserJourneyRepository) Create(ctx context.Context, grant domain.UserJourney) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	key := grantKey(grant.UserID, grant.JourneyID)
	if existing, exists := r.store.grants[key]; exists && existing.DeletedAt == nil {
		return conflictError("grant %q already exists", key)
	}
	r.store.grants[key] = grant
	return nil
}

// Exists reports whether an active grant exists for the pair.
func (r *UserJourneyRepository) Exists(ctx context.Context, userID, journeyID string) (bool, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	grant, exists := r.store.grants[grantKey(userID, journeyID)]
	return exists && grant.DeletedAt == nil, nil
}

// JourneyRepository implements repositories.JourneyRepository on the store.
type JourneyRepository struct {
	store *Store
}

// NewJourneyRepository constructs an in-memory journey repository.
func NewJourneyRepository(store *Store) *JourneyRepository {
	return &JourneyRepository{store: store}
}

// FindActive returns the journey unless missing or soft deleted.
func (r *JourneyRepository) FindActive(ctx context.Context, journeyID string) (domain.Journey, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	journey, exists := r.store.journeys[journeyID]
	if !exists || journey.IsDeleted() {
		return domain.Journey{}, notFoundError("journey %q not found", journeyID)
	}
	return journey, nil
}

// UserRepository implements repositories.UserRepository on the store.
type UserRepository struct {
	store *Store
}

// NewUserRepository constructs an in-memory user repository.
func NewUserRepository(store *Store) *UserRepository {
	return &UserRepository{store: store}
}

// FindByID returns the stored user projection.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	user, exists := r.store.users[userID]
	if !exists {
		return domain.User{}, notFoundError("user %q not found", userID)
	}
	return user, nil
}
