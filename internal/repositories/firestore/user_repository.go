package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/journeyforge/api/internal/domain"
	pfirestore "github.com/journeyforge/api/internal/platform/firestore"
)

const userCollection = "users"

// UserRepository reads identity projections from Firestore.
type UserRepository struct {
	provider *pfirestore.Provider
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{provider: provider}, nil
}

// FindByID loads the user projection by document ID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if r == nil || r.provider == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.User{}, pfirestore.NewNotFound("user.find", errors.New("user id is required"))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.User{}, pfirestore.WrapError("user.find", err)
	}

	snap, err := client.Collection(userCollection).Doc(userID).Get(ctx)
	if err != nil {
		return domain.User{}, pfirestore.WrapError("user.find", err)
	}

	var user domain.User
	if err := snap.DataTo(&user); err != nil {
		return domain.User{}, pfirestore.WrapError("user.find", err)
	}
	user.ID = snap.Ref.ID
	return user, nil
}
