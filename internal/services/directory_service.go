package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/journeyforge/api/internal/domain"
	"github.com/journeyforge/api/internal/repositories"
)

// ErrUserNotFound indicates the user projection could not be located.
var ErrUserNotFound = errors.New("directory: user not found")

// userDirectory resolves usernames for order rendering.
type userDirectory struct {
	users repositories.UserRepository
}

// NewUserDirectory constructs a UserDirectory over the user repository.
func NewUserDirectory(users repositories.UserRepository) (UserDirectory, error) {
	if users == nil {
		return nil, errors.New("user directory: user repository is required")
	}
	return &userDirectory{users: users}, nil
}

func (d *userDirectory) GetUser(ctx context.Context, userID string) (domain.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.User{}, fmt.Errorf("%w: user id is required", ErrUserNotFound)
	}
	user, err := d.users.FindByID(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.User{}, fmt.Errorf("%w: %v", ErrUserNotFound, err)
		}
		return domain.User{}, err
	}
	return user, nil
}

// journeyCatalog resolves journey titles for order rendering.
type journeyCatalog struct {
	journeys repositories.JourneyRepository
}

// NewJourneyCatalog constructs a JourneyCatalog over the journey repository.
func NewJourneyCatalog(journeys repositories.JourneyRepository) (JourneyCatalog, error) {
	if journeys == nil {
		return nil, errors.New("journey catalog: journey repository is required")
	}
	return &journeyCatalog{journeys: journeys}, nil
}

func (c *journeyCatalog) GetJourney(ctx context.Context, journeyID string) (domain.Journey, error) {
	journey, err := c.journeys.FindActive(ctx, journeyID)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.Journey{}, fmt.Errorf("%w: %v", ErrJourneyNotFound, err)
		}
		return domain.Journey{}, err
	}
	return journey, nil
}
