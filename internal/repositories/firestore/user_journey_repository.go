package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/journeyforge/api/internal/domain"
	pfirestore "github.com/journeyforge/api/internal/platform/firestore"
)

const userJourneyCollection = "userJourneys"

// UserJourneyRepository persists access grants within Firestore. The document
// ID is derived from the (user, journey) pair, so creating a grant twice
// fails with a conflict instead of producing a duplicate.
type UserJourneyRepository struct {
	provider *pfirestore.Provider
}

// NewUserJourneyRepository constructs a Firestore-backed grant repository.
func NewUserJourneyRepository(provider *pfirestore.Provider) (*UserJourneyRepository, error) {
	if provider == nil {
		return nil, errors.New("user journey repository requires firestore provider")
	}
	return &UserJourneyRepository{provider: provider}, nil
}

func grantDocumentID(userID, journeyID string) string {
	return fmt.Sprintf("%s_%s", strings.TrimSpace(userID), strings.TrimSpace(journeyID))
}

// Create stores the grant. A grant that already exists for the same user and
// journey surfaces as a conflict error.
func (r *UserJourneyRepository) Create(ctx context.Context, grant domain.UserJourney) error {
	if r == nil || r.provider == nil {
		return errors.New("user journey repository not initialised")
	}
	if strings.TrimSpace(grant.UserID) == "" || strings.TrimSpace(grant.JourneyID) == "" {
		return errors.New("user journey repository: user id and journey id are required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("userJourney.create", err)
	}

	ref := client.Collection(userJourneyCollection).Doc(grantDocumentID(grant.UserID, grant.JourneyID))
	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		return pfirestore.WrapError("userJourney.create", tx.Create(ref, grant))
	}
	_, err = ref.Create(ctx, grant)
	return pfirestore.WrapError("userJourney.create", err)
}

// Exists reports whether the user holds an active grant for the journey.
func (r *UserJourneyRepository) Exists(ctx context.Context, userID, journeyID string) (bool, error) {
	if r == nil || r.provider == nil {
		return false, errors.New("user journey repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return false, pfirestore.WrapError("userJourney.exists", err)
	}

	ref := client.Collection(userJourneyCollection).Doc(grantDocumentID(userID, journeyID))
	var snap *firestore.DocumentSnapshot
	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		wrapped := pfirestore.WrapError("userJourney.exists", err)
		var repoErr *pfirestore.Error
		if errors.As(wrapped, &repoErr) && repoErr.IsNotFound() {
			return false, nil
		}
		return false, wrapped
	}

	var grant domain.UserJourney
	if err := snap.DataTo(&grant); err != nil {
		return false, pfirestore.WrapError("userJourney.exists", err)
	}
	return grant.DeletedAt == nil, nil
}
