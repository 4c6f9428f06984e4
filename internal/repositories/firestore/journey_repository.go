package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/journeyforge/api/internal/domain"
	pfirestore "github.com/journeyforge/api/internal/platform/firestore"
)

const journeyCollection = "journeys"

// JourneyRepository reads the journey catalog from Firestore. The order core
// only consumes the catalog; writes happen elsewhere.
type JourneyRepository struct {
	provider *pfirestore.Provider
}

// NewJourneyRepository constructs a Firestore-backed journey repository.
func NewJourneyRepository(provider *pfirestore.Provider) (*JourneyRepository, error) {
	if provider == nil {
		return nil, errors.New("journey repository requires firestore provider")
	}
	return &JourneyRepository{provider: provider}, nil
}

// FindActive loads the journey and rejects soft-deleted entries as not-found.
func (r *JourneyRepository) FindActive(ctx context.Context, journeyID string) (domain.Journey, error) {
	if r == nil || r.provider == nil {
		return domain.Journey{}, errors.New("journey repository not initialised")
	}
	journeyID = strings.TrimSpace(journeyID)
	if journeyID == "" {
		return domain.Journey{}, pfirestore.NewNotFound("journey.find", errors.New("journey id is required"))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Journey{}, pfirestore.WrapError("journey.find", err)
	}

	ref := client.Collection(journeyCollection).Doc(journeyID)
	var snap *firestore.DocumentSnapshot
	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		return domain.Journey{}, pfirestore.WrapError("journey.find", err)
	}

	var journey domain.Journey
	if err := snap.DataTo(&journey); err != nil {
		return domain.Journey{}, pfirestore.WrapError("journey.find", err)
	}
	journey.ID = snap.Ref.ID
	if journey.IsDeleted() {
		return domain.Journey{}, pfirestore.NewNotFound("journey.find", errors.New("journey not found"))
	}
	return journey, nil
}
