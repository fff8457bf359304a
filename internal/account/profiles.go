package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"example.com/commitcollect/internal/domain"
	"example.com/commitcollect/internal/storage"
)

// Profiles manages the profile anchor item created on first login.
type Profiles struct {
	store storage.Store
	now   func() time.Time
}

// NewProfiles builds a profile repository over the main table's store.
func NewProfiles(store storage.Store) *Profiles {
	return &Profiles{store: store, now: time.Now}
}

// Ensure creates the profile on first login. The write is create-only, so a
// concurrent first login or a returning user leaves the original intact.
func (p *Profiles) Ensure(ctx context.Context, userID, email string) (domain.UserProfile, error) {
	profile := domain.NewUserProfile(userID, email, p.now().UTC().Unix())

	item, err := attributevalue.MarshalMap(profile)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("marshal profile: %w", err)
	}

	err = p.store.Put(ctx, item, storage.IfNotExists())
	if err == nil {
		return profile, nil
	}
	if errors.Is(err, storage.ErrConditionFailed) {
		return p.Get(ctx, userID)
	}
	return domain.UserProfile{}, fmt.Errorf("store profile: %w", err)
}

// Get loads the profile, or ErrProfileNotFound when absent.
func (p *Profiles) Get(ctx context.Context, userID string) (domain.UserProfile, error) {
	item, err := p.store.Get(ctx, storage.Key{PK: domain.UserPK(userID), SK: domain.SKProfile}, false)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("load profile: %w", err)
	}
	if item == nil {
		return domain.UserProfile{}, domain.ErrProfileNotFound
	}
	var profile domain.UserProfile
	if err := attributevalue.UnmarshalMap(item, &profile); err != nil {
		return domain.UserProfile{}, fmt.Errorf("unmarshal profile: %w", err)
	}
	return profile, nil
}
