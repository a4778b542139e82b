package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rpggio/officedesk/internal/repository"
)

// Profile is the serialized user profile the front-end stores after login.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// UnmarshalJSON accepts both "id" and the backend's "_id".
func (p *Profile) UnmarshalJSON(data []byte) error {
	type plain Profile
	var raw struct {
		plain
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Profile(raw.plain)
	if p.ID == "" {
		p.ID = raw.MongoID
	}
	return nil
}

// Profile returns the stored user profile.
func (r *KVRepository) Profile(ctx context.Context) (*Profile, error) {
	data, err := r.Get(ctx, repository.KeyUser)
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decoding user profile: %w", err)
	}
	return &p, nil
}

// Token returns the stored session token, or "" when none is stored.
func (r *KVRepository) Token(ctx context.Context) (string, error) {
	token, err := r.Get(ctx, repository.KeyToken)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	return token, err
}
