package casdoor

import (
	"context"
	"fmt"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"

	"github.com/himpower2025/eps-topik-mate/internal/repositories"
)

// CasdoorConfig holds the configuration for the Casdoor connection.
type CasdoorConfig struct {
	Endpoint         string
	ClientID         string
	ClientSecret     string
	Certificate      string
	OrganizationName string
	ApplicationName  string
}

// IdentityCasdoor reads identities from Casdoor. The identity provider
// owns sign-in; this service only reads confirmed identities.
type IdentityCasdoor struct {
	client *casdoorsdk.Client
	config CasdoorConfig
}

func NewIdentityCasdoor(config CasdoorConfig) repositories.IdentityRepository {
	client := casdoorsdk.NewClient(
		config.Endpoint,
		config.ClientID,
		config.ClientSecret,
		config.Certificate,
		config.OrganizationName,
		config.ApplicationName,
	)

	return &IdentityCasdoor{
		client: client,
		config: config,
	}
}

func (r *IdentityCasdoor) GetByID(_ context.Context, id string) (*repositories.Identity, error) {
	user, err := r.client.GetUserByUserId(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get identity from casdoor: %w", err)
	}
	if user == nil {
		return nil, repositories.ErrNotFound
	}
	return convertIdentity(user), nil
}

func (r *IdentityCasdoor) GetByEmail(_ context.Context, email string) (*repositories.Identity, error) {
	user, err := r.client.GetUserByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("failed to get identity by email from casdoor: %w", err)
	}
	if user == nil {
		return nil, repositories.ErrNotFound
	}
	return convertIdentity(user), nil
}

func (r *IdentityCasdoor) ExistsByID(ctx context.Context, id string) (bool, error) {
	_, err := r.GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func convertIdentity(user *casdoorsdk.User) *repositories.Identity {
	name := user.DisplayName
	if name == "" {
		name = user.Name
	}
	return &repositories.Identity{
		ID:        user.Id,
		Name:      name,
		Email:     user.Email,
		AvatarURL: user.Avatar,
	}
}
