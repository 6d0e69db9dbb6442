package service

import (
	"context"
	"errors"
	"strings"

	"device-gate/internal/repository"
	"device-gate/pkg/models"
)

type Authorizer struct {
	users repository.UserRepository
}

func NewAuthorizer(users repository.UserRepository) *Authorizer {
	return &Authorizer{users: users}
}

// AuthorizeAdmin resolves the caller's telegram id to an admin account.
func (a *Authorizer) AuthorizeAdmin(ctx context.Context, adminID string) (models.User, error) {
	adminID = strings.TrimSpace(adminID)
	if adminID == "" {
		return models.User{}, ErrUnauthorized
	}

	user, err := a.users.FindByTelegramID(ctx, adminID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return models.User{}, ErrForbidden
	case err != nil:
		return models.User{}, storeErr("authorize admin", err)
	case user.Role != models.RoleAdmin:
		return models.User{}, ErrForbidden
	}
	return user, nil
}
