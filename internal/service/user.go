package service

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"device-gate/internal/repository"
	"device-gate/pkg/models"
)

// UserInput is an admin edit of a user. An empty DeviceID unbinds the
// account; the next login binds whatever device it comes from.
type UserInput struct {
	Role      string `json:"role"`
	IsBlocked bool   `json:"is_blocked"`
	Name      string `json:"name"`
	DeviceID  string `json:"device_id"`
}

type UserServiceImpl struct {
	repo repository.UserRepository
}

func NewUserService(repo repository.UserRepository) *UserServiceImpl {
	return &UserServiceImpl{repo: repo}
}

func (u *UserServiceImpl) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := u.repo.GetAllUsers(ctx)
	if err != nil {
		return nil, storeErr("list users", err)
	}
	return users, nil
}

func (u *UserServiceImpl) GetUserByTelegramID(ctx context.Context, telegramID string) (models.User, error) {
	user, err := u.repo.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return models.User{}, storeErr("get user", err)
	}
	return user, nil
}

func (u *UserServiceImpl) UpdateUser(ctx context.Context, id int64, input UserInput) error {
	role := strings.TrimSpace(input.Role)
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleUser && role != models.RoleAdmin {
		return invalid("unknown role %q", input.Role)
	}

	upd := repository.UserUpdate{
		Role:      role,
		IsBlocked: input.IsBlocked,
		Name:      strings.TrimSpace(input.Name),
	}
	if device := strings.TrimSpace(input.DeviceID); device != "" {
		upd.DeviceID = &device
	}

	if err := u.repo.UpdateUser(ctx, id, upd); err != nil {
		return storeErr("update user", err)
	}
	log.WithFields(log.Fields{"user_id": id, "role": role, "blocked": upd.IsBlocked}).Info("user updated by admin")
	return nil
}

func (u *UserServiceImpl) DeleteUser(ctx context.Context, id int64) error {
	if err := u.repo.DeleteUser(ctx, id); err != nil {
		return storeErr("delete user", err)
	}
	log.WithField("user_id", id).Info("user deleted by admin")
	return nil
}
