package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"device-gate/internal/repository"
	"device-gate/pkg/models"
)

const (
	ReasonAccountBlocked = "Account is blocked."
	ReasonDeviceMismatch = "Security Alert: Login attempt from new Device. Account Blocked."
)

type LoginAttempt struct {
	TelegramID string
	DeviceID   string
	Profile    models.Profile
	IPAddress  string
}

type LoginDecision struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason,omitempty"`
	Role    string `json:"role,omitempty"`
}

func deviceOwnedReason(owner models.User) string {
	return fmt.Sprintf("This device is already linked to account %q. Multiple accounts per device are not allowed.", owner.DisplayName())
}

// IdentityGate decides whether a login attempt may proceed and keeps the
// device binding of every account. The order of checks in evaluate is the
// security contract:
//
//  1. a device bound to another account rejects the attempt outright;
//  2. an unknown account is created and bound to the device;
//  3. a blocked account stays blocked;
//  4. a known account seen from a different device is blocked for good;
//  5. otherwise the profile is refreshed.
type IdentityGate struct {
	users repository.UserRepository
}

func NewIdentityGate(users repository.UserRepository) *IdentityGate {
	return &IdentityGate{users: users}
}

func (g *IdentityGate) EvaluateLogin(ctx context.Context, attempt LoginAttempt) (LoginDecision, error) {
	attempt.TelegramID = strings.TrimSpace(attempt.TelegramID)
	attempt.DeviceID = strings.TrimSpace(attempt.DeviceID)
	if attempt.TelegramID == "" || attempt.DeviceID == "" {
		return LoginDecision{}, invalid("missing telegram_id or device_id")
	}

	entry := log.WithFields(log.Fields{
		"telegram_id": attempt.TelegramID,
		"device_id":   attempt.DeviceID,
		"ip":          attempt.IPAddress,
	})
	entry.Info("login attempt")

	decision, err := g.evaluate(ctx, attempt)
	if errors.Is(err, repository.ErrDuplicate) {
		// A concurrent first login committed the same telegram id or device
		// between our scan and insert. The second pass sees its row.
		entry.Warn("login raced a concurrent registration, re-evaluating")
		decision, err = g.evaluate(ctx, attempt)
	}
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return LoginDecision{}, fmt.Errorf("evaluate login: %w: %w", ErrConflict, err)
		}
		entry.WithError(err).Error("login evaluation failed")
		return LoginDecision{}, fmt.Errorf("evaluate login: %w: %w", ErrStoreUnavailable, err)
	}

	if decision.Blocked {
		entry.WithField("reason", decision.Reason).Info("login blocked")
	}
	return decision, nil
}

func (g *IdentityGate) evaluate(ctx context.Context, a LoginAttempt) (LoginDecision, error) {
	var decision LoginDecision

	err := g.users.InTx(ctx, func(tx repository.UserRepository) error {
		owner, err := tx.FindByDeviceExcluding(ctx, a.DeviceID, a.TelegramID)
		switch {
		case err == nil:
			decision = LoginDecision{Blocked: true, Reason: deviceOwnedReason(owner)}
			return nil
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		user, err := tx.FindByTelegramID(ctx, a.TelegramID)
		if errors.Is(err, repository.ErrNotFound) {
			if err := tx.CreateUser(ctx, newUser(a)); err != nil {
				return err
			}
			decision = LoginDecision{Role: models.RoleUser}
			return nil
		}
		if err != nil {
			return err
		}

		if user.IsBlocked {
			decision = LoginDecision{Blocked: true, Reason: ReasonAccountBlocked}
			return nil
		}

		switch user.Device() {
		case a.DeviceID:
		case "":
			// unbound by an admin: the next device to log in takes the slot
			if err := tx.BindDevice(ctx, a.TelegramID, a.DeviceID); err != nil {
				return err
			}
		default:
			if err := tx.SetBlocked(ctx, a.TelegramID); err != nil {
				return err
			}
			decision = LoginDecision{Blocked: true, Reason: ReasonDeviceMismatch}
			return nil
		}

		if err := tx.UpdateProfile(ctx, a.TelegramID, a.Profile, a.IPAddress); err != nil {
			return err
		}
		decision = LoginDecision{Role: roleOrDefault(user.Role)}
		return nil
	})
	return decision, err
}

func newUser(a LoginAttempt) models.User {
	device := a.DeviceID
	return models.User{
		TelegramID: a.TelegramID,
		DeviceID:   &device,
		IPAddress:  a.IPAddress,
		Name:       a.Profile.Name,
		Username:   a.Profile.Username,
		FirstName:  a.Profile.FirstName,
		LastName:   a.Profile.LastName,
		PhotoURL:   a.Profile.PhotoURL,
		AuthDate:   a.Profile.AuthDate,
		Role:       models.RoleUser,
	}
}

func roleOrDefault(role string) string {
	if role == "" {
		return models.RoleUser
	}
	return role
}
