package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"device-gate/pkg/database"
	"device-gate/pkg/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// DBProvider hands out the current pool; database.Manager implements it.
type DBProvider interface {
	DB() *sqlx.DB
}

type Repositories struct {
	UserRepository
	ChannelRepository
	OriginRepository
}

func NewRepositories(db DBProvider) *Repositories {
	return &Repositories{
		UserRepository:    NewUserRepository(db),
		ChannelRepository: NewChannelRepository(db),
		OriginRepository:  NewOriginRepository(db),
	}
}

type UserRepository interface {
	FindByTelegramID(ctx context.Context, telegramID string) (models.User, error)
	FindByDeviceExcluding(ctx context.Context, deviceID, telegramID string) (models.User, error)
	CreateUser(ctx context.Context, user models.User) error
	UpdateProfile(ctx context.Context, telegramID string, profile models.Profile, ipAddress string) error
	SetBlocked(ctx context.Context, telegramID string) error
	BindDevice(ctx context.Context, telegramID, deviceID string) error

	GetAllUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, id int64, update UserUpdate) error
	DeleteUser(ctx context.Context, id int64) error

	// InTx runs fn against a repository bound to a single transaction.
	// Lookups by telegram id lock the row until fn returns.
	InTx(ctx context.Context, fn func(UserRepository) error) error
}

// UserUpdate carries the admin-editable fields. A nil DeviceID unbinds.
type UserUpdate struct {
	Role      string
	IsBlocked bool
	Name      string
	DeviceID  *string
}

type ChannelRepository interface {
	GetAllChannels(ctx context.Context) ([]models.Channel, error)
	CreateChannel(ctx context.Context, channel models.Channel) (models.Channel, error)
	DeleteChannel(ctx context.Context, id int64) error
}

type OriginRepository interface {
	GetAllOrigins(ctx context.Context) ([]models.AllowedOrigin, error)
	CreateOrigin(ctx context.Context, originURL string) error
	DeleteOrigin(ctx context.Context, id int64) error
}

func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case database.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w: %v", op, ErrDuplicate, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// insertReturningID covers the dialect split: postgres answers RETURNING,
// mysql reports LastInsertId.
func insertReturningID(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (int64, error) {
	query = q.Rebind(query)
	if q.DriverName() == "mysql" {
		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}
	var id int64
	err := q.QueryRowxContext(ctx, query+" RETURNING id", args...).Scan(&id)
	return id, err
}
