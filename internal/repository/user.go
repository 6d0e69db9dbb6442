package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"device-gate/pkg/models"
)

const userColumns = `id, telegram_id, device_id, ip_address, name, username, first_name, last_name,
	photo_url, auth_date, is_blocked, role, created_at, updated_at`

type UserRepositoryImpl struct {
	db DBProvider
	tx *sqlx.Tx
}

func NewUserRepository(db DBProvider) *UserRepositoryImpl {
	return &UserRepositoryImpl{
		db: db,
	}
}

func (u *UserRepositoryImpl) q() sqlx.ExtContext {
	if u.tx != nil {
		return u.tx
	}
	return u.db.DB()
}

func (u *UserRepositoryImpl) InTx(ctx context.Context, fn func(UserRepository) error) error {
	if u.tx != nil {
		return fn(u)
	}
	tx, err := u.db.DB().BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mapErr("begin tx", err)
	}
	if err := fn(&UserRepositoryImpl{db: u.db, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Errorf("rollback user tx err: %v", rbErr)
		}
		return err
	}
	return mapErr("commit tx", tx.Commit())
}

func (u *UserRepositoryImpl) FindByTelegramID(ctx context.Context, telegramID string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = ?`
	if u.tx != nil {
		query += ` FOR UPDATE`
	}
	q := u.q()

	var user models.User
	if err := sqlx.GetContext(ctx, q, &user, q.Rebind(query), telegramID); err != nil {
		return models.User{}, mapErr("find user by telegram id", err)
	}
	return user, nil
}

func (u *UserRepositoryImpl) FindByDeviceExcluding(ctx context.Context, deviceID, telegramID string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE device_id = ? AND telegram_id <> ? ORDER BY id LIMIT 1`
	q := u.q()

	var user models.User
	if err := sqlx.GetContext(ctx, q, &user, q.Rebind(query), deviceID, telegramID); err != nil {
		return models.User{}, mapErr("find user by device", err)
	}
	return user, nil
}

func (u *UserRepositoryImpl) CreateUser(ctx context.Context, user models.User) error {
	query := `
		INSERT INTO users (telegram_id, device_id, ip_address, name, username, first_name, last_name,
			photo_url, auth_date, is_blocked, role, created_at, updated_at)
		VALUES (:telegram_id, :device_id, :ip_address, :name, :username, :first_name, :last_name,
			:photo_url, :auth_date, :is_blocked, :role, :created_at, :updated_at)`
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	if _, err := sqlx.NamedExecContext(ctx, u.q(), query, user); err != nil {
		return mapErr("create user", err)
	}
	return nil
}

func (u *UserRepositoryImpl) UpdateProfile(ctx context.Context, telegramID string, p models.Profile, ipAddress string) error {
	query := `
		UPDATE users SET ip_address = ?, name = ?, username = ?, first_name = ?, last_name = ?,
			photo_url = ?, auth_date = ?, updated_at = ?
		WHERE telegram_id = ?`
	q := u.q()

	res, err := q.ExecContext(ctx, q.Rebind(query), ipAddress, p.Name, p.Username, p.FirstName, p.LastName,
		p.PhotoURL, p.AuthDate, time.Now().UTC(), telegramID)
	if err != nil {
		return mapErr("update profile", err)
	}
	return expectAffected(res)
}

func (u *UserRepositoryImpl) SetBlocked(ctx context.Context, telegramID string) error {
	query := `UPDATE users SET is_blocked = TRUE, updated_at = ? WHERE telegram_id = ?`
	q := u.q()

	res, err := q.ExecContext(ctx, q.Rebind(query), time.Now().UTC(), telegramID)
	if err != nil {
		return mapErr("set blocked", err)
	}
	return expectAffected(res)
}

// BindDevice only touches records with no device, so it can never move an
// existing binding.
func (u *UserRepositoryImpl) BindDevice(ctx context.Context, telegramID, deviceID string) error {
	query := `UPDATE users SET device_id = ?, updated_at = ? WHERE telegram_id = ? AND device_id IS NULL`
	q := u.q()

	res, err := q.ExecContext(ctx, q.Rebind(query), deviceID, time.Now().UTC(), telegramID)
	if err != nil {
		return mapErr("bind device", err)
	}
	return expectAffected(res)
}

func (u *UserRepositoryImpl) GetAllUsers(ctx context.Context) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id DESC`

	users := []models.User{}
	if err := sqlx.SelectContext(ctx, u.q(), &users, query); err != nil {
		log.Errorf("get all users err: %v", err)
		return nil, mapErr("get all users", err)
	}
	return users, nil
}

func (u *UserRepositoryImpl) UpdateUser(ctx context.Context, id int64, upd UserUpdate) error {
	query := `UPDATE users SET role = ?, is_blocked = ?, name = ?, device_id = ?, updated_at = ? WHERE id = ?`
	q := u.q()

	res, err := q.ExecContext(ctx, q.Rebind(query), upd.Role, upd.IsBlocked, upd.Name, upd.DeviceID, time.Now().UTC(), id)
	if err != nil {
		return mapErr("update user", err)
	}
	return expectAffected(res)
}

func (u *UserRepositoryImpl) DeleteUser(ctx context.Context, id int64) error {
	q := u.q()
	res, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return mapErr("delete user", err)
	}
	return expectAffected(res)
}
