package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"device-gate/pkg/models"
)

type staticDB struct{ db *sqlx.DB }

func (s staticDB) DB() *sqlx.DB { return s.db }

func newMock(t *testing.T, driver string) (staticDB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return staticDB{db: sqlx.NewDb(db, driver)}, mock
}

var userCols = []string{"id", "telegram_id", "device_id", "ip_address", "name", "username", "first_name",
	"last_name", "photo_url", "auth_date", "is_blocked", "role", "created_at", "updated_at"}

func userRow(rows *sqlmock.Rows, id int64, telegramID, deviceID, name string, blocked bool) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, telegramID, deviceID, "10.0.0.1", name, "", "", "", "", int64(0), blocked, models.RoleUser, now, now)
}

func TestFindByDeviceExcluding(t *testing.T) {
	db, mock := newMock(t, "pgx")
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE device_id = $1 AND telegram_id <> $2`)).
		WithArgs("D1", "200").
		WillReturnRows(userRow(sqlmock.NewRows(userCols), 1, "100", "D1", "Alice", false))

	owner, err := repo.FindByDeviceExcluding(context.Background(), "D1", "200")
	require.NoError(t, err)
	assert.Equal(t, "100", owner.TelegramID)
	assert.Equal(t, "D1", owner.Device())
	assert.Equal(t, "Alice", owner.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByTelegramIDNotFound(t *testing.T) {
	db, mock := newMock(t, "pgx")
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE telegram_id = $1`)).
		WithArgs("404").
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := repo.FindByTelegramID(context.Background(), "404")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxLocksAndCommits(t *testing.T) {
	db, mock := newMock(t, "pgx")
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE telegram_id = $1 FOR UPDATE`)).
		WithArgs("100").
		WillReturnRows(userRow(sqlmock.NewRows(userCols), 1, "100", "D1", "Alice", false))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET is_blocked = TRUE, updated_at = $1 WHERE telegram_id = $2`)).
		WithArgs(sqlmock.AnyArg(), "100").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.InTx(context.Background(), func(tx UserRepository) error {
		if _, err := tx.FindByTelegramID(context.Background(), "100"); err != nil {
			return err
		}
		return tx.SetBlocked(context.Background(), "100")
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxRollsBackOnError(t *testing.T) {
	db, mock := newMock(t, "pgx")
	repo := NewUserRepository(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(UserRepository) error { return boom })
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDuplicate(t *testing.T) {
	db, mock := newMock(t, "pgx")
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnError(pgx.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	device := "D1"
	err := repo.CreateUser(context.Background(), models.User{TelegramID: "100", DeviceID: &device, Role: models.RoleUser})
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUserMissing(t *testing.T) {
	db, mock := newMock(t, "mysql")
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET role = ?, is_blocked = ?, name = ?, device_id = ?, updated_at = ? WHERE id = ?`)).
		WithArgs(models.RoleAdmin, false, "Bob", nil, sqlmock.AnyArg(), int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateUser(context.Background(), 9, UserUpdate{Role: models.RoleAdmin, Name: "Bob"})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateChannelPostgresReturning(t *testing.T) {
	db, mock := newMock(t, "pgx")
	repo := NewChannelRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO channels (channel_id, channel_name, channel_url, created_at) VALUES ($1, $2, $3, $4) RETURNING id`)).
		WithArgs("@news", "News", "https://t.me/news", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	ch, err := repo.CreateChannel(context.Background(), models.Channel{ChannelID: "@news", ChannelName: "News", ChannelURL: "https://t.me/news"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), ch.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateChannelMySQLLastInsertID(t *testing.T) {
	db, mock := newMock(t, "mysql")
	repo := NewChannelRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO channels (channel_id, channel_name, channel_url, created_at) VALUES (?, ?, ?, ?)`)).
		WithArgs("-1001234", "Private", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(12, 1))

	ch, err := repo.CreateChannel(context.Background(), models.Channel{ChannelID: "-1001234", ChannelName: "Private"})
	require.NoError(t, err)
	assert.Equal(t, int64(12), ch.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOriginMissing(t *testing.T) {
	db, mock := newMock(t, "pgx")
	repo := NewOriginRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM allowed_origins WHERE id = $1`)).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.DeleteOrigin(context.Background(), 3), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAllOrigins(t *testing.T) {
	db, mock := newMock(t, "pgx")
	repo := NewOriginRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, origin_url, created_at FROM allowed_origins ORDER BY id DESC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "origin_url", "created_at"}).
			AddRow(2, "https://app.example.com", time.Now()).
			AddRow(1, "http://localhost:5173", time.Now()))

	origins, err := repo.GetAllOrigins(context.Background())
	require.NoError(t, err)
	require.Len(t, origins, 2)
	assert.Equal(t, "https://app.example.com", origins[0].OriginURL)
	require.NoError(t, mock.ExpectationsWereMet())
}
