package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"device-gate/internal/repository"
	"device-gate/pkg/models"
)

// fakeUsers is an in-memory user store with the same uniqueness rules as
// the real schema: unique telegram_id, and unique device_id among
// non-blocked rows. Transactions are serialized and rolled back on error.
type fakeUsers struct {
	txMu sync.Mutex

	mu     sync.Mutex
	rows   []models.User
	nextID int64
	// rows committed by a simulated concurrent transaction survive our
	// rollback
	concurrent []models.User

	reads  atomic.Int32
	writes atomic.Int32

	readErr      error
	createErr    error
	beforeCreate func(f *fakeUsers)
}

func newFakeUsers(seed ...models.User) *fakeUsers {
	f := &fakeUsers{}
	for _, u := range seed {
		f.insert(u)
	}
	return f
}

func strPtr(s string) *string { return &s }

func cloneUser(u models.User) models.User {
	if u.DeviceID != nil {
		u.DeviceID = strPtr(*u.DeviceID)
	}
	return u
}

func (f *fakeUsers) insert(u models.User) models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u.ID = f.nextID
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	u.CreatedAt, u.UpdatedAt = time.Now(), time.Now()
	f.rows = append(f.rows, cloneUser(u))
	return u
}

func (f *fakeUsers) get(telegramID string) (models.User, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.rows {
		if u.TelegramID == telegramID {
			return cloneUser(u), true
		}
	}
	return models.User{}, false
}

func (f *fakeUsers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// deviceTaken must be called with mu held.
func (f *fakeUsers) deviceTaken(device string, exceptTelegramID string) bool {
	for _, u := range f.rows {
		if u.TelegramID != exceptTelegramID && !u.IsBlocked && u.Device() == device {
			return true
		}
	}
	return false
}

func (f *fakeUsers) InTx(ctx context.Context, fn func(repository.UserRepository) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()

	f.mu.Lock()
	snapshot := make([]models.User, len(f.rows))
	for i, u := range f.rows {
		snapshot[i] = cloneUser(u)
	}
	f.concurrent = nil
	f.mu.Unlock()

	if err := fn(f); err != nil {
		f.mu.Lock()
		f.rows = append(snapshot, f.concurrent...)
		f.mu.Unlock()
		return err
	}
	return nil
}

// commitConcurrent stands in for another request's transaction committing
// while ours is open.
func (f *fakeUsers) commitConcurrent(u models.User) {
	u = f.insert(u)
	f.mu.Lock()
	f.concurrent = append(f.concurrent, cloneUser(u))
	f.mu.Unlock()
}

func (f *fakeUsers) FindByTelegramID(ctx context.Context, telegramID string) (models.User, error) {
	f.reads.Add(1)
	if f.readErr != nil {
		return models.User{}, f.readErr
	}
	u, ok := f.get(telegramID)
	if !ok {
		return models.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) FindByDeviceExcluding(ctx context.Context, deviceID, telegramID string) (models.User, error) {
	f.reads.Add(1)
	if f.readErr != nil {
		return models.User{}, f.readErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.rows {
		if u.Device() == deviceID && u.TelegramID != telegramID {
			return cloneUser(u), nil
		}
	}
	return models.User{}, repository.ErrNotFound
}

func (f *fakeUsers) CreateUser(ctx context.Context, user models.User) error {
	f.writes.Add(1)
	if f.beforeCreate != nil {
		hook := f.beforeCreate
		f.beforeCreate = nil
		hook(f)
	}
	if f.createErr != nil {
		return f.createErr
	}

	f.mu.Lock()
	for _, u := range f.rows {
		if u.TelegramID == user.TelegramID {
			f.mu.Unlock()
			return fmt.Errorf("create user: %w", repository.ErrDuplicate)
		}
	}
	if !user.IsBlocked && f.deviceTaken(user.Device(), "") {
		f.mu.Unlock()
		return fmt.Errorf("create user: %w", repository.ErrDuplicate)
	}
	f.mu.Unlock()

	f.insert(user)
	return nil
}

func (f *fakeUsers) update(telegramID string, fn func(*models.User) error) error {
	f.writes.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].TelegramID == telegramID {
			if err := fn(&f.rows[i]); err != nil {
				return err
			}
			f.rows[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeUsers) UpdateProfile(ctx context.Context, telegramID string, p models.Profile, ip string) error {
	return f.update(telegramID, func(u *models.User) error {
		u.IPAddress = ip
		u.Name, u.Username, u.FirstName, u.LastName = p.Name, p.Username, p.FirstName, p.LastName
		u.PhotoURL, u.AuthDate = p.PhotoURL, p.AuthDate
		return nil
	})
}

func (f *fakeUsers) SetBlocked(ctx context.Context, telegramID string) error {
	return f.update(telegramID, func(u *models.User) error {
		u.IsBlocked = true
		return nil
	})
}

func (f *fakeUsers) BindDevice(ctx context.Context, telegramID, deviceID string) error {
	return f.update(telegramID, func(u *models.User) error {
		if u.DeviceID != nil {
			return repository.ErrNotFound
		}
		if f.deviceTaken(deviceID, telegramID) {
			return fmt.Errorf("bind device: %w", repository.ErrDuplicate)
		}
		u.DeviceID = strPtr(deviceID)
		return nil
	})
}

func (f *fakeUsers) GetAllUsers(ctx context.Context) ([]models.User, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	users := make([]models.User, 0, len(f.rows))
	for i := len(f.rows) - 1; i >= 0; i-- {
		users = append(users, cloneUser(f.rows[i]))
	}
	return users, nil
}

func (f *fakeUsers) UpdateUser(ctx context.Context, id int64, upd repository.UserUpdate) error {
	f.writes.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID != id {
			continue
		}
		if upd.DeviceID != nil && !upd.IsBlocked && f.deviceTaken(*upd.DeviceID, f.rows[i].TelegramID) {
			return fmt.Errorf("update user: %w", repository.ErrDuplicate)
		}
		f.rows[i].Role, f.rows[i].IsBlocked, f.rows[i].Name = upd.Role, upd.IsBlocked, upd.Name
		f.rows[i].DeviceID = nil
		if upd.DeviceID != nil {
			f.rows[i].DeviceID = strPtr(*upd.DeviceID)
		}
		return nil
	}
	return repository.ErrNotFound
}

func (f *fakeUsers) DeleteUser(ctx context.Context, id int64) error {
	f.writes.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

type fakeChannels struct {
	mu       sync.Mutex
	channels []models.Channel
	err      error
	nextID   int64
}

func (f *fakeChannels) GetAllChannels(ctx context.Context) ([]models.Channel, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Channel{}, f.channels...), nil
}

func (f *fakeChannels) CreateChannel(ctx context.Context, ch models.Channel) (models.Channel, error) {
	if f.err != nil {
		return models.Channel{}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ch.ID = f.nextID
	f.channels = append(f.channels, ch)
	return ch, nil
}

func (f *fakeChannels) DeleteChannel(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, ch := range f.channels {
		if ch.ID == id {
			f.channels = append(f.channels[:i], f.channels[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

type fakeOrigins struct {
	mu      sync.Mutex
	origins []models.AllowedOrigin
	err     error
	nextID  int64
}

func (f *fakeOrigins) GetAllOrigins(ctx context.Context) ([]models.AllowedOrigin, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AllowedOrigin{}, f.origins...), nil
}

func (f *fakeOrigins) CreateOrigin(ctx context.Context, originURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.origins {
		if o.OriginURL == originURL {
			return fmt.Errorf("create origin: %w", repository.ErrDuplicate)
		}
	}
	f.nextID++
	f.origins = append(f.origins, models.AllowedOrigin{ID: f.nextID, OriginURL: originURL, CreatedAt: time.Now()})
	return nil
}

func (f *fakeOrigins) DeleteOrigin(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, o := range f.origins {
		if o.ID == id {
			f.origins = append(f.origins[:i], f.origins[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

type lookupResult struct {
	status string
	err    error
	delay  time.Duration
}

// fakeLookup answers getChatMember from a table keyed by chat reference.
// Unknown references fail.
type fakeLookup struct {
	mu      sync.Mutex
	results map[string]lookupResult
	calls   []string
}

func (f *fakeLookup) GetMembershipStatus(ctx context.Context, userID int64, chatRef string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, chatRef)
	r, ok := f.results[chatRef]
	f.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("chat %s not found", chatRef)
	}
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return r.status, r.err
}

func (f *fakeLookup) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeCache struct {
	mu      sync.Mutex
	members map[string]bool
}

func newFakeCache() *fakeCache { return &fakeCache{members: map[string]bool{}} }

func (f *fakeCache) IsMember(ctx context.Context, userID int64, chatRef string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[fmt.Sprintf("%d:%s", userID, chatRef)], nil
}

func (f *fakeCache) RememberMember(ctx context.Context, userID int64, chatRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[fmt.Sprintf("%d:%s", userID, chatRef)] = true
	return nil
}

type fakeResolver struct {
	info  ChatInfo
	err   error
	calls []string
}

func (f *fakeResolver) ResolveChat(ctx context.Context, chatRef string) (ChatInfo, error) {
	f.calls = append(f.calls, chatRef)
	return f.info, f.err
}
