package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID         int64     `json:"id" db:"id"`
	TelegramID string    `json:"telegram_id" db:"telegram_id"`
	DeviceID   *string   `json:"device_id" db:"device_id"`
	IPAddress  string    `json:"ip_address" db:"ip_address"`
	Name       string    `json:"name" db:"name"`
	Username   string    `json:"username" db:"username"`
	FirstName  string    `json:"first_name" db:"first_name"`
	LastName   string    `json:"last_name" db:"last_name"`
	PhotoURL   string    `json:"photo_url" db:"photo_url"`
	AuthDate   int64     `json:"auth_date" db:"auth_date"`
	IsBlocked  bool      `json:"is_blocked" db:"is_blocked"`
	Role       string    `json:"role" db:"role"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Device returns the bound device id or "" when the user is unbound.
func (u User) Device() string {
	if u.DeviceID == nil {
		return ""
	}
	return *u.DeviceID
}

// DisplayName picks the most human-readable label for the account.
func (u User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Username != "":
		return "@" + u.Username
	default:
		return u.TelegramID
	}
}

// Profile is the set of fields refreshed on every successful login.
type Profile struct {
	Name      string `json:"name"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	PhotoURL  string `json:"photo_url"`
	AuthDate  int64  `json:"auth_date"`
}

type Channel struct {
	ID          int64     `json:"id" db:"id"`
	ChannelID   string    `json:"channel_id" db:"channel_id"`
	ChannelName string    `json:"channel_name" db:"channel_name"`
	ChannelURL  string    `json:"channel_url" db:"channel_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Ref is the reference used for membership lookups: the stored id when
// present, otherwise the link.
func (c Channel) Ref() string {
	if c.ChannelID != "" {
		return c.ChannelID
	}
	return c.ChannelURL
}

type AllowedOrigin struct {
	ID        int64     `json:"id" db:"id"`
	OriginURL string    `json:"origin_url" db:"origin_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
