package service

import (
	"context"

	"device-gate/internal/repository"
	"device-gate/pkg/config"
	"device-gate/pkg/models"
)

type Services struct {
	IdentityService
	MembershipService
	UserService
	ChannelService
	OriginService
	AdminAuthorizer
	TelegramService
}

// NewServices wires the services over one set of repositories. cache may
// be nil.
func NewServices(repos *repository.Repositories, tg *Telegram, cache MembershipCache, cfg config.MembershipConfig) *Services {
	userService := NewUserService(repos.UserRepository)
	tg.userService = userService

	return &Services{
		IdentityService:   NewIdentityGate(repos.UserRepository),
		MembershipService: NewMembershipGate(repos.ChannelRepository, tg, cache, cfg),
		UserService:       userService,
		ChannelService:    NewChannelService(repos.ChannelRepository, tg),
		OriginService:     NewOriginService(repos.OriginRepository),
		AdminAuthorizer:   NewAuthorizer(repos.UserRepository),
		TelegramService:   tg,
	}
}

type IdentityService interface {
	EvaluateLogin(ctx context.Context, attempt LoginAttempt) (LoginDecision, error)
}

type MembershipService interface {
	VerifyMembership(ctx context.Context, telegramID string) (MembershipResult, error)
}

type UserService interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, id int64, input UserInput) error
	DeleteUser(ctx context.Context, id int64) error
	GetUserByTelegramID(ctx context.Context, telegramID string) (models.User, error)
}

type ChannelService interface {
	ListChannels(ctx context.Context) ([]models.Channel, error)
	AddChannel(ctx context.Context, input ChannelInput) (models.Channel, error)
	DeleteChannel(ctx context.Context, id int64) error
	ResolveChannel(ctx context.Context, username string) (ChatInfo, error)
}

type OriginService interface {
	ListOrigins(ctx context.Context) ([]models.AllowedOrigin, error)
	AddOrigin(ctx context.Context, originURL string) error
	DeleteOrigin(ctx context.Context, id int64) error
	IsAllowed(origin string) bool
	Refresh(ctx context.Context) error
}

type AdminAuthorizer interface {
	AuthorizeAdmin(ctx context.Context, adminID string) (models.User, error)
}

type TelegramService interface {
	MembershipLookup
	ChatResolver
	Start(ctx context.Context)
}

// ChatResolver looks up a chat's title and public link.
type ChatResolver interface {
	ResolveChat(ctx context.Context, chatRef string) (ChatInfo, error)
}
