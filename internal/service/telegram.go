package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"device-gate/pkg/config"
)

// ChatInfo is what getChat tells us about a channel.
type ChatInfo struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// Telegram talks to the Bot API: membership lookups and chat resolution
// for the gates, plus an optional command loop for end users.
type Telegram struct {
	Bot         *tgbotapi.BotAPI
	userService UserService
	limiter     *rate.Limiter
	pollUpdates bool
}

// NewTelegramService connects to the Bot API. With an empty token it
// returns a client whose every call fails, which the membership gate
// treats as "not a member".
func NewTelegramService(cfg config.TelegramConfig, timeout time.Duration) (*Telegram, error) {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 25
	}
	t := &Telegram{
		limiter:     rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		pollUpdates: cfg.PollUpdates,
	}
	if cfg.Token == "" {
		log.Warn("telegram token is empty, channel checks will fail closed")
		return t, nil
	}

	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("connect to telegram bot api: %w", err)
	}
	bot.Debug = cfg.Debug
	log.Infof("Authorized on account %s", bot.Self.UserName)

	t.Bot = bot
	return t, nil
}

func (t *Telegram) GetMembershipStatus(ctx context.Context, userID int64, chatRef string) (string, error) {
	if t.Bot == nil {
		return "", ErrTelegramUnavailable
	}
	chat, err := chatConfig(chatRef)
	if err != nil {
		return "", err
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}

	member, err := withContext(ctx, func() (tgbotapi.ChatMember, error) {
		return t.Bot.GetChatMember(tgbotapi.GetChatMemberConfig{
			ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
				ChatID:             chat.ChatID,
				SuperGroupUsername: chat.SuperGroupUsername,
				UserID:             userID,
			},
		})
	})
	if err != nil {
		return "", fmt.Errorf("getChatMember %s: %w", chatRef, err)
	}

	// a restricted user may already be outside the chat
	if member.Status == StatusRestricted && !member.IsMember {
		return StatusLeft, nil
	}
	return member.Status, nil
}

func (t *Telegram) ResolveChat(ctx context.Context, chatRef string) (ChatInfo, error) {
	if t.Bot == nil {
		return ChatInfo{}, ErrTelegramUnavailable
	}
	cfg, err := chatConfig(chatRef)
	if err != nil {
		return ChatInfo{}, err
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return ChatInfo{}, err
	}

	chat, err := withContext(ctx, func() (tgbotapi.Chat, error) {
		return t.Bot.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: cfg})
	})
	if err != nil {
		return ChatInfo{}, fmt.Errorf("getChat %s: %w", chatRef, err)
	}

	info := ChatInfo{ID: chat.ID, Title: chat.Title}
	switch {
	case chat.UserName != "":
		info.URL = "https://t.me/" + chat.UserName
	case chat.InviteLink != "":
		info.URL = chat.InviteLink
	}
	return info, nil
}

func chatConfig(chatRef string) (tgbotapi.ChatConfig, error) {
	if strings.HasPrefix(chatRef, "@") {
		return tgbotapi.ChatConfig{SuperGroupUsername: chatRef}, nil
	}
	id, err := strconv.ParseInt(chatRef, 10, 64)
	if err != nil {
		return tgbotapi.ChatConfig{}, fmt.Errorf("invalid chat reference %q", chatRef)
	}
	return tgbotapi.ChatConfig{ChatID: id}, nil
}

// Start runs the bot command loop until ctx is cancelled. It is a no-op
// unless polling is enabled and the bot is configured.
func (t *Telegram) Start(ctx context.Context) {
	if t.Bot == nil || !t.pollUpdates {
		return
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.Bot.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		t.Bot.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil || update.Message.From == nil {
			continue
		}
		reply := t.handleCommand(ctx, update.Message.From.ID, update.Message.Command())
		if reply == "" {
			continue
		}
		msg := tgbotapi.NewMessage(update.Message.Chat.ID, reply)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := t.Bot.Send(msg); err != nil {
			log.WithError(err).Warn("failed to send bot reply")
		}
	}
}

func (t *Telegram) handleCommand(ctx context.Context, fromID int64, command string) string {
	switch command {
	case "start":
		return "Hi! This bot guards logins to the app. Use /id to see your Telegram id and /status to check your account."
	case "id":
		return fmt.Sprintf("Your Telegram id: `%d`", fromID)
	case "status":
		if t.userService == nil {
			return ""
		}
		user, err := t.userService.GetUserByTelegramID(ctx, strconv.FormatInt(fromID, 10))
		switch {
		case errors.Is(err, ErrNotFound):
			return "You have not logged in yet."
		case err != nil:
			log.WithError(err).Error("status command failed")
			return "Could not check your account right now, try again later."
		case user.IsBlocked:
			return "Your account is blocked."
		default:
			return fmt.Sprintf("Your account is active (role: %s).", roleOrDefault(user.Role))
		}
	case "":
		return ""
	default:
		return "Sorry, I don't know that command."
	}
}
