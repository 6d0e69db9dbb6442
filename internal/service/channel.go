package service

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"device-gate/internal/repository"
	"device-gate/pkg/models"
)

const unknownChannelName = "Unknown Channel"

// ChannelInput is an admin request to gate on a channel. Public channels
// can be given by link alone; private ones need their -100 id.
type ChannelInput struct {
	ChannelID  string `json:"channel_id"`
	ChannelURL string `json:"channel_url"`
}

type ChannelServiceImpl struct {
	repo     repository.ChannelRepository
	resolver ChatResolver
}

func NewChannelService(repo repository.ChannelRepository, resolver ChatResolver) *ChannelServiceImpl {
	return &ChannelServiceImpl{repo: repo, resolver: resolver}
}

func (c *ChannelServiceImpl) ListChannels(ctx context.Context) ([]models.Channel, error) {
	channels, err := c.repo.GetAllChannels(ctx)
	if err != nil {
		return nil, storeErr("list channels", err)
	}
	return channels, nil
}

func (c *ChannelServiceImpl) AddChannel(ctx context.Context, input ChannelInput) (models.Channel, error) {
	channel := models.Channel{
		ChannelID:   strings.TrimSpace(input.ChannelID),
		ChannelURL:  strings.TrimSpace(input.ChannelURL),
		ChannelName: unknownChannelName,
	}
	if channel.ChannelID == "" && channel.ChannelURL != "" {
		if name, ok := PublicUsernameFromLink(channel.ChannelURL); ok {
			channel.ChannelID = "@" + name
		}
	}
	if channel.ChannelID == "" {
		return models.Channel{}, invalid("could not determine channel id: private channels need their -100 id, public channels need a t.me link")
	}

	entry := log.WithField("channel", channel.ChannelID)
	if refs, ok := lookupRefs(channel.ChannelID); ok {
		info, err := c.resolver.ResolveChat(ctx, refs[0])
		if err != nil {
			entry.WithError(err).Warn("could not fetch channel details, saving as is")
		} else {
			if info.Title != "" {
				channel.ChannelName = info.Title
			}
			if info.URL != "" {
				channel.ChannelURL = info.URL
			}
		}
	}

	created, err := c.repo.CreateChannel(ctx, channel)
	if err != nil {
		return models.Channel{}, storeErr("add channel", err)
	}
	entry.WithField("name", created.ChannelName).Info("channel added")
	return created, nil
}

func (c *ChannelServiceImpl) DeleteChannel(ctx context.Context, id int64) error {
	if err := c.repo.DeleteChannel(ctx, id); err != nil {
		return storeErr("delete channel", err)
	}
	log.WithField("channel_row", id).Info("channel deleted")
	return nil
}

// ResolveChannel looks up a channel's numeric id by its username, so that
// admins can store the stable id instead of a renameable handle.
func (c *ChannelServiceImpl) ResolveChannel(ctx context.Context, username string) (ChatInfo, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return ChatInfo{}, invalid("missing username")
	}
	if name, ok := PublicUsernameFromLink(username); ok {
		username = name
	}
	if !strings.HasPrefix(username, "@") {
		username = "@" + username
	}

	info, err := c.resolver.ResolveChat(ctx, username)
	if err != nil {
		log.WithError(err).WithField("username", username).Warn("resolve channel failed")
		return ChatInfo{}, invalid("could not find channel %s, make sure the bot is an admin there", username)
	}
	return info, nil
}
