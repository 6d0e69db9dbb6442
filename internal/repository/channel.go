package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"device-gate/pkg/models"
)

type ChannelRepositoryImpl struct {
	db DBProvider
}

func NewChannelRepository(db DBProvider) *ChannelRepositoryImpl {
	return &ChannelRepositoryImpl{db: db}
}

func (c *ChannelRepositoryImpl) GetAllChannels(ctx context.Context) ([]models.Channel, error) {
	query := `SELECT id, channel_id, channel_name, channel_url, created_at FROM channels ORDER BY id DESC`

	channels := []models.Channel{}
	if err := sqlx.SelectContext(ctx, c.db.DB(), &channels, query); err != nil {
		return nil, mapErr("get all channels", err)
	}
	return channels, nil
}

func (c *ChannelRepositoryImpl) CreateChannel(ctx context.Context, channel models.Channel) (models.Channel, error) {
	query := `INSERT INTO channels (channel_id, channel_name, channel_url, created_at) VALUES (?, ?, ?, ?)`
	channel.CreatedAt = time.Now().UTC()

	id, err := insertReturningID(ctx, c.db.DB(), query, channel.ChannelID, channel.ChannelName, channel.ChannelURL, channel.CreatedAt)
	if err != nil {
		return models.Channel{}, mapErr("create channel", err)
	}
	channel.ID = id
	return channel, nil
}

func (c *ChannelRepositoryImpl) DeleteChannel(ctx context.Context, id int64) error {
	db := c.db.DB()
	res, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM channels WHERE id = ?`), id)
	if err != nil {
		return mapErr("delete channel", err)
	}
	return expectAffected(res)
}
