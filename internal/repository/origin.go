package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"device-gate/pkg/models"
)

type OriginRepositoryImpl struct {
	db DBProvider
}

func NewOriginRepository(db DBProvider) *OriginRepositoryImpl {
	return &OriginRepositoryImpl{db: db}
}

func (o *OriginRepositoryImpl) GetAllOrigins(ctx context.Context) ([]models.AllowedOrigin, error) {
	origins := []models.AllowedOrigin{}
	err := sqlx.SelectContext(ctx, o.db.DB(), &origins, `SELECT id, origin_url, created_at FROM allowed_origins ORDER BY id DESC`)
	if err != nil {
		return nil, mapErr("get all origins", err)
	}
	return origins, nil
}

func (o *OriginRepositoryImpl) CreateOrigin(ctx context.Context, originURL string) error {
	db := o.db.DB()
	_, err := db.ExecContext(ctx, db.Rebind(`INSERT INTO allowed_origins (origin_url, created_at) VALUES (?, ?)`),
		originURL, time.Now().UTC())
	return mapErr("create origin", err)
}

func (o *OriginRepositoryImpl) DeleteOrigin(ctx context.Context, id int64) error {
	db := o.db.DB()
	res, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM allowed_origins WHERE id = ?`), id)
	if err != nil {
		return mapErr("delete origin", err)
	}
	return expectAffected(res)
}
