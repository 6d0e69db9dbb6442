package service

import (
	"context"
	"net/url"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"device-gate/internal/repository"
	"device-gate/pkg/models"
)

// OriginServiceImpl keeps the allowed origins in memory for the CORS
// check, which runs on every request. The set is reloaded after each admin
// change and periodically from the scheduler.
type OriginServiceImpl struct {
	repo repository.OriginRepository

	mu      sync.RWMutex
	allowed map[string]struct{}
}

func NewOriginService(repo repository.OriginRepository) *OriginServiceImpl {
	return &OriginServiceImpl{repo: repo, allowed: map[string]struct{}{}}
}

func (o *OriginServiceImpl) ListOrigins(ctx context.Context) ([]models.AllowedOrigin, error) {
	origins, err := o.repo.GetAllOrigins(ctx)
	if err != nil {
		return nil, storeErr("list origins", err)
	}
	return origins, nil
}

func (o *OriginServiceImpl) AddOrigin(ctx context.Context, originURL string) error {
	origin, err := normalizeOrigin(originURL)
	if err != nil {
		return err
	}
	if err := o.repo.CreateOrigin(ctx, origin); err != nil {
		return storeErr("add origin", err)
	}
	log.WithField("origin", origin).Info("origin allowed")
	o.refreshAfterChange(ctx)
	return nil
}

func (o *OriginServiceImpl) DeleteOrigin(ctx context.Context, id int64) error {
	if err := o.repo.DeleteOrigin(ctx, id); err != nil {
		return storeErr("delete origin", err)
	}
	log.WithField("origin_row", id).Info("origin removed")
	o.refreshAfterChange(ctx)
	return nil
}

func (o *OriginServiceImpl) IsAllowed(origin string) bool {
	key := strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.allowed[key]
	return ok
}

// Refresh replaces the in-memory set. On failure the previous set stays.
func (o *OriginServiceImpl) Refresh(ctx context.Context) error {
	origins, err := o.repo.GetAllOrigins(ctx)
	if err != nil {
		return storeErr("refresh origins", err)
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		allowed[strings.ToLower(strings.TrimRight(origin.OriginURL, "/"))] = struct{}{}
	}

	o.mu.Lock()
	o.allowed = allowed
	o.mu.Unlock()
	return nil
}

func (o *OriginServiceImpl) refreshAfterChange(ctx context.Context) {
	if err := o.Refresh(ctx); err != nil {
		log.WithError(err).Warn("origin allow-list refresh failed, the scheduler will retry")
	}
}

// normalizeOrigin accepts scheme://host[:port] and drops a trailing slash.
func normalizeOrigin(raw string) (string, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return "", invalid("missing origin_url")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", invalid("origin_url must look like https://example.com")
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return "", invalid("origin_url must not contain a path")
	}
	return u.Scheme + "://" + u.Host, nil
}
