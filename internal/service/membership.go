package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"device-gate/internal/repository"
	"device-gate/pkg/config"
	"device-gate/pkg/models"
)

// Chat member statuses as reported by getChatMember.
const (
	StatusCreator       = "creator"
	StatusAdministrator = "administrator"
	StatusMember        = "member"
	StatusRestricted    = "restricted"
	StatusLeft          = "left"
	StatusKicked        = "kicked"
)

const privateChannelPrefix = "-100"

// MembershipLookup answers whether a user is in a chat. Any error is
// treated as "not a member" by the gate.
type MembershipLookup interface {
	GetMembershipStatus(ctx context.Context, userID int64, chatRef string) (string, error)
}

// MembershipCache remembers positive lookups for a short time. Negative
// results are never cached.
type MembershipCache interface {
	IsMember(ctx context.Context, userID int64, chatRef string) (bool, error)
	RememberMember(ctx context.Context, userID int64, chatRef string) error
}

type MembershipResult struct {
	Verified        bool             `json:"verified"`
	MissingChannels []models.Channel `json:"missing_channels"`
}

type MembershipGate struct {
	channels    repository.ChannelRepository
	lookup      MembershipLookup
	cache       MembershipCache
	timeout     time.Duration
	concurrency int
}

func NewMembershipGate(channels repository.ChannelRepository, lookup MembershipLookup, cache MembershipCache, cfg config.MembershipConfig) *MembershipGate {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &MembershipGate{
		channels:    channels,
		lookup:      lookup,
		cache:       cache,
		timeout:     cfg.LookupTimeout,
		concurrency: cfg.Concurrency,
	}
}

func (g *MembershipGate) VerifyMembership(ctx context.Context, telegramID string) (MembershipResult, error) {
	telegramID = strings.TrimSpace(telegramID)
	if telegramID == "" {
		return MembershipResult{}, invalid("missing telegram_id")
	}

	channels, err := g.channels.GetAllChannels(ctx)
	if err != nil {
		return MembershipResult{}, storeErr("list channels", err)
	}
	// no gating configured: any identity passes
	if len(channels) == 0 {
		return MembershipResult{Verified: true, MissingChannels: []models.Channel{}}, nil
	}

	userID, err := strconv.ParseInt(telegramID, 10, 64)
	if err != nil || userID <= 0 {
		return MembershipResult{}, invalid("telegram_id must be a positive integer")
	}

	member := make([]bool, len(channels))
	var eg errgroup.Group
	eg.SetLimit(g.concurrency)
	for i, ch := range channels {
		eg.Go(func() error {
			member[i] = g.checkChannel(ctx, userID, ch)
			return nil
		})
	}
	_ = eg.Wait()

	missing := []models.Channel{}
	for i, ok := range member {
		if !ok {
			missing = append(missing, channels[i])
		}
	}

	log.WithFields(log.Fields{
		"telegram_id": userID,
		"channels":    len(channels),
		"missing":     len(missing),
	}).Info("membership verified")

	return MembershipResult{Verified: len(missing) == 0, MissingChannels: missing}, nil
}

func (g *MembershipGate) checkChannel(ctx context.Context, userID int64, ch models.Channel) bool {
	entry := log.WithFields(log.Fields{"telegram_id": userID, "channel": ch.Ref()})

	refs, ok := lookupRefs(ch.Ref())
	if !ok {
		entry.Warn("channel reference cannot be resolved, treating as not a member")
		return false
	}

	if g.cache != nil {
		hit, err := g.cache.IsMember(ctx, userID, refs[0])
		if err != nil {
			entry.WithError(err).Debug("membership cache read failed")
		}
		if hit {
			return true
		}
	}

	for _, ref := range refs {
		status, err := g.lookupOnce(ctx, userID, ref)
		if err != nil {
			entry.WithError(err).WithField("ref", ref).Warn("membership lookup failed")
			continue
		}

		isMember := IsActiveStatus(status)
		if isMember && g.cache != nil {
			if err := g.cache.RememberMember(ctx, userID, refs[0]); err != nil {
				entry.WithError(err).Debug("membership cache write failed")
			}
		}
		return isMember
	}
	return false
}

func (g *MembershipGate) lookupOnce(ctx context.Context, userID int64, ref string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return withContext(ctx, func() (string, error) {
		return g.lookup.GetMembershipStatus(ctx, userID, ref)
	})
}

// IsActiveStatus reports whether a chat member status counts as membership.
// Unknown statuses do not.
func IsActiveStatus(status string) bool {
	switch status {
	case StatusCreator, StatusAdministrator, StatusMember, StatusRestricted:
		return true
	default:
		return false
	}
}

var (
	usernameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{3,31}$`)
	numericRe  = regexp.MustCompile(`^[0-9]+$`)
	chatIDRe   = regexp.MustCompile(`^-[0-9]+$`)
)

// lookupRefs turns a stored channel reference into the chat ids to try, in
// order. A bare numeric id is a private channel missing its -100 prefix;
// the bare form is kept as a fallback. Invite links cannot be looked up.
func lookupRefs(ref string) ([]string, bool) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return nil, false
	case strings.HasPrefix(ref, "@"):
		return []string{ref}, usernameRe.MatchString(ref[1:])
	case chatIDRe.MatchString(ref):
		return []string{ref}, true
	case numericRe.MatchString(ref):
		return []string{privateChannelPrefix + ref, ref}, true
	}

	if name, ok := PublicUsernameFromLink(ref); ok {
		return []string{"@" + name}, true
	}
	if usernameRe.MatchString(ref) {
		return []string{"@" + ref}, true
	}
	return nil, false
}

// PublicUsernameFromLink extracts the channel username from a t.me link.
// Invite links (t.me/+hash, t.me/joinchat/hash) have no username.
func PublicUsernameFromLink(link string) (string, bool) {
	link = strings.TrimSpace(link)
	for _, prefix := range []string{"https://", "http://"} {
		link = strings.TrimPrefix(link, prefix)
	}
	var path string
	for _, host := range []string{"t.me/", "telegram.me/", "www.t.me/"} {
		if strings.HasPrefix(link, host) {
			path = strings.TrimPrefix(link, host)
			break
		}
	}
	if path == "" {
		return "", false
	}
	if i := strings.IndexAny(path, "/?#"); i >= 0 {
		path = path[:i]
	}
	if strings.HasPrefix(path, "+") || strings.EqualFold(path, "joinchat") || !usernameRe.MatchString(path) {
		return "", false
	}
	return path, true
}

// withContext runs fn but stops waiting once ctx is done, so a lookup that
// ignores its context cannot stall the caller.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v: v, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("lookup abandoned: %w", ctx.Err())
	case r := <-done:
		return r.v, r.err
	}
}
