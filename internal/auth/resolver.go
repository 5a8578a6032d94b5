package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/zapgate/zapgate/internal/model"
	"github.com/zapgate/zapgate/internal/store"
)

var (
	// ErrInvalidKeyFormat means the token does not match the issuance
	// convention. Returned before any cache or store access.
	ErrInvalidKeyFormat = errors.New("invalid api key format")
	// ErrInvalidCredentials covers unknown and disabled keys alike, so a
	// caller cannot probe for key existence.
	ErrInvalidCredentials = errors.New("invalid or disabled api key")
)

const (
	// credentialTTL bounds worst-case staleness after key regeneration or
	// disable: a revoked token may keep resolving until the cached entry
	// expires. Accepted consistency/performance trade-off.
	credentialTTL = 5 * time.Minute
	cacheSize     = 4096
)

// Resolver resolves opaque bearer tokens to connection records. Successful
// lookups are cached keyed by the raw token.
type Resolver struct {
	store *store.Store
	cache *expirable.LRU[string, *model.Connection]
}

// NewResolver creates a Resolver with a 5-minute credential cache.
func NewResolver(st *store.Store) *Resolver {
	return &Resolver{
		store: st,
		cache: expirable.NewLRU[string, *model.Connection](cacheSize, nil, credentialTTL),
	}
}

// Resolve maps a bearer token to its connection. Malformed tokens fail fast
// with ErrInvalidKeyFormat; unknown and disabled keys both return
// ErrInvalidCredentials.
func (r *Resolver) Resolve(ctx context.Context, token string) (*model.Connection, error) {
	if !ValidKeyFormat(token) {
		return nil, ErrInvalidKeyFormat
	}

	if conn, ok := r.cache.Get(token); ok {
		return conn, nil
	}

	conn, err := r.store.GetConnectionByKeyHash(ctx, HashKey(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("resolve api key: %w", err)
	}

	r.cache.Add(token, conn)
	return conn, nil
}

// Invalidate drops the cached entry for a token. Best-effort: other process
// instances converge via the cache TTL.
func (r *Resolver) Invalidate(token string) {
	r.cache.Remove(token)
}

// CacheLen returns the number of cached credentials, for tests and
// diagnostics.
func (r *Resolver) CacheLen() int {
	return r.cache.Len()
}

// IssueKey generates and installs a fresh API key for a connection,
// atomically invalidating any previous key, and returns the raw key. Used
// for both first enable and regeneration.
func (r *Resolver) IssueKey(ctx context.Context, connectionID int64) (string, error) {
	raw, hash, prefix, err := GenerateKey()
	if err != nil {
		return "", err
	}
	if err := r.store.RotateConnectionKey(ctx, connectionID, hash, prefix); err != nil {
		return "", fmt.Errorf("install api key: %w", err)
	}
	return raw, nil
}
