package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/producthelper/producthelper/internal/store"
	"github.com/producthelper/producthelper/pkg/models"
)

// Service issues, validates, and revokes project API keys.
//
// Validation is fail-closed: malformed input, unknown digests, revoked
// records, and project mismatches all collapse to "invalid" without
// distinguishing detail. Successful validations are cached by digest;
// Revoke invalidates the cache entry, so a revoked key never validates
// again within this process.
type Service struct {
	store store.APIKeyStore
	cache *ristretto.Cache[string, *cachedKey]
	ttl   time.Duration
}

// cachedKey bounds how long a validated record may be served without a
// fresh storage read.
type cachedKey struct {
	key        *models.APIKey
	validUntil time.Time
}

// NewService creates the key service. cacheEntries <= 0 disables the
// validation cache; every check then hits storage.
func NewService(st store.APIKeyStore, cacheEntries int64, cacheTTL time.Duration) (*Service, error) {
	s := &Service{store: st, ttl: cacheTTL}
	if cacheEntries > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[string, *cachedKey]{
			NumCounters: cacheEntries * 10,
			MaxCost:     cacheEntries,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("key cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Close releases the validation cache.
func (s *Service) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}

// Generate mints a key for the project and persists its record. The full
// plaintext key is returned exactly once; afterwards only its digest
// exists. Project IDs outside [0, MaxProjectID] cannot be embedded in a
// prefix and are rejected.
func (s *Service) Generate(ctx context.Context, projectID int64, name string) (string, *models.APIKey, error) {
	if projectID < 0 || projectID > models.MaxProjectID {
		return "", nil, fmt.Errorf("project id %d outside key range [0, %d]", projectID, models.MaxProjectID)
	}

	secret, err := newSecret()
	if err != nil {
		return "", nil, err
	}
	key := FormatKey(projectID, secret)

	rec := &models.APIKey{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Name:      name,
		KeyHash:   HashKey(key),
		KeyPrefix: key[:PrefixLen],
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateAPIKey(ctx, rec); err != nil {
		return "", nil, fmt.Errorf("persist key record: %w", err)
	}

	log.Info().
		Str("key_id", rec.ID).
		Str("key_prefix", rec.KeyPrefix).
		Int64("project_id", projectID).
		Msg("API key generated")
	return key, rec, nil
}

// Validate checks a candidate key against the claimed project. It returns
// the stored record and true only when the key is well-formed, its digest
// matches a non-revoked record, and that record's project equals
// claimedProjectID. Every other outcome — including storage errors — is
// reported as invalid.
func (s *Service) Validate(ctx context.Context, key string, claimedProjectID int64) (*models.APIKey, bool) {
	if !IsValidKeyFormat(key) {
		return nil, false
	}

	hash := HashKey(key)
	cacheKey := "apikey:" + hash

	if s.cache != nil {
		if cached, found := s.cache.Get(cacheKey); found {
			if time.Now().Before(cached.validUntil) {
				if cached.key.Revoked() || cached.key.ProjectID != claimedProjectID {
					return nil, false
				}
				return cached.key, true
			}
			s.cache.Del(cacheKey)
		}
	}

	rec, err := s.store.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		// Unknown digest and backend trouble both fail closed.
		var nf *store.ErrNotFound
		if !errors.As(err, &nf) {
			log.Warn().Err(err).Msg("Key lookup failed, rejecting")
		}
		return nil, false
	}
	if rec.ProjectID != claimedProjectID {
		return nil, false
	}

	if s.cache != nil {
		s.cache.Set(cacheKey, &cachedKey{key: rec, validUntil: time.Now().Add(s.ttl)}, 1)
	}
	return rec, true
}

// Revoke soft-deletes a key: the record is kept with RevokedAt set, and
// the digest can never validate again. Unknown ids return ErrNotFound.
func (s *Service) Revoke(ctx context.Context, keyID string) (*models.APIKey, error) {
	rec, err := s.store.GetAPIKey(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if err := s.store.RevokeAPIKey(ctx, keyID, time.Now().UTC()); err != nil {
		return nil, err
	}
	if s.cache != nil {
		// Drain buffered writes so the delete cannot land behind a
		// pending Set for the same digest.
		s.cache.Del("apikey:" + rec.KeyHash)
		s.cache.Wait()
	}

	// Re-read so the caller sees the authoritative RevokedAt (first
	// revocation wins on repeats).
	rec, err = s.store.GetAPIKey(ctx, keyID)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("key_id", rec.ID).
		Str("key_prefix", rec.KeyPrefix).
		Int64("project_id", rec.ProjectID).
		Msg("API key revoked")
	return rec, nil
}
