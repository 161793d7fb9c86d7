// Package apikey issues and verifies bearer API keys. Raw keys are shown
// once; only a bcrypt hash and the first PrefixLen characters are stored.
package apikey

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobclock/internal/store"
	"github.com/kiranshivaraju/jobclock/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// PrefixLen is the number of leading key characters stored in clear for lookup.
const PrefixLen = 8

const keyMarker = "jc_"

var ErrInvalidKey = errors.New("invalid api key")

// Generate returns a new random raw key.
func Generate() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return keyMarker + hex.EncodeToString(buf), nil
}

// Prefix returns the lookup prefix of raw.
func Prefix(raw string) (string, error) {
	if len(raw) < PrefixLen {
		return "", ErrInvalidKey
	}
	return raw[:PrefixLen], nil
}

// Issue creates and stores a key for technicianID, returning the raw key
// alongside the stored record.
func Issue(ctx context.Context, s store.Store, technicianID uuid.UUID, name string, scopes []string) (string, *models.APIKey, error) {
	raw, err := Generate()
	if err != nil {
		return "", nil, err
	}
	key, err := save(ctx, s, raw, technicianID, name, scopes)
	if err != nil {
		return "", nil, err
	}
	return raw, key, nil
}

// Match returns the stored key matching raw, or ErrInvalidKey.
func Match(ctx context.Context, s store.Store, raw string) (*models.APIKey, error) {
	prefix, err := Prefix(raw)
	if err != nil {
		return nil, err
	}
	keys, err := s.GetAPIKeyByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	for _, key := range keys {
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(raw)) == nil {
			return key, nil
		}
	}
	return nil, ErrInvalidKey
}

// EnsureBootstrap stores raw as an admin key unless it already matches one.
// It reports whether a key was created.
func EnsureBootstrap(ctx context.Context, s store.Store, raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	_, err := Match(ctx, s, raw)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrInvalidKey) {
		return false, err
	}
	if _, err := save(ctx, s, raw, uuid.New(), "bootstrap-admin", []string{models.ScopeAdmin}); err != nil {
		return false, err
	}
	return true, nil
}

func save(ctx context.Context, s store.Store, raw string, technicianID uuid.UUID, name string, scopes []string) (*models.APIKey, error) {
	prefix, err := Prefix(raw)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash api key: %w", err)
	}
	if scopes == nil {
		scopes = []string{}
	}

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:           uuid.New(),
		TechnicianID: technicianID,
		Name:         name,
		KeyHash:      string(hash),
		KeyPrefix:    prefix,
		Scopes:       scopes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}
	return key, nil
}
