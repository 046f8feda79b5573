package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/daily-brief/internal/preferences"
	"github.com/jonathan/daily-brief/internal/types"
)

// Profiles returns a preferences.Store backed by the profiles table.
func (db *DB) Profiles() preferences.Store {
	return &profileStore{db: db}
}

type profileStore struct {
	db *DB
}

func (s *profileStore) Get(ctx context.Context, userID string) (types.Profile, error) {
	if userID == "" {
		return types.Profile{}, &preferences.StorageError{Op: "get", Cause: preferences.ErrEmptyUserID}
	}

	var raw []byte
	err := s.db.pool.QueryRow(ctx,
		`SELECT profile FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.NewProfile(userID), nil
	}
	if err != nil {
		return types.Profile{}, &preferences.StorageError{Op: "get", UserID: userID, Cause: err}
	}

	var p types.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.Profile{}, &preferences.StorageError{Op: "get", UserID: userID, Cause: fmt.Errorf("corrupt profile: %w", err)}
	}
	p.UserID = userID
	p.ApplyDefaults()
	return p, nil
}

// Put replaces the whole row with a single upsert.
func (s *profileStore) Put(ctx context.Context, userID string, profile types.Profile) error {
	if userID == "" {
		return &preferences.StorageError{Op: "put", Cause: preferences.ErrEmptyUserID}
	}
	profile.UserID = userID

	raw, err := json.Marshal(profile)
	if err != nil {
		return &preferences.StorageError{Op: "put", UserID: userID, Cause: err}
	}

	_, err = s.db.pool.Exec(ctx,
		`INSERT INTO profiles (user_id, version, profile, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET version = $2, profile = $3, updated_at = NOW()`,
		userID, profile.Version, raw,
	)
	if err != nil {
		return &preferences.StorageError{Op: "put", UserID: userID, Cause: err}
	}
	return nil
}
