package preferences

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/jonathan/daily-brief/internal/types"
)

var safeUserID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// FileStore keeps one JSON document per user under a directory. Writes go to
// a temp file in the same directory followed by a rename, so a crash or a
// failed write leaves the previous document intact.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StorageError{Op: "open", Cause: err}
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(userID string) string {
	name := userID
	if !safeUserID.MatchString(userID) || userID == "." || userID == ".." {
		sum := sha256.Sum256([]byte(userID))
		name = "u-" + hex.EncodeToString(sum[:12])
	}
	return filepath.Join(s.dir, name+".json")
}

func (s *FileStore) Get(ctx context.Context, userID string) (types.Profile, error) {
	if userID == "" {
		return types.Profile{}, &StorageError{Op: "get", Cause: ErrEmptyUserID}
	}
	if err := ctx.Err(); err != nil {
		return types.Profile{}, &StorageError{Op: "get", UserID: userID, Cause: err}
	}

	data, err := os.ReadFile(s.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return types.NewProfile(userID), nil
	}
	if err != nil {
		return types.Profile{}, &StorageError{Op: "get", UserID: userID, Cause: err}
	}

	var p types.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return types.Profile{}, &StorageError{Op: "get", UserID: userID, Cause: fmt.Errorf("corrupt profile: %w", err)}
	}
	p.UserID = userID
	p.ApplyDefaults()
	return p, nil
}

func (s *FileStore) Put(ctx context.Context, userID string, profile types.Profile) error {
	if userID == "" {
		return &StorageError{Op: "put", Cause: ErrEmptyUserID}
	}
	if err := ctx.Err(); err != nil {
		return &StorageError{Op: "put", UserID: userID, Cause: err}
	}
	profile.UserID = userID

	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return &StorageError{Op: "put", UserID: userID, Cause: err}
	}
	if err := writeFileAtomic(s.path(userID), data); err != nil {
		return &StorageError{Op: "put", UserID: userID, Cause: err}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".profile-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
