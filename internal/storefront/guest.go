package storefront

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/cart"
)

// GuestCartFile is the fixed name of the guest cart inside the device
// directory.
const GuestCartFile = "guest-cart.json"

// GuestStore holds the cart of a device before anyone signs in.
type GuestStore interface {
	Load(ctx context.Context) (cart.Lines, error)
	Save(ctx context.Context, lines cart.Lines) error
	Clear(ctx context.Context) error
}

type guestDocument struct {
	Items cart.Lines `json:"items"`
	Total float64    `json:"total"`
}

// FileGuestStore keeps the guest cart as a JSON document in a directory.
type FileGuestStore struct {
	path string
	mu   sync.Mutex
}

var _ GuestStore = (*FileGuestStore)(nil)

// NewFileGuestStore stores the guest cart in dir.
func NewFileGuestStore(dir string) *FileGuestStore {
	return &FileGuestStore{path: filepath.Join(dir, GuestCartFile)}
}

// Load returns the stored lines, or none when nothing is stored.
func (s *FileGuestStore) Load(context.Context) (cart.Lines, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read guest cart")
	}
	var doc guestDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decode guest cart")
	}
	return doc.Items.Normalize(), nil
}

// Save replaces the stored document. The write goes through a temporary
// file so a crash never leaves a torn document behind.
func (s *FileGuestStore) Save(_ context.Context, lines cart.Lines) error {
	lines = lines.Clone()
	data, err := json.Marshal(guestDocument{Items: lines, Total: lines.Total().InexactFloat64()})
	if err != nil {
		return errors.Wrap(err, "encode guest cart")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "create guest cart dir")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "write guest cart")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "replace guest cart")
	}
	return nil
}

// Clear removes the stored document.
func (s *FileGuestStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "remove guest cart")
	}
	return nil
}
