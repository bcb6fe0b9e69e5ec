package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Service encapsulates server-side cart document handling.
type Service struct {
	carts Repository
	now   func() time.Time
}

// NewService creates a cart Service backed by the given Repository.
func NewService(carts Repository) *Service {
	return &Service{carts: carts, now: time.Now}
}

// Get returns the stored cart for ownerID or an empty one.
func (s *Service) Get(ctx context.Context, ownerID string) (*Cart, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	c, err := s.carts.Get(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

// Replace overwrites the owner's cart document with lines. Replacing with
// the same lines twice leaves the same document.
func (s *Service) Replace(ctx context.Context, ownerID string, lines Lines) (*Cart, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	if err := lines.Validate(); err != nil {
		return nil, err
	}

	c := &Cart{
		OwnerID:   ownerID,
		Lines:     lines.Normalize(),
		UpdatedAt: s.now().UTC(),
	}
	if err := s.carts.Replace(ctx, c); err != nil {
		return nil, errors.Wrap(err, "replace cart")
	}
	return c, nil
}
