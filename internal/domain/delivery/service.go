package delivery

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Service is the read surface over delivery records plus the status
// transition used by drivers and administrators.
type Service struct {
	repo Repository
}

// NewService creates a delivery Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns deliveries matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Record, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if f.Type != "" && !f.Type.Valid() {
		return nil, ErrInvalidType
	}
	records, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list deliveries")
	}
	return records, nil
}

// ForOrder returns the delivery attached to orderID.
func (s *Service) ForOrder(ctx context.Context, orderID string) (*Record, error) {
	r, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "get delivery for order %s", orderID)
	}
	return r, nil
}

// Advance applies ch to a delivery. Moving out of a final status fails with
// ErrFinalStatus. An acting driver who names no driver takes the delivery
// and may not hand it to anyone else.
func (s *Service) Advance(ctx context.Context, id string, ch Change) (*Record, error) {
	if !ch.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if ch.ActingDriver != "" {
		if ch.DriverID == "" {
			ch.DriverID = ch.ActingDriver
		}
		if ch.DriverID != ch.ActingDriver {
			return nil, ErrNotAssignee
		}
	}
	r, err := s.repo.UpdateStatus(ctx, id, ch)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrFinalStatus) || errors.Is(err, ErrNotAssignee) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "update delivery %s", id)
	}
	return r, nil
}

// ParseDay parses a YYYY-MM-DD date in UTC. When endOfDay is set the result
// is the last instant of that day, so that a "to" bound is inclusive.
func ParseDay(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return nil, errors.Wrapf(err, "parse date %q", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
