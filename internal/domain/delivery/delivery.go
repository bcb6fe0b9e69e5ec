package delivery

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Status is the fulfillment state of a delivery.
type Status string

// Delivery statuses.
const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusInTransit Status = "in-transit"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInTransit, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Final reports whether no further transition is allowed from s.
func (s Status) Final() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Type is how an order reaches the customer.
type Type string

// Delivery types.
const (
	TypePickup     Type = "pickup"
	TypeInHouse    Type = "in-house"
	TypeThirdParty Type = "third-party"
)

// Valid reports whether t is a known delivery type.
func (t Type) Valid() bool {
	switch t {
	case TypePickup, TypeInHouse, TypeThirdParty:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned when no delivery matches the lookup.
	ErrNotFound = errors.New("delivery not found")
	// ErrInvalidStatus is returned for an unknown status value.
	ErrInvalidStatus = errors.New("invalid delivery status")
	// ErrInvalidType is returned for an unknown delivery type.
	ErrInvalidType = errors.New("invalid delivery type")
	// ErrFinalStatus is returned when a completed or cancelled delivery is moved.
	ErrFinalStatus = errors.New("delivery already in final status")
	// ErrNotAssignee is returned when a driver moves a delivery held by
	// another driver, or hands one to someone else.
	ErrNotAssignee = errors.New("delivery assigned to another driver")
)

// Change is a requested status transition. An empty DriverID keeps the
// current driver. A non-empty ActingDriver limits the change to deliveries
// that are unassigned or already held by that driver.
type Change struct {
	Status       Status
	DriverID     string
	ActingDriver string
}

// Permits reports whether c may move a delivery currently held by driverID.
func (c Change) Permits(driverID string) bool {
	return c.ActingDriver == "" || driverID == "" || driverID == c.ActingDriver
}

// Vehicle identifies the vehicle assigned to a delivery.
type Vehicle struct {
	Model string `json:"model"`
	Plate string `json:"plate"`
}

// Record is the fulfillment sub-record of an order.
type Record struct {
	ID        string
	OrderID   string
	UserID    string
	Status    Status
	Type      Type
	DriverID  string
	Vehicle   *Vehicle
	Address   string
	CreatedAt time.Time
}

// Filter narrows a delivery listing. Zero fields do not filter.
type Filter struct {
	Status   Status
	Type     Type
	DriverID string
	UserID   string
	From     *time.Time
	To       *time.Time
}

// Repository provides read access to delivery records and the status
// mutation used by fulfillment.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Record, error)
	GetByOrderID(ctx context.Context, orderID string) (*Record, error)
	// UpdateStatus applies ch to the delivery and mirrors the status onto
	// the owning order. The assignment check and the write are atomic. It
	// returns the updated record.
	UpdateStatus(ctx context.Context, id string, ch Change) (*Record, error)
}
