package models

import "time"

// LineItem is a priced row on a booking. Cost is the cost of goods for the
// whole line and only feeds commission math.
type LineItem struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Cost        int64  `json:"cost,omitempty"`
}

// LineTotal returns quantity * unit price.
func (li LineItem) LineTotal() int64 {
	return li.Quantity * li.UnitPrice
}

type DiscountKind string

const (
	DiscountPercent DiscountKind = "PERCENT"
	DiscountFixed   DiscountKind = "FIXED"
)

type Discount struct {
	Kind  DiscountKind `json:"kind"`
	Value int64        `json:"value"`
}

// CostEntry is a recorded expense attributed to a booking (prints, travel, assistants).
type CostEntry struct {
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
}

// ChecklistTask is attached to a booking by status automation.
type ChecklistTask struct {
	Title   string    `json:"title"`
	Status  Status    `json:"status"`
	Done    bool      `json:"done"`
	AddedAt time.Time `json:"added_at"`
}

type Booking struct {
	ID             int64           `json:"id"`
	ClientName     string          `json:"client_name"`
	ClientPhone    string          `json:"client_phone"`
	Date           time.Time       `json:"date"`
	StartTime      string          `json:"start_time"` // HH:MM
	DurationHours  float64         `json:"duration_hours"`
	RoomID         string          `json:"room_id"`
	PackageID      string          `json:"package_id"`
	Status         Status          `json:"status"`
	Price          int64           `json:"price"`
	Items          []LineItem      `json:"items,omitempty"`
	Discount       *Discount       `json:"discount,omitempty"`
	TaxSnapshot    *float64        `json:"tax_snapshot,omitempty"`
	PaidAmount     int64           `json:"paid_amount"`
	CostBreakdown  []CostEntry     `json:"cost_breakdown,omitempty"`
	PhotographerID int64           `json:"photographer_id,omitempty"`
	EditorID       int64           `json:"editor_id,omitempty"`
	Checklist      []ChecklistTask `json:"checklist,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Version        int64           `json:"version"`
}

// Reservation is the scheduling facet of a booking.
type Reservation struct {
	BookingID     int64     `json:"booking_id,omitempty"`
	ClientName    string    `json:"client_name,omitempty"`
	Date          time.Time `json:"date"`
	StartTime     string    `json:"start_time"`
	DurationHours float64   `json:"duration_hours"`
	RoomID        string    `json:"room_id"`
	PackageID     string    `json:"package_id"`
	Status        Status    `json:"status,omitempty"`
}

// Reservation extracts the scheduling facet.
func (b *Booking) Reservation() Reservation {
	return Reservation{
		BookingID:     b.ID,
		ClientName:    b.ClientName,
		Date:          b.Date,
		StartTime:     b.StartTime,
		DurationHours: b.DurationHours,
		RoomID:        b.RoomID,
		PackageID:     b.PackageID,
		Status:        b.Status,
	}
}

// AttributedTo reports whether the staff member shot or edited the booking.
func (b *Booking) AttributedTo(staffID int64) bool {
	if staffID == 0 {
		return false
	}
	return b.PhotographerID == staffID || b.EditorID == staffID
}
