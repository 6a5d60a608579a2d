package models

// Status is a booking workflow state.
type Status string

const (
	StatusInquiry   Status = "INQUIRY"
	StatusBooked    Status = "BOOKED"
	StatusShooting  Status = "SHOOTING"
	StatusCulling   Status = "CULLING"
	StatusEditing   Status = "EDITING"
	StatusReview    Status = "REVIEW"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// StatusFlow is the conventional order shown to users. It is not enforced.
var StatusFlow = []Status{
	StatusInquiry,
	StatusBooked,
	StatusShooting,
	StatusCulling,
	StatusEditing,
	StatusReview,
	StatusCompleted,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	if s == StatusCancelled {
		return true
	}
	for _, known := range StatusFlow {
		if s == known {
			return true
		}
	}
	return false
}

const (
	// DefaultSettleTolerance is the rounding slack, in currency units, within which a due amount counts as settled.
	DefaultSettleTolerance = 100

	// DefaultDraftTTL время жизни черновика бронирования в Redis
	DefaultDraftTTL = 24 * 60 * 60 // 24 часа в секундах

	// RateLimitRequests количество запросов в окне
	RateLimitRequests = 60

	// RateLimitWindow окно ограничения частоты запросов
	RateLimitWindow = 60 // 1 минута в секундах

	// DateLayout is the calendar-day format used in storage and the API.
	DateLayout = "2006-01-02"
)
