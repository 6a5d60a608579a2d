package schedule

import (
	"fmt"
	"strings"
	"time"

	"studiodesk/internal/models"
)

type Kind string

const (
	KindOK                Kind = "OK"
	KindRoomConflict      Kind = "ROOM_CONFLICT"
	KindEquipmentConflict Kind = "EQUIPMENT_CONFLICT"
)

// Settings is the studio configuration every conflict check runs against.
type Settings struct {
	BufferMinutes int
	Catalog       *Catalog
}

// Result describes the outcome of a conflict check. Incomplete is set when the
// candidate is missing required fields; such a result is still KindOK so a
// client can keep validating progressively, but it must not be submitted.
type Result struct {
	Kind         Kind     `json:"kind"`
	Incomplete   bool     `json:"incomplete,omitempty"`
	BookingID    int64    `json:"booking_id,omitempty"`
	OccupantName string   `json:"occupant_name,omitempty"`
	RoomID       string   `json:"room_id,omitempty"`
	FreeAt       string   `json:"free_at,omitempty"`
	EquipmentIDs []string `json:"equipment_ids,omitempty"`
	Message      string   `json:"message,omitempty"`
}

// Conflict reports whether the result blocks submission.
func (r Result) Conflict() bool {
	return r.Kind == KindRoomConflict || r.Kind == KindEquipmentConflict
}

// Ready reports whether the candidate may be submitted.
func (r Result) Ready() bool {
	return r.Kind == KindOK && !r.Incomplete
}

// CheckConflict decides whether candidate can be placed next to existing. It
// has no side effects and never fails: a candidate that is not yet complete
// yields an OK result flagged Incomplete.
//
// The room check runs first; the first overlapping reservation in the same
// room wins. Otherwise the equipment check looks at every room on the same day
// and reports the first overlapping reservation that shares a unit.
func CheckConflict(candidate models.Reservation, existing []models.Reservation, settings Settings) Result {
	if incomplete(candidate) {
		return Result{Kind: KindOK, Incomplete: true}
	}

	window, err := NewInterval(candidate.StartTime, candidate.DurationHours, settings.BufferMinutes)
	if err != nil {
		return Result{Kind: KindOK, Incomplete: true}
	}

	if res, found := roomConflict(candidate, window, existing, settings); found {
		return res
	}
	if res, found := equipmentConflict(candidate, window, existing, settings); found {
		return res
	}

	return Result{Kind: KindOK}
}

func incomplete(c models.Reservation) bool {
	return c.Date.IsZero() ||
		strings.TrimSpace(c.StartTime) == "" ||
		strings.TrimSpace(c.RoomID) == "" ||
		strings.TrimSpace(c.PackageID) == ""
}

func roomConflict(candidate models.Reservation, window Interval, existing []models.Reservation, settings Settings) (Result, bool) {
	for _, other := range existing {
		if !competes(candidate, other) || other.RoomID != candidate.RoomID {
			continue
		}
		occupied, ok := occupiedWindow(other, settings.BufferMinutes)
		if !ok || !window.Overlaps(occupied) {
			continue
		}

		freeAt := FormatClock(occupied.End)
		return Result{
			Kind:         KindRoomConflict,
			BookingID:    other.BookingID,
			OccupantName: other.ClientName,
			RoomID:       other.RoomID,
			FreeAt:       freeAt,
			Message: fmt.Sprintf("%s is booked by %s, occupied until %s (incl. %dm buffer)",
				settings.Catalog.RoomName(other.RoomID), occupantLabel(other), freeAt, settings.BufferMinutes),
		}, true
	}
	return Result{}, false
}

func equipmentConflict(candidate models.Reservation, window Interval, existing []models.Reservation, settings Settings) (Result, bool) {
	required := settings.Catalog.EquipmentFor(candidate.PackageID)
	if len(required) == 0 {
		return Result{}, false
	}

	for _, other := range existing {
		if !competes(candidate, other) {
			continue
		}
		occupied, ok := occupiedWindow(other, settings.BufferMinutes)
		if !ok || !window.Overlaps(occupied) {
			continue
		}

		shared := intersect(required, settings.Catalog.EquipmentFor(other.PackageID))
		if len(shared) == 0 {
			continue
		}

		names := make([]string, len(shared))
		for i, id := range shared {
			names[i] = settings.Catalog.EquipmentName(id)
		}
		freeAt := FormatClock(occupied.End)
		return Result{
			Kind:         KindEquipmentConflict,
			BookingID:    other.BookingID,
			OccupantName: other.ClientName,
			RoomID:       other.RoomID,
			FreeAt:       freeAt,
			EquipmentIDs: shared,
			Message: fmt.Sprintf("%s in use by %s in %s, occupied until %s (incl. %dm buffer)",
				strings.Join(names, ", "), occupantLabel(other), settings.Catalog.RoomName(other.RoomID),
				freeAt, settings.BufferMinutes),
		}, true
	}
	return Result{}, false
}

// competes filters out reservations that can never collide with candidate:
// cancelled ones, other days, and the candidate's own stored row when editing.
func competes(candidate, other models.Reservation) bool {
	if other.Status == models.StatusCancelled {
		return false
	}
	if candidate.BookingID != 0 && other.BookingID == candidate.BookingID {
		return false
	}
	return SameDay(candidate.Date, other.Date)
}

func occupiedWindow(r models.Reservation, bufferMinutes int) (Interval, bool) {
	w, err := NewInterval(r.StartTime, r.DurationHours, bufferMinutes)
	return w, err == nil
}

// SameDay compares calendar days, ignoring time of day and location.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func intersect(want, have []string) []string {
	if len(have) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(have))
	for _, id := range have {
		set[id] = struct{}{}
	}
	var out []string
	for _, id := range want {
		if _, ok := set[id]; ok {
			out = append(out, id)
			delete(set, id)
		}
	}
	return out
}

func occupantLabel(r models.Reservation) string {
	if r.ClientName != "" {
		return r.ClientName
	}
	if r.BookingID != 0 {
		return fmt.Sprintf("booking #%d", r.BookingID)
	}
	return "another booking"
}
