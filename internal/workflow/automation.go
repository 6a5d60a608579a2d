// Package workflow attaches checklist tasks to bookings when they change status.
package workflow

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"studiodesk/internal/models"
)

var ErrUnknownStatus = errors.New("unknown booking status")

// Rules maps a status to the tasks appended when a booking enters it.
type Rules struct {
	tasks  map[models.Status][]string
	dedupe bool
}

// NewRules indexes the configured rules. With dedupe set, a task already on
// the checklist for the same status is not appended again; otherwise every
// entry into a status appends its full list.
func NewRules(rules []models.WorkflowRule, dedupe bool) *Rules {
	r := &Rules{tasks: make(map[models.Status][]string, len(rules)), dedupe: dedupe}
	for _, rule := range rules {
		r.tasks[rule.Status] = append(r.tasks[rule.Status], rule.Tasks...)
	}
	return r
}

// Tasks returns the titles configured for a status.
func (r *Rules) Tasks(status models.Status) []string {
	if r == nil {
		return nil
	}
	return r.tasks[status]
}

// Transition is the outcome of a status change.
type Transition struct {
	From  models.Status          `json:"from"`
	To    models.Status          `json:"to"`
	Added []models.ChecklistTask `json:"added,omitempty"`
}

// Apply moves booking to status and returns the updated copy. Any status may
// follow any other; only unknown statuses are refused.
func Apply(booking models.Booking, to models.Status, rules *Rules, now time.Time) (models.Booking, Transition, error) {
	if !to.Valid() {
		return booking, Transition{}, fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}

	tr := Transition{From: booking.Status, To: to}
	checklist := slices.Clone(booking.Checklist)

	for _, title := range rules.Tasks(to) {
		if rules.dedupe && hasTask(checklist, to, title) {
			continue
		}
		task := models.ChecklistTask{Title: title, Status: to, AddedAt: now}
		checklist = append(checklist, task)
		tr.Added = append(tr.Added, task)
	}

	booking.Status = to
	booking.Checklist = checklist
	return booking, tr, nil
}

func hasTask(checklist []models.ChecklistTask, status models.Status, title string) bool {
	for _, t := range checklist {
		if t.Status == status && t.Title == title {
			return true
		}
	}
	return false
}

// Next returns the conventional follow-up status, if any.
func Next(s models.Status) (models.Status, bool) {
	i := slices.Index(models.StatusFlow, s)
	if i < 0 || i == len(models.StatusFlow)-1 {
		return "", false
	}
	return models.StatusFlow[i+1], true
}
