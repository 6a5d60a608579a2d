package service

import (
	"errors"

	"studiodesk/internal/billing"
	"studiodesk/internal/config"
	"studiodesk/internal/schedule"
	"studiodesk/internal/workflow"
)

// ErrInvalidBooking marks input that can never be stored, as opposed to a
// conflict or a settlement rejection.
var ErrInvalidBooking = errors.New("invalid booking")

// Studio is the immutable engine configuration handed to every engine call.
type Studio struct {
	Schedule schedule.Settings
	Billing  billing.Policy
	Workflow *workflow.Rules
}

func NewStudio(cfg config.StudioConfig) Studio {
	return Studio{
		Schedule: cfg.ScheduleSettings(),
		Billing:  cfg.BillingPolicy(),
		Workflow: cfg.Workflow(),
	}
}
