package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/resilient-tech/payments-processor/internal/schedule"
)

// Stage is a step of a payment run.
type Stage string

const (
	StageIdle              Stage = "idle"
	StageFetching          Stage = "fetching"
	StageResolving         Stage = "resolving"
	StageAllocating        Stage = "allocating"
	StageClassifying       Stage = "classifying"
	StageGroupReevaluating Stage = "group_reevaluating"
	StageSubmitClassifying Stage = "submit_classifying"
	StageConstructing      Stage = "constructing"
	StageDone              Stage = "done"
)

// RunContext is the explicit per-run state shared by every engine component.
// Nothing in it outlives the run that created it.
type RunContext struct {
	ID          uuid.UUID
	Setting     Setting
	Schedule    schedule.Schedule
	NextRunDate time.Time
	Defaults    CompanyDefaults
	Suppliers   map[string]*Supplier
	Drafts      DraftIndex
	Invoices    []*Invoice
	Result      *ClassificationResult
	Stage       Stage
	Stages      []Stage
}

func newRunContext(setting Setting, today time.Time, paymentDate *time.Time) *RunContext {
	sched := schedule.New(today, setting.Weekdays)
	next := sched.NextRunDate()
	if paymentDate != nil {
		next = schedule.Day(*paymentDate)
	}
	return &RunContext{
		ID:          uuid.New(),
		Setting:     setting,
		Schedule:    sched,
		NextRunDate: next,
		Suppliers:   make(map[string]*Supplier),
		Drafts:      DraftIndex{Invoices: map[string]string{}, SupplierTotals: map[string]decimal.Decimal{}},
		Result:      NewClassificationResult(),
		Stage:       StageIdle,
		Stages:      []Stage{StageIdle},
	}
}

func (rc *RunContext) enter(stage Stage) {
	rc.Stage = stage
	rc.Stages = append(rc.Stages, stage)
}

// Today returns the run's anchor date.
func (rc *RunContext) Today() time.Time {
	return rc.Schedule.Today()
}

// dueDateOffset returns the supplier override when set, else the setting offset.
func (rc *RunContext) dueDateOffset(supplierID string) int {
	if sup, ok := rc.Suppliers[supplierID]; ok && sup.DueDateOffset != 0 {
		return sup.DueDateOffset
	}
	return rc.Setting.DueDateOffset
}
