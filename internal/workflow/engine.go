// Package workflow moves registration applications through review.
//
//	SUBMITTED ──start review──▶ UNDER_REVIEW
//	SUBMITTED | UNDER_REVIEW ──approve──▶ APPROVED (+ Cooperative)
//	SUBMITTED | UNDER_REVIEW ──reject──▶ REJECTED
//	SUBMITTED | UNDER_REVIEW ──request info──▶ ADDITIONAL_INFO_REQUIRED
//
// Every transition re-checks the current status in the same UPDATE that
// writes the new one, so two reviewers racing on one application cannot
// both succeed.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suteetoe/coopregistry/internal/model"
	"github.com/suteetoe/coopregistry/internal/notification"
	"github.com/suteetoe/coopregistry/internal/repository"
	"github.com/suteetoe/coopregistry/pkg/errs"
	"github.com/suteetoe/coopregistry/pkg/logger"
	"github.com/suteetoe/coopregistry/prometheus"
	"go.uber.org/zap"
)

// MaxApprovalAttempts bounds retries after a registration number collision.
const MaxApprovalAttempts = 3

const (
	actionApprove     = "approve"
	actionReject      = "reject"
	actionRequestInfo = "request_info"
	actionStartReview = "start_review"
)

var errNotActionable = errors.New("application is no longer actionable")

// Notifier tells applicants about decisions.
type Notifier interface {
	NotifyApplicationStatus(ctx context.Context, applicantID, applicationNumber string, status model.ApplicationStatus, cooperativeName string) notification.Status
}

type Engine struct {
	store    repository.Store
	notifier Notifier
	now      func() time.Time
}

func NewEngine(store repository.Store, notifier Notifier) *Engine {
	return &Engine{
		store:    store,
		notifier: notifier,
		now:      time.Now,
	}
}

// RegistrationNumber formats the n-th registration of a year.
func RegistrationNumber(year int, n int64) string {
	return fmt.Sprintf("%s%05d", registrationPrefix(year), n)
}

func registrationPrefix(year int) string {
	return fmt.Sprintf("COOP-%d-", year)
}

func (e *Engine) load(ctx context.Context, id uint) (*model.RegistrationApplication, error) {
	app, err := e.store.GetApplication(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errs.NotFound("Application not found")
	}
	if err != nil {
		return nil, errs.Internal("Failed to load application", err)
	}
	return app, nil
}

func applicantOf(app *model.RegistrationApplication) string {
	if app.ApplicantID == nil {
		return ""
	}
	return *app.ApplicantID
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errs.Is(err, errs.KindValidation), errs.Is(err, errs.KindAuth):
		return "invalid"
	case errs.Is(err, errs.KindNotFound), errs.Is(err, errs.KindConstraint):
		return "conflict"
	}
	return "error"
}

// Approve registers the cooperative described by an actionable application
// and marks the application APPROVED. The registration number, the
// cooperative and the status change are written in one transaction.
func (e *Engine) Approve(ctx context.Context, actorID string, applicationID uint) (coop *model.Cooperative, err error) {
	defer func() { prometheus.RecordWorkflowTransition(actionApprove, outcome(err)) }()
	log := logger.FromContext(ctx)

	if actorID == "" {
		return nil, errs.ErrNotAuthenticated
	}
	app, err := e.load(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if !app.Status.Actionable() {
		return nil, errs.Constraint("Application is no longer actionable", errNotActionable)
	}

	for attempt := 1; ; attempt++ {
		coop, err = e.approveOnce(ctx, actorID, app)
		if err == nil {
			break
		}
		if errors.Is(err, errNotActionable) {
			return nil, errs.Constraint("Application is no longer actionable", err)
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, errs.Internal("Failed to approve application", err)
		}
		if attempt >= MaxApprovalAttempts {
			return nil, errs.Constraint("Could not allocate a unique registration number", err)
		}
		prometheus.RecordRegistrationRetry()
		log.Warn("Registration number collision, retrying",
			zap.Uint("application_id", app.ID),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	log.Info("Application approved",
		zap.Uint("application_id", app.ID),
		zap.String("registration_number", coop.RegistrationNumber),
		zap.String("actor", actorID))

	e.notifier.NotifyApplicationStatus(ctx, applicantOf(app), app.ApplicationNumber, model.StatusApproved, app.ProposedName)
	return coop, nil
}

func (e *Engine) approveOnce(ctx context.Context, actorID string, app *model.RegistrationApplication) (*model.Cooperative, error) {
	var coop model.Cooperative
	err := e.store.WithTx(ctx, func(tx repository.Store) error {
		now := e.now()
		prefix := registrationPrefix(now.Year())

		existing, err := tx.CountRegistrationsWithPrefix(ctx, app.TenantID, prefix)
		if err != nil {
			return fmt.Errorf("counting registrations: %w", err)
		}

		coop = model.Cooperative{
			RegistrationNumber: RegistrationNumber(now.Year(), existing+1),
			Name:               app.ProposedName,
			CooperativeTypeID:  app.CooperativeTypeID,
			TenantID:           app.TenantID,
			Status:             model.CooperativeStatusRegistered,
			RegistrationDate:   now,
			Email:              app.ContactEmail,
			Phone:              app.ContactPhone,
			PhysicalAddress:    app.PhysicalAddress,
			TotalMembers:       app.ProposedMembers,
			ShareCapital:       app.ProposedShareCapital,
			IsActive:           true,
			ApplicationID:      app.ID,
		}
		if err := tx.CreateCooperative(ctx, &coop); err != nil {
			return fmt.Errorf("creating cooperative: %w", err)
		}

		n, err := tx.TransitionApplication(ctx, app.ID, model.ActionableStatuses, model.ApplicationTransition{
			Status:        model.StatusApproved,
			ReviewedBy:    &actorID,
			ReviewedAt:    &now,
			ApprovedBy:    &actorID,
			ApprovedAt:    &now,
			CooperativeID: &coop.ID,
		})
		if err != nil {
			return fmt.Errorf("updating application: %w", err)
		}
		if n == 0 {
			return errNotActionable
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &coop, nil
}

// transition writes patch when the application is still in one of from.
func (e *Engine) transition(ctx context.Context, applicationID uint, from []model.ApplicationStatus, patch model.ApplicationTransition) (*model.RegistrationApplication, error) {
	app, err := e.load(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	n, err := e.store.TransitionApplication(ctx, app.ID, from, patch)
	if err != nil {
		return nil, errs.Internal("Failed to update application", err)
	}
	if n == 0 {
		return nil, errs.Constraint("Application is no longer actionable", errNotActionable)
	}

	patch.Apply(app)
	return app, nil
}

// Reject closes an actionable application with a reason and tells the
// applicant.
func (e *Engine) Reject(ctx context.Context, actorID string, applicationID uint, reason string) (app *model.RegistrationApplication, err error) {
	defer func() { prometheus.RecordWorkflowTransition(actionReject, outcome(err)) }()

	if actorID == "" {
		return nil, errs.ErrNotAuthenticated
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errs.Validation("Rejection reason is required")
	}

	now := e.now()
	app, err = e.transition(ctx, applicationID, model.ActionableStatuses, model.ApplicationTransition{
		Status:          model.StatusRejected,
		ReviewedBy:      &actorID,
		ReviewedAt:      &now,
		RejectionReason: &reason,
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Application rejected",
		zap.Uint("application_id", app.ID),
		zap.String("actor", actorID))

	e.notifier.NotifyApplicationStatus(ctx, applicantOf(app), app.ApplicationNumber, model.StatusRejected, app.ProposedName)
	return app, nil
}

// RequestInfo sends an actionable application back to the applicant for
// more information. The applicant is not notified.
func (e *Engine) RequestInfo(ctx context.Context, actorID string, applicationID uint, notes string) (app *model.RegistrationApplication, err error) {
	defer func() { prometheus.RecordWorkflowTransition(actionRequestInfo, outcome(err)) }()

	if actorID == "" {
		return nil, errs.ErrNotAuthenticated
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, errs.Validation("Review notes are required")
	}

	now := e.now()
	app, err = e.transition(ctx, applicationID, model.ActionableStatuses, model.ApplicationTransition{
		Status:      model.StatusAdditionalInfoRequired,
		ReviewedBy:  &actorID,
		ReviewedAt:  &now,
		ReviewNotes: &notes,
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Additional information requested",
		zap.Uint("application_id", app.ID),
		zap.String("actor", actorID))
	return app, nil
}

// StartReview claims a submitted application for review.
func (e *Engine) StartReview(ctx context.Context, actorID string, applicationID uint) (app *model.RegistrationApplication, err error) {
	defer func() { prometheus.RecordWorkflowTransition(actionStartReview, outcome(err)) }()

	if actorID == "" {
		return nil, errs.ErrNotAuthenticated
	}

	now := e.now()
	return e.transition(ctx, applicationID, []model.ApplicationStatus{model.StatusSubmitted}, model.ApplicationTransition{
		Status:     model.StatusUnderReview,
		ReviewedBy: &actorID,
		ReviewedAt: &now,
	})
}
