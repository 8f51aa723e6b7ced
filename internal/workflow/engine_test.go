package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suteetoe/coopregistry/internal/model"
	"github.com/suteetoe/coopregistry/internal/notification"
	"github.com/suteetoe/coopregistry/internal/repository"
	"github.com/suteetoe/coopregistry/internal/repository/repotest"
	"github.com/suteetoe/coopregistry/pkg/errs"
)

const (
	reviewer  = "7c1d0e2f-8a9b-4c3d-9e8f-0a1b2c3d4e5f"
	applicant = "1a2b3c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d"
)

type notice struct {
	applicantID, number string
	status              model.ApplicationStatus
	name                string
}

type recordingNotifier struct {
	sent []notice
}

func (n *recordingNotifier) NotifyApplicationStatus(_ context.Context, applicantID, number string, status model.ApplicationStatus, name string) notification.Status {
	n.sent = append(n.sent, notice{applicantID, number, status, name})
	return notification.Delivered
}

type fixture struct {
	store    *repotest.Store
	engine   *Engine
	notifier *recordingNotifier
	tenant   model.Tenant
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    repotest.New(),
		notifier: &recordingNotifier{},
		now:      time.Date(2025, 7, 14, 10, 30, 0, 0, time.UTC),
	}
	f.tenant = f.store.AddTenant(model.Tenant{Name: "Nakuru", Active: true})
	f.engine = NewEngine(f.store, f.notifier)
	f.engine.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) application(status model.ApplicationStatus) model.RegistrationApplication {
	id := applicant
	return f.store.AddApplication(model.RegistrationApplication{
		ApplicationNumber:    fmt.Sprintf("APP-2025-%05d", len(f.store.Cooperatives())+1),
		ProposedName:         "Tujenge Dairy Cooperative",
		CooperativeTypeID:    3,
		TenantID:             f.tenant.ID,
		ApplicantID:          &id,
		ProposedMembers:      42,
		ProposedShareCapital: 250000,
		ContactEmail:         "info@tujenge.test",
		ContactPhone:         "+254700123456",
		PhysicalAddress:      "Plot 7, Njoro",
		Status:               status,
	})
}

func TestRegistrationNumber(t *testing.T) {
	assert.Equal(t, "COOP-2025-00004", RegistrationNumber(2025, 4))
	assert.Equal(t, "COOP-2026-12345", RegistrationNumber(2026, 12345))
}

func TestApproveAllocatesNextNumberInTenant(t *testing.T) {
	f := newFixture(t)
	other := f.store.AddTenant(model.Tenant{Name: "Kisumu", Active: true})
	for i := 1; i <= 3; i++ {
		f.store.AddCooperative(model.Cooperative{RegistrationNumber: RegistrationNumber(2025, int64(i)), TenantID: f.tenant.ID, ApplicationID: uint(1000 + i)})
	}
	// other tenants and other years do not count
	f.store.AddCooperative(model.Cooperative{RegistrationNumber: RegistrationNumber(2025, 9), TenantID: other.ID, ApplicationID: 2000})
	f.store.AddCooperative(model.Cooperative{RegistrationNumber: RegistrationNumber(2024, 1), TenantID: f.tenant.ID, ApplicationID: 2001})

	app := f.application(model.StatusUnderReview)
	coop, err := f.engine.Approve(context.Background(), reviewer, app.ID)
	require.NoError(t, err)
	assert.Equal(t, "COOP-2025-00004", coop.RegistrationNumber)
}

func TestApproveCopiesApplicationAndStampsReview(t *testing.T) {
	f := newFixture(t)
	app := f.application(model.StatusSubmitted)

	coop, err := f.engine.Approve(context.Background(), reviewer, app.ID)
	require.NoError(t, err)

	assert.Equal(t, "COOP-2025-00001", coop.RegistrationNumber)
	assert.Equal(t, app.ProposedName, coop.Name)
	assert.Equal(t, app.CooperativeTypeID, coop.CooperativeTypeID)
	assert.Equal(t, app.TenantID, coop.TenantID)
	assert.Equal(t, model.CooperativeStatusRegistered, coop.Status)
	assert.Equal(t, f.now, coop.RegistrationDate)
	assert.Equal(t, app.ContactEmail, coop.Email)
	assert.Equal(t, app.ContactPhone, coop.Phone)
	assert.Equal(t, app.PhysicalAddress, coop.PhysicalAddress)
	assert.Equal(t, 42, coop.TotalMembers)
	assert.Equal(t, 250000.0, coop.ShareCapital)
	assert.True(t, coop.IsActive)
	assert.Equal(t, app.ID, coop.ApplicationID)

	got := f.store.Application(app.ID)
	assert.Equal(t, model.StatusApproved, got.Status)
	assert.Equal(t, reviewer, *got.ApprovedBy)
	assert.Equal(t, reviewer, *got.ReviewedBy)
	assert.Equal(t, f.now, *got.ApprovedAt)
	assert.Equal(t, f.now, *got.ReviewedAt)
	require.NotNil(t, got.CooperativeID)
	assert.Equal(t, coop.ID, *got.CooperativeID)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, notice{applicant, app.ApplicationNumber, model.StatusApproved, app.ProposedName}, f.notifier.sent[0])
}

func TestApproveRequiresActorAndApplication(t *testing.T) {
	f := newFixture(t)
	app := f.application(model.StatusSubmitted)

	_, err := f.engine.Approve(context.Background(), "", app.ID)
	assert.True(t, errs.Is(err, errs.KindAuth))

	_, err = f.engine.Approve(context.Background(), reviewer, 9999)
	assert.True(t, errs.Is(err, errs.KindNotFound))
	assert.Empty(t, f.store.Cooperatives())
}

func TestApproveRejectsNonActionable(t *testing.T) {
	for _, st := range []model.ApplicationStatus{model.StatusDraft, model.StatusApproved, model.StatusRejected, model.StatusAdditionalInfoRequired} {
		f := newFixture(t)
		app := f.application(st)

		_, err := f.engine.Approve(context.Background(), reviewer, app.ID)
		assert.True(t, errs.Is(err, errs.KindConstraint), st)
		assert.Empty(t, f.store.Cooperatives(), st)
		assert.Empty(t, f.notifier.sent, st)
	}
}

func TestApproveLostRaceCreatesNoCooperative(t *testing.T) {
	f := newFixture(t)
	app := f.application(model.StatusSubmitted)

	// another reviewer rejects between our read and our write
	f.store.OnCall("CountRegistrationsWithPrefix", func() {
		f.store.SetApplicationStatus(app.ID, model.StatusRejected)
	})

	_, err := f.engine.Approve(context.Background(), reviewer, app.ID)
	require.True(t, errs.Is(err, errs.KindConstraint))
	assert.Empty(t, f.store.Cooperatives())
	assert.Empty(t, f.notifier.sent)
}

func TestApproveRetriesRegistrationCollision(t *testing.T) {
	f := newFixture(t)
	app := f.application(model.StatusSubmitted)
	f.store.FailOn("CreateCooperative", fmt.Errorf("%w: idx_cooperatives_tenant_regno", repository.ErrDuplicate), 2)

	coop, err := f.engine.Approve(context.Background(), reviewer, app.ID)
	require.NoError(t, err)
	assert.Equal(t, "COOP-2025-00001", coop.RegistrationNumber)
	assert.Len(t, f.store.Cooperatives(), 1)
}

func TestApproveGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	// a gap in the sequence: count says 1, so 00002 is generated and taken every time
	f.store.AddCooperative(model.Cooperative{RegistrationNumber: RegistrationNumber(2025, 2), TenantID: f.tenant.ID, ApplicationID: 500})
	app := f.application(model.StatusSubmitted)

	_, err := f.engine.Approve(context.Background(), reviewer, app.ID)
	require.True(t, errs.Is(err, errs.KindConstraint))
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	assert.Len(t, f.store.Cooperatives(), 1)
	assert.Equal(t, model.StatusSubmitted, f.store.Application(app.ID).Status)
}

func TestApproveStoreFailureIsInternalAndRolledBack(t *testing.T) {
	f := newFixture(t)
	app := f.application(model.StatusSubmitted)
	f.store.FailOn("TransitionApplication", errors.New("connection reset"), 0)

	_, err := f.engine.Approve(context.Background(), reviewer, app.ID)
	require.True(t, errs.Is(err, errs.KindInternal))
	assert.Empty(t, f.store.Cooperatives())
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	app := f.application(model.StatusUnderReview)

	_, err := f.engine.Reject(context.Background(), reviewer, app.ID, "   ")
	assert.True(t, errs.Is(err, errs.KindValidation))
	assert.Equal(t, model.StatusUnderReview, f.store.Application(app.ID).Status)

	got, err := f.engine.Reject(context.Background(), reviewer, app.ID, "Bylaws are unsigned")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)

	stored := f.store.Application(app.ID)
	assert.Equal(t, model.StatusRejected, stored.Status)
	assert.Equal(t, "Bylaws are unsigned", *stored.RejectionReason)
	assert.Equal(t, reviewer, *stored.ReviewedBy)
	assert.Equal(t, f.now, *stored.ReviewedAt)
	assert.Nil(t, stored.ApprovedBy)
	assert.Empty(t, f.store.Cooperatives())

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, model.StatusRejected, f.notifier.sent[0].status)

	_, err = f.engine.Reject(context.Background(), reviewer, app.ID, "again")
	assert.True(t, errs.Is(err, errs.KindConstraint))
}

func TestRequestInfoDoesNotNotify(t *testing.T) {
	f := newFixture(t)
	app := f.application(model.StatusSubmitted)

	_, err := f.engine.RequestInfo(context.Background(), reviewer, app.ID, "")
	assert.True(t, errs.Is(err, errs.KindValidation))

	_, err = f.engine.RequestInfo(context.Background(), "", app.ID, "Need minutes")
	assert.True(t, errs.Is(err, errs.KindAuth))

	got, err := f.engine.RequestInfo(context.Background(), reviewer, app.ID, "Upload signed minutes")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAdditionalInfoRequired, got.Status)

	stored := f.store.Application(app.ID)
	assert.Equal(t, "Upload signed minutes", *stored.ReviewNotes)
	assert.Equal(t, reviewer, *stored.ReviewedBy)
	assert.Equal(t, f.now, *stored.ReviewedAt)
	assert.Empty(t, f.notifier.sent)
}

func TestStartReview(t *testing.T) {
	f := newFixture(t)
	app := f.application(model.StatusSubmitted)

	got, err := f.engine.StartReview(context.Background(), reviewer, app.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnderReview, got.Status)

	// only from SUBMITTED
	_, err = f.engine.StartReview(context.Background(), reviewer, app.ID)
	assert.True(t, errs.Is(err, errs.KindConstraint))
	assert.Empty(t, f.notifier.sent)
}

func TestApproveWithoutApplicantStillNotifiesDispatcher(t *testing.T) {
	f := newFixture(t)
	app := f.store.AddApplication(model.RegistrationApplication{
		ApplicationNumber: "APP-ANON",
		ProposedName:      "Walk-in SACCO",
		TenantID:          f.tenant.ID,
		Status:            model.StatusSubmitted,
	})

	_, err := f.engine.Approve(context.Background(), reviewer, app.ID)
	require.NoError(t, err)
	require.Len(t, f.notifier.sent, 1)
	assert.Empty(t, f.notifier.sent[0].applicantID)
}
