package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suteetoe/coopregistry/internal/model"
	"github.com/suteetoe/coopregistry/internal/repository/repotest"
)

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

type fakePublisher struct {
	keys   []string
	events []StatusEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, key string, value []byte) error {
	if p.err != nil {
		return p.err
	}
	var ev StatusEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return err
	}
	p.keys = append(p.keys, key)
	p.events = append(p.events, ev)
	return nil
}

const applicant = "0d6f3b8a-3c1e-4c55-9a43-7e1d2b6f0a11"

func newStore() *repotest.Store {
	store := repotest.New()
	store.AddUser(model.User{ID: applicant, Email: "wanjiku@coop.test", FullName: "Wanjiku"})
	return store
}

func TestNotifyApplicationStatusTemplates(t *testing.T) {
	cases := []struct {
		status model.ApplicationStatus
		title  string
		kind   model.NotificationKind
	}{
		{model.StatusApproved, "Application Approved", model.NotificationSuccess},
		{model.StatusRejected, "Application Rejected", model.NotificationWarning},
		{model.StatusAdditionalInfoRequired, "Additional Information Required", model.NotificationInfo},
	}

	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			store := newStore()
			d := NewDispatcher(store, nil, nil)

			got := d.NotifyApplicationStatus(context.Background(), applicant, "APP-2025-00042", tc.status, "Tujenge SACCO")
			assert.Equal(t, Delivered, got)

			rows := store.Notifications()
			require.Len(t, rows, 1)
			assert.Equal(t, tc.title, rows[0].Title)
			assert.Equal(t, tc.kind, rows[0].Kind)
			assert.Contains(t, rows[0].Message, "APP-2025-00042")
			assert.Contains(t, rows[0].Message, "Tujenge SACCO")
			require.NotNil(t, rows[0].Link)
			assert.Equal(t, "/applications/APP-2025-00042", *rows[0].Link)
		})
	}
}

func TestUnmappedStatusWritesNothing(t *testing.T) {
	store := newStore()
	pub := &fakePublisher{}
	d := NewDispatcher(store, &fakeMailer{}, pub)

	for _, st := range []model.ApplicationStatus{model.StatusDraft, model.StatusSubmitted, model.StatusUnderReview} {
		assert.Equal(t, Dropped, d.NotifyApplicationStatus(context.Background(), applicant, "APP-1", st, "X"))
	}
	assert.Empty(t, store.Notifications())
	assert.Empty(t, pub.events)
}

func TestStoreFailureIsDroppedNotReturned(t *testing.T) {
	store := newStore()
	store.FailOn("CreateNotification", errors.New(`relation "notifications" does not exist`), 0)
	d := NewDispatcher(store, nil, nil)

	assert.Equal(t, Dropped, d.Notify(context.Background(), applicant, "t", "m", model.NotificationInfo, nil))
	assert.Equal(t, Dropped, d.NotifyApplicationStatus(context.Background(), applicant, "APP-1", model.StatusApproved, "X"))
}

func TestEmailAndEventFanOut(t *testing.T) {
	store := newStore()
	mailer := &fakeMailer{}
	pub := &fakePublisher{}
	d := NewDispatcher(store, mailer, pub)

	got := d.NotifyApplicationStatus(context.Background(), applicant, "APP-2025-00007", model.StatusRejected, "Maziwa Dairy")
	assert.Equal(t, Delivered, got)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "wanjiku@coop.test", mailer.sent[0].to)
	assert.Equal(t, "Application Rejected", mailer.sent[0].subject)

	require.Len(t, pub.events, 1)
	assert.Equal(t, []string{"APP-2025-00007"}, pub.keys)
	assert.Equal(t, EventApplicationStatusChanged, pub.events[0].EventType)
	assert.Equal(t, "REJECTED", pub.events[0].Status)
	assert.Equal(t, applicant, pub.events[0].ApplicantID)
}

func TestSideChannelFailuresDoNotChangeStatus(t *testing.T) {
	store := newStore()
	d := NewDispatcher(store, &fakeMailer{err: errors.New("smtp down")}, &fakePublisher{err: errors.New("broker down")})

	got := d.NotifyApplicationStatus(context.Background(), applicant, "APP-1", model.StatusApproved, "X")
	assert.Equal(t, Delivered, got)
	assert.Len(t, store.Notifications(), 1)
}

func TestMissingApplicantStillPublishes(t *testing.T) {
	store := newStore()
	mailer := &fakeMailer{}
	pub := &fakePublisher{}
	d := NewDispatcher(store, mailer, pub)

	assert.Equal(t, Dropped, d.NotifyApplicationStatus(context.Background(), "", "APP-1", model.StatusApproved, "X"))
	assert.Empty(t, store.Notifications())
	assert.Empty(t, mailer.sent)
	assert.Len(t, pub.events, 1)
}

func TestNotifyComplianceStatusFansOutSequentially(t *testing.T) {
	store := newStore()
	store.FailOn("CreateNotification", errors.New("timeout"), 1)
	d := NewDispatcher(store, nil, nil)

	got := d.NotifyComplianceStatus(context.Background(), []string{"a", "b", "c"}, "CR-2025-001", ComplianceRevisionRequired, "Tujenge SACCO")
	assert.Equal(t, []Status{Dropped, Delivered, Delivered}, got)

	rows := store.Notifications()
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].UserID)
	assert.Equal(t, "c", rows[1].UserID)
	assert.Equal(t, model.NotificationInfo, rows[0].Kind)

	got = d.NotifyComplianceStatus(context.Background(), []string{"a", "b"}, "CR-2025-001", ComplianceStatus("PENDING"), "X")
	assert.Equal(t, []Status{Dropped, Dropped}, got)
}

func TestListAndMarkRead(t *testing.T) {
	store := newStore()
	d := NewDispatcher(store, nil, nil)
	ctx := context.Background()

	d.Notify(ctx, applicant, "one", "m", model.NotificationInfo, nil)
	d.Notify(ctx, applicant, "two", "m", model.NotificationInfo, nil)
	d.Notify(ctx, "someone-else", "three", "m", model.NotificationInfo, nil)

	rows, err := d.ListForUser(ctx, applicant, true, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "two", rows[0].Title)

	ok, err := d.MarkRead(ctx, "someone-else", rows[0].ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = d.MarkRead(ctx, applicant, rows[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)

	rows, err = d.ListForUser(ctx, applicant, true, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "delivered", Delivered.String())
	assert.Equal(t, "dropped", Dropped.String())
}
