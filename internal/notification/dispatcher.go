// Package notification delivers best-effort notices about application and
// compliance decisions. Nothing here returns an error: every outcome is a
// Status, and failures are logged and counted.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/suteetoe/coopregistry/internal/model"
	"github.com/suteetoe/coopregistry/internal/repository"
	"github.com/suteetoe/coopregistry/pkg/logger"
	"github.com/suteetoe/coopregistry/prometheus"
	"go.uber.org/zap"
)

// Status is the outcome of a best-effort delivery.
type Status int

const (
	Dropped Status = iota
	Delivered
)

func (s Status) String() string {
	if s == Delivered {
		return "delivered"
	}
	return "dropped"
}

// Store is the persistence the dispatcher needs.
type Store interface {
	repository.NotificationRepository
	GetUser(ctx context.Context, id string) (*model.User, error)
}

type Dispatcher struct {
	store     Store
	mailer    Mailer
	publisher Publisher
	now       func() time.Time
}

// NewDispatcher wires the optional email and event channels; pass nil to
// disable either.
func NewDispatcher(store Store, mailer Mailer, publisher Publisher) *Dispatcher {
	return &Dispatcher{
		store:     store,
		mailer:    mailer,
		publisher: publisher,
		now:       time.Now,
	}
}

// Notify writes one in-app notification.
func (d *Dispatcher) Notify(ctx context.Context, userID, title, message string, kind model.NotificationKind, link *string) Status {
	log := logger.FromContext(ctx)

	if userID == "" {
		prometheus.RecordNotification("in_app", "dropped")
		return Dropped
	}

	n := model.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Kind:    kind,
		Link:    link,
	}
	if err := d.store.CreateNotification(ctx, &n); err != nil {
		log.Warn("Failed to store notification",
			zap.String("user_id", userID),
			zap.String("title", title),
			zap.Error(err))
		prometheus.RecordNotification("in_app", "dropped")
		return Dropped
	}

	prometheus.RecordNotification("in_app", "delivered")
	return Delivered
}

// NotifyApplicationStatus tells an applicant about a decision on their
// application. Statuses without a template are dropped without any write.
func (d *Dispatcher) NotifyApplicationStatus(ctx context.Context, applicantID, applicationNumber string, status model.ApplicationStatus, cooperativeName string) Status {
	tpl, ok := applicationTemplates[status]
	if !ok {
		return Dropped
	}

	title := tpl.title
	message := tpl.render(applicationNumber, cooperativeName)
	link := "/applications/" + applicationNumber

	result := d.Notify(ctx, applicantID, title, message, tpl.kind, &link)
	if applicantID != "" {
		d.email(ctx, applicantID, title, message)
	}
	d.publish(ctx, StatusEvent{
		EventType:         EventApplicationStatusChanged,
		ApplicationNumber: applicationNumber,
		Status:            string(status),
		ApplicantID:       applicantID,
		CooperativeName:   cooperativeName,
		OccurredAt:        d.now(),
	})
	return result
}

// NotifyComplianceStatus tells each cooperative admin about a compliance
// report decision, one recipient at a time.
func (d *Dispatcher) NotifyComplianceStatus(ctx context.Context, adminIDs []string, reportNumber string, status ComplianceStatus, cooperativeName string) []Status {
	tpl, ok := complianceTemplates[status]
	if !ok {
		out := make([]Status, len(adminIDs))
		for i := range out {
			out[i] = Dropped
		}
		return out
	}

	message := tpl.render(reportNumber, cooperativeName)
	link := "/compliance/" + reportNumber

	out := make([]Status, 0, len(adminIDs))
	for _, id := range adminIDs {
		out = append(out, d.Notify(ctx, id, tpl.title, message, tpl.kind, &link))
	}
	return out
}

// ListForUser returns the newest notifications of a user.
func (d *Dispatcher) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return d.store.ListNotifications(ctx, userID, unreadOnly, limit)
}

// MarkRead marks one of the user's notifications read. It reports false when
// the notification does not belong to the user.
func (d *Dispatcher) MarkRead(ctx context.Context, userID string, id uint) (bool, error) {
	n, err := d.store.MarkNotificationRead(ctx, userID, id)
	return n > 0, err
}

func (d *Dispatcher) email(ctx context.Context, userID, subject, body string) {
	if d.mailer == nil {
		return
	}
	log := logger.FromContext(ctx)

	user, err := d.store.GetUser(ctx, userID)
	if err != nil || user.Email == "" {
		log.Debug("No email address for notification", zap.String("user_id", userID), zap.Error(err))
		prometheus.RecordNotification("email", "dropped")
		return
	}
	if err := d.mailer.Send(ctx, user.Email, subject, body); err != nil {
		log.Warn("Failed to send notification email", zap.String("user_id", userID), zap.Error(err))
		prometheus.RecordNotification("email", "dropped")
		return
	}
	prometheus.RecordNotification("email", "delivered")
}

func (d *Dispatcher) publish(ctx context.Context, event StatusEvent) {
	if d.publisher == nil {
		return
	}
	log := logger.FromContext(ctx)

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error("Failed to encode status event", zap.Error(err))
		prometheus.RecordNotification("event", "dropped")
		return
	}
	if err := d.publisher.Publish(ctx, event.ApplicationNumber, payload); err != nil {
		log.Warn("Failed to publish status event",
			zap.String("application_number", event.ApplicationNumber),
			zap.Error(fmt.Errorf("publish %s: %w", event.EventType, err)))
		prometheus.RecordNotification("event", "dropped")
		return
	}
	prometheus.RecordNotification("event", "delivered")
}
