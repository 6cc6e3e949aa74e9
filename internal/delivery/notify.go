package delivery

import (
	"context"

	"github.com/nerrad567/matter-ipmap/internal/homeassistant"
	"github.com/nerrad567/matter-ipmap/internal/report"
)

// Notifier posts persistent notifications. *homeassistant.Client
// implements it.
type Notifier interface {
	CreateNotification(ctx context.Context, n homeassistant.Notification) error
}

// NotificationSink posts the run summary as a persistent notification.
// Every run reuses the same notification id, so the latest summary
// replaces the previous one.
type NotificationSink struct {
	notifier Notifier
	id       string
}

// NewNotificationSink creates a sink posting under notificationID.
func NewNotificationSink(notifier Notifier, notificationID string) *NotificationSink {
	return &NotificationSink{notifier: notifier, id: notificationID}
}

// Name implements Sink.
func (s *NotificationSink) Name() string { return "notification" }

// Deliver posts the completion summary.
func (s *NotificationSink) Deliver(ctx context.Context, run Run) error {
	return s.post(ctx, run.Report.Summary())
}

// NotifyFailure posts the error notice for a run that could not complete.
func (s *NotificationSink) NotifyFailure(ctx context.Context, cause error) error {
	return s.post(ctx, report.FailureSummary(cause))
}

func (s *NotificationSink) post(ctx context.Context, n report.Notice) error {
	return s.notifier.CreateNotification(ctx, homeassistant.Notification{
		Title:          n.Title,
		Message:        n.Message,
		NotificationID: s.id,
	})
}
