package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutorhive/tutorhive-api/pkg/config"
	"github.com/tutorhive/tutorhive-api/pkg/jobs"
)

// Event names emitted by the scheduling workflow.
const (
	EventRequestCreated   = "request.created"
	EventRequestConfirmed = "request.confirmed"
	EventRequestRejected  = "request.rejected"
	EventRequestProposed  = "request.proposed"
	EventRequestCancelled = "request.cancelled"
	EventLessonReserved   = "lesson.reserved"
	EventLessonCancelled  = "lesson.cancelled"
)

// Notification is the payload handed to the delivery collaborator.
type Notification struct {
	Event       string `json:"event"`
	RecipientID string `json:"recipient_id"`
	SubjectID   string `json:"subject_id,omitempty"`
	EntityID    string `json:"entity_id"`
}

// Notifier delivers notifications. Delivery (email, push, in-app) is owned by
// the wider platform; the default implementation only logs.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log stream.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs the logging notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, notification Notification) error {
	n.logger.Info("notification",
		zap.String("event", notification.Event),
		zap.String("recipient_id", notification.RecipientID),
		zap.String("entity_id", notification.EntityID),
	)
	return nil
}

// NotificationService fans workflow events out to the Notifier through an
// in-memory worker queue. Dispatch is fire-and-forget for the caller.
type NotificationService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService builds the service and its backing queue.
func NewNotificationService(notifier Notifier, cfg config.NotificationsConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}

	handler := func(ctx context.Context, job jobs.Job) error {
		notification, ok := job.Payload.(Notification)
		if !ok {
			logger.Warn("dropping notification job with unexpected payload", zap.String("job_id", job.ID))
			return nil
		}
		return notifier.Notify(ctx, notification)
	}

	queue := jobs.NewQueue("notifications", handler, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})

	return &NotificationService{queue: queue, logger: logger}
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Publish enqueues a notification. Failures are logged, never surfaced to the
// booking path.
func (s *NotificationService) Publish(event, recipientID, entityID string) {
	if s == nil {
		return
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    event,
		Payload: Notification{Event: event, RecipientID: recipientID, EntityID: entityID},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("event", event), zap.Error(err))
	}
}
