package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/extension-workflow-api/internal/models"
	"github.com/noah-isme/extension-workflow-api/pkg/jobs"
	"github.com/noah-isme/extension-workflow-api/pkg/messaging"
)

// NotificationJobType tags queued student notifications.
const NotificationJobType = "extension_request.notification"

// RecipientDirectory resolves a student identity to a deliverable user.
type RecipientDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type notificationQueue interface {
	TryEnqueue(job jobs.Job) error
}

type notificationMetrics interface {
	RecordNotification(outcome string, delivered bool)
}

// NotificationService informs students of approval outcomes without blocking the transition.
type NotificationService struct {
	directory RecipientDirectory
	sender    messaging.Sender
	queue     notificationQueue
	metrics   notificationMetrics
	logger    *zap.Logger
	inflight  sync.WaitGroup
}

// NewNotificationService constructs the service. Without a running queue messages are delivered
// on a detached goroutine.
func NewNotificationService(directory RecipientDirectory, sender messaging.Sender, metrics notificationMetrics, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{directory: directory, sender: sender, metrics: metrics, logger: logger}
}

// AttachQueue routes notifications through the background queue.
func (s *NotificationService) AttachQueue(queue notificationQueue) {
	s.queue = queue
}

// Notify dispatches the notification. Failures are logged and counted, never returned.
func (s *NotificationService) Notify(ctx context.Context, n models.Notification) {
	if s.queue != nil {
		err := s.queue.TryEnqueue(jobs.Job{ID: uuid.NewString(), Type: NotificationJobType, Payload: n})
		if err == nil {
			return
		}
		if !errors.Is(err, jobs.ErrNotStarted) {
			s.logger.Warn("notification dropped",
				zap.String("request_id", n.RequestID),
				zap.String("student_id", n.StudentID),
				zap.Error(err),
			)
			s.record(n.Outcome, false)
			return
		}
	}
	s.inflight.Add(1)
	go func(ctx context.Context) {
		defer s.inflight.Done()
		if err := s.Deliver(ctx, n); err != nil {
			s.logger.Warn("notification delivery failed",
				zap.String("request_id", n.RequestID),
				zap.String("student_id", n.StudentID),
				zap.Error(err),
			)
		}
	}(context.WithoutCancel(ctx))
}

// Wait blocks until detached deliveries have finished.
func (s *NotificationService) Wait() {
	s.inflight.Wait()
}

// HandleJob is the queue handler for notification jobs.
func (s *NotificationService) HandleJob(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID), zap.String("type", fmt.Sprintf("%T", job.Payload)))
		return nil
	}
	return s.Deliver(ctx, n)
}

// Deliver resolves the recipient and hands the message to the transport.
func (s *NotificationService) Deliver(ctx context.Context, n models.Notification) error {
	if s.sender == nil || s.directory == nil {
		s.record(n.Outcome, false)
		return errors.New("notification transport not configured")
	}
	user, err := s.directory.FindByID(ctx, n.StudentID)
	if err != nil {
		s.record(n.Outcome, false)
		return fmt.Errorf("resolve recipient %s: %w", n.StudentID, err)
	}
	if err := s.sender.Send(ctx, ComposeNotification(n, user)); err != nil {
		s.record(n.Outcome, false)
		return fmt.Errorf("send notification: %w", err)
	}
	s.record(n.Outcome, true)
	return nil
}

// OnJobFailure logs notifications that exhausted their retries.
func (s *NotificationService) OnJobFailure(job jobs.Job, err error) {
	s.logger.Error("notification abandoned", zap.String("job_id", job.ID), zap.Int("attempts", job.Attempt), zap.Error(err))
}

// ComposeNotification renders the student facing message.
func ComposeNotification(n models.Notification, user *models.User) messaging.Message {
	verb := "approved"
	if n.Outcome == models.OutcomeDeclined {
		verb = "declined"
	}
	name := strings.TrimSpace(n.WorkflowName)
	if name == "" {
		name = "your course activity"
	}

	var body strings.Builder
	greeting := "Hello"
	if user.FullName != "" {
		greeting += " " + user.FullName
	}
	fmt.Fprintf(&body, "%s,\n\nYour extension request for %s has been %s.\n", greeting, name, verb)
	if n.Reason != "" {
		fmt.Fprintf(&body, "\nReason given: %s\n", n.Reason.Label())
	}
	if comment := strings.TrimSpace(n.Comment); comment != "" {
		fmt.Fprintf(&body, "\nReviewer comment:\n%s\n", comment)
	}

	return messaging.Message{
		To:      mail.Address{Name: user.FullName, Address: user.Email},
		Subject: fmt.Sprintf("Extension request %s: %s", verb, name),
		Body:    body.String(),
	}
}

func (s *NotificationService) record(outcome models.Outcome, delivered bool) {
	if s.metrics != nil {
		s.metrics.RecordNotification(string(outcome), delivered)
	}
}
