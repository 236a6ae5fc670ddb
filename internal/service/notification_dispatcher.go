package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/event-registration-api/internal/models"
	"github.com/noah-isme/event-registration-api/pkg/eventbus"
	"github.com/noah-isme/event-registration-api/pkg/jobs"
)

// Notification job types.
const (
	JobNotifyPending       = "notify.pending"
	JobNotifyConfirmed     = "notify.confirmed"
	JobNotifyCancelled     = "notify.cancelled"
	JobNotifyWaitlisted    = "notify.waitlisted"
	JobNotifySpotAvailable = "notify.spot_available"
)

// NotificationJobTypes lists every job type handled by NotificationDispatcher.
var NotificationJobTypes = []string{
	JobNotifyPending,
	JobNotifyConfirmed,
	JobNotifyCancelled,
	JobNotifyWaitlisted,
	JobNotifySpotAvailable,
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type subscription struct {
	eventType eventbus.EventType
	id        eventbus.SubscriberID
}

// NotificationDispatcher turns domain events into notification jobs and
// delivers them through the Notifier from the worker pool. Delivery failures
// never affect the registration that triggered them.
type NotificationDispatcher struct {
	notifier Notifier
	queue    jobDispatcher
	metrics  *MetricsService
	logger   *zap.Logger

	mu   sync.Mutex
	bus  *eventbus.Bus
	subs []subscription
}

// NewNotificationDispatcher constructs NotificationDispatcher.
func NewNotificationDispatcher(notifier Notifier, queue jobDispatcher, metrics *MetricsService, logger *zap.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationDispatcher{notifier: notifier, queue: queue, metrics: metrics, logger: logger}
}

// Attach subscribes the dispatcher to the bus.
func (d *NotificationDispatcher) Attach(bus *eventbus.Bus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if bus == nil || d.bus != nil {
		return
	}
	d.bus = bus
	d.subscribe(models.EventEnrollmentAdmitted, func(evt eventbus.Event) {
		payload, ok := evt.Data.(models.EnrollmentAdmitted)
		if !ok {
			return
		}
		jobType := JobNotifyConfirmed
		if payload.Registration.PaymentStatus == models.PaymentStatusPending {
			jobType = JobNotifyPending
		}
		d.enqueue(jobType, payload.Registration)
	})
	d.subscribe(models.EventEnrollmentCancelled, func(evt eventbus.Event) {
		if payload, ok := evt.Data.(models.EnrollmentCancelled); ok {
			d.enqueue(JobNotifyCancelled, payload.Registration)
		}
	})
	d.subscribe(models.EventEnrollmentWaitlisted, func(evt eventbus.Event) {
		if payload, ok := evt.Data.(models.EnrollmentWaitlisted); ok {
			d.enqueue(JobNotifyWaitlisted, payload.Entry)
		}
	})
	d.subscribe(models.EventWaitlistEntryNotified, func(evt eventbus.Event) {
		if payload, ok := evt.Data.(models.WaitlistEntryNotified); ok {
			d.enqueue(JobNotifySpotAvailable, payload.Entry)
		}
	})
}

func (d *NotificationDispatcher) subscribe(eventType eventbus.EventType, fn eventbus.HandlerFunc) {
	d.subs = append(d.subs, subscription{eventType: eventType, id: d.bus.Subscribe(eventType, fn)})
}

// Detach removes the bus subscriptions.
func (d *NotificationDispatcher) Detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sub := range d.subs {
		d.bus.Unsubscribe(sub.eventType, sub.id)
	}
	d.subs = nil
	d.bus = nil
}

// Register installs the job handlers on the queue.
func (d *NotificationDispatcher) Register(queue *jobs.Queue) {
	for _, jobType := range NotificationJobTypes {
		queue.Handle(jobType, d.Handle)
	}
}

func (d *NotificationDispatcher) enqueue(jobType string, payload interface{}) {
	if err := d.queue.Enqueue(jobs.Job{Type: jobType, Payload: payload}); err != nil {
		d.metrics.RecordNotification(jobType, err)
		d.logger.Warn("failed to enqueue notification", zap.String("type", jobType), zap.Error(err))
	}
}

// Handle delivers one notification job.
func (d *NotificationDispatcher) Handle(ctx context.Context, job jobs.Job) error {
	var err error
	switch job.Type {
	case JobNotifyPending, JobNotifyConfirmed, JobNotifyCancelled:
		registration, ok := job.Payload.(models.Registration)
		if !ok {
			return d.badPayload(job)
		}
		switch job.Type {
		case JobNotifyPending:
			err = d.notifier.NotifyPending(ctx, registration)
		case JobNotifyConfirmed:
			err = d.notifier.NotifyConfirmed(ctx, registration)
		default:
			err = d.notifier.NotifyCancelled(ctx, registration)
		}
	case JobNotifyWaitlisted, JobNotifySpotAvailable:
		entry, ok := job.Payload.(models.WaitlistEntry)
		if !ok {
			return d.badPayload(job)
		}
		if job.Type == JobNotifyWaitlisted {
			err = d.notifier.NotifyWaitlisted(ctx, entry)
		} else {
			err = d.notifier.NotifySpotAvailable(ctx, entry)
		}
	default:
		d.logger.Warn("unknown notification job", zap.String("type", job.Type), zap.String("job_id", job.ID))
		return nil
	}
	d.metrics.RecordNotification(job.Type, err)
	return err
}

// badPayload drops the job; retrying cannot fix its payload.
func (d *NotificationDispatcher) badPayload(job jobs.Job) error {
	d.logger.Error("notification job carries unexpected payload",
		zap.String("type", job.Type),
		zap.String("job_id", job.ID),
		zap.String("payload", fmt.Sprintf("%T", job.Payload)),
	)
	return nil
}
