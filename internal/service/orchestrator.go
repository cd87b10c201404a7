package service

import (
	"context"
	"strings"
	"time"

	"ridecoord/internal/domain"
	"ridecoord/internal/logger"
	"ridecoord/internal/repository"
)

// Outcome names how the orchestrator resolved a ride change. None of the
// outcomes is an error: every change resolves successfully.
type Outcome string

const (
	OutcomeSkippedUnchanged Outcome = "skipped_unchanged"
	OutcomeSkippedTerminal  Outcome = "skipped_terminal"
	OutcomeSkippedNoPhone   Outcome = "skipped_no_phone"
	OutcomeSkippedDelivered Outcome = "skipped_delivered"
	OutcomeSuppressed       Outcome = "suppressed"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeNotifyFailed     Outcome = "notify_failed"
	OutcomeNotified         Outcome = "notified"
)

// Result describes what the orchestrator did for one change.
type Result struct {
	Outcome Outcome
	Status  domain.RideStatus
	Message string
	Send    SendResult
}

// Orchestrator reacts to ride status changes with rider notifications. It
// keeps no memory between changes; each decision is a function of the
// before/after pair, so redelivered changes are safe to handle again.
type Orchestrator struct {
	rides    repository.RideStore
	notifier *NotificationService
	messages *MessageBuilder
	log      *logger.Logger
	now      func() time.Time
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(rides repository.RideStore, notifier *NotificationService, messages *MessageBuilder, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		rides:    rides,
		notifier: notifier,
		messages: messages,
		log:      log,
		now:      time.Now,
	}
}

// Handle evaluates one before/after pair. It never takes a payment action.
func (o *Orchestrator) Handle(ctx context.Context, change *domain.RideChange) Result {
	if change == nil || change.After == nil {
		return Result{Outcome: OutcomeIgnored}
	}
	after := change.After
	ctx = o.log.WithRideID(ctx, after.ID)
	ctx = o.log.WithField(ctx, "status", string(after.Status))

	var beforeStatus domain.RideStatus
	if change.Before != nil {
		beforeStatus = change.Before.Status
	}

	res := Result{Status: after.Status}

	if !change.StatusChanged() {
		o.log.Debug(ctx, "status unchanged, skipping notification")
		res.Outcome = OutcomeSkippedUnchanged
		return res
	}

	if beforeStatus.IsTerminal() {
		o.log.Warn(ctx, "ride already terminal, skipping notification")
		res.Outcome = OutcomeSkippedTerminal
		return res
	}

	phone := strings.TrimSpace(after.CustomerPhone)
	if phone == "" {
		o.log.Warn(ctx, "no customer phone, skipping notification")
		res.Outcome = OutcomeSkippedNoPhone
		return res
	}

	switch PolicyFor(after.Status) {
	case PolicySuppress:
		o.log.Info(ctx, "trip started, notification suppressed")
		res.Outcome = OutcomeSuppressed
		return res
	case PolicyIgnore:
		o.log.Debug(ctx, "no notification for status")
		res.Outcome = OutcomeIgnored
		return res
	}

	if o.alreadyDelivered(ctx, after) {
		o.log.Info(ctx, "notification already delivered for status")
		res.Outcome = OutcomeSkippedDelivered
		return res
	}

	body, ok := o.messages.Build(after)
	if !ok {
		res.Outcome = OutcomeIgnored
		return res
	}
	res.Message = body

	res.Send = o.notifier.Deliver(ctx, phone, body)
	if !res.Send.OK() {
		res.Outcome = OutcomeNotifyFailed
		return res
	}
	res.Outcome = OutcomeNotified

	o.recordNotification(ctx, after, phone, res.Send.MessageID)
	o.log.Info(o.log.WithField(ctx, "message_id", res.Send.MessageID), "notification sent")
	return res
}

// alreadyDelivered reports whether the message log on the stored ride has
// an entry for the new status, which is the case when a change is
// redelivered after the send succeeded. A read failure counts as not
// delivered.
func (o *Orchestrator) alreadyDelivered(ctx context.Context, ride *domain.Ride) bool {
	if _, ok := ride.Notifications[ride.Status]; ok {
		return true
	}
	current, err := o.rides.Get(ctx, ride.ID)
	if err != nil {
		o.log.Error(ctx, "failed to read message log", err)
		return false
	}
	_, ok := current.Notifications[ride.Status]
	return ok
}

// recordNotification writes the message id back to notifications.<status>.
// The write-back changes no status, so the change it emits resolves as
// skipped_unchanged.
func (o *Orchestrator) recordNotification(ctx context.Context, ride *domain.Ride, to, messageID string) {
	patch := domain.RidePatch{
		"notifications": map[string]any{
			string(ride.Status): domain.NotificationRecord{
				MessageID: messageID,
				To:        to,
				SentAt:    o.now().UTC(),
			},
		},
	}
	if _, err := o.rides.Merge(ctx, ride.ID, patch); err != nil {
		o.log.Error(ctx, "failed to record notification", err)
	}
}
