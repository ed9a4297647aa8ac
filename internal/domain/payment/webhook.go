package payment

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/payflow/internal/domain/order"
)

// WebhookEvent is a provider-pushed status notification, already parsed out
// of the transport payload.
type WebhookEvent struct {
	ExternalID     string
	ProviderStatus string
}

// WebhookOutcome tells the transport layer what happened to a notification.
// Ignored outcomes (unknown id, duplicate, stale, unrecognized status) are
// not errors: the webhook must still be acknowledged to the provider, or it
// will keep redelivering.
type WebhookOutcome string

const (
	OutcomeApplied WebhookOutcome = "applied"
	OutcomeIgnored WebhookOutcome = "ignored"
)

// providerStatusMap is the fixed mapping from provider-reported statuses to
// the local payment status space. Statuses outside the map are ignored.
var providerStatusMap = map[string]Status{
	"approved": StatusAuthorized,
	"captured": StatusCaptured,
	"declined": StatusFailed,
	"expired":  StatusCancelled,
	"canceled": StatusCancelled,
}

// HandleWebhook reconciles a gateway-pushed notification with local state.
// Delivery is at-least-once and possibly reordered, and may race synchronous
// operations on the same payment, so application is idempotent, monotonic
// per statusRank, and serialized per payment id.
func (s *Service) HandleWebhook(ctx context.Context, provider, token string, ev WebhookEvent) (WebhookOutcome, error) {
	lg := zctx.From(ctx)

	strategy, err := s.gateways.Get(provider)
	if err != nil {
		return OutcomeIgnored, err
	}

	// Authenticity comes first, before the external id is even looked at, so
	// an unauthenticated caller cannot probe which ids exist.
	ok, err := strategy.VerifyWebhook(ctx, token)
	if err != nil {
		return OutcomeIgnored, errors.Wrap(err, "verify webhook")
	}
	if !ok {
		return OutcomeIgnored, ErrWebhookAuthenticity
	}

	p, err := s.payments.GetByExternalID(ctx, ev.ExternalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// The referenced payment may belong to a different environment.
			// Acknowledge and drop so the provider does not keep retrying.
			lg.Warn("Webhook for unknown external payment id",
				zap.String("provider", provider),
				zap.String("external_id", ev.ExternalID),
			)
			return OutcomeIgnored, nil
		}
		return OutcomeIgnored, errors.Wrap(err, "resolve payment by external id")
	}

	unlock := s.locks.Lock(p.ID)
	defer unlock()

	// Re-read under the lock: a synchronous operation may have advanced the
	// payment between the lookup and the lock acquisition.
	p, err = s.payments.GetByID(ctx, p.ID)
	if err != nil {
		return OutcomeIgnored, errors.Wrap(err, "reload payment")
	}

	mapped, known := providerStatusMap[strings.ToLower(ev.ProviderStatus)]
	if !known {
		lg.Warn("Webhook with unrecognized provider status",
			zap.String("provider", provider),
			zap.String("payment_reference", p.Reference),
			zap.String("provider_status", ev.ProviderStatus),
		)
		return OutcomeIgnored, nil
	}

	if mapped == p.Status {
		// Duplicate delivery.
		return OutcomeIgnored, nil
	}
	if p.Status.webhookSink() || statusRank[mapped] <= statusRank[p.Status] {
		// Stale, out-of-order notification; never move the status backward.
		lg.Info("Webhook ignored, would regress payment status",
			zap.String("payment_reference", p.Reference),
			zap.String("current", string(p.Status)),
			zap.String("incoming", string(mapped)),
		)
		return OutcomeIgnored, nil
	}

	now := s.now()
	p.Status = mapped
	switch mapped {
	case StatusAuthorized:
		if p.AuthorizedAt == nil {
			p.AuthorizedAt = &now
		}
	case StatusCaptured:
		if p.CapturedAt == nil {
			p.CapturedAt = &now
		}
	}

	// Mirror onto the order exactly as the corresponding synchronous
	// operation would; a failed payment leaves the order unchanged so it
	// stays payable via a new payment.
	var orderStatus order.Status
	switch mapped {
	case StatusAuthorized:
		orderStatus = order.StatusPaymentAuthorized
	case StatusCaptured:
		orderStatus = order.StatusProcessing
	case StatusCancelled:
		orderStatus = order.StatusCancelled
	}

	if orderStatus != "" {
		err = s.payments.UpdateWithOrderStatus(ctx, p, orderStatus)
	} else {
		err = s.payments.Update(ctx, p)
	}
	if err != nil {
		return OutcomeIgnored, errors.Wrap(err, "apply webhook status")
	}

	lg.Info("Payment status updated via webhook",
		zap.String("payment_reference", p.Reference),
		zap.String("status", string(mapped)),
	)
	return OutcomeApplied, nil
}
