// Package polling implements the bounded status loops against the checkout
// service: waiting for a signable payment payload before submission, and
// waiting for order completion after it.
package polling

import (
	"context"
	"fmt"
	"time"

	"github.com/chainstore/checkout/gateway"
	"github.com/chainstore/checkout/logger"
	"github.com/chainstore/checkout/metrics"
	"github.com/chainstore/checkout/types"
)

const (
	DefaultMaxAttempts = 15
	DefaultDelay       = 2 * time.Second
)

// PreparationPoller waits until an order's payment preparation carries a
// serialized transaction ready for signing.
type PreparationPoller struct {
	Orders gateway.OrderService

	// MaxAttempts bounds the number of GetStatus calls (default 15).
	MaxAttempts int

	// Delay is the fixed pause between attempts (default 2s).
	Delay time.Duration

	// OnChange fires when phase or payment status differs from the previous
	// observation. Duplicate snapshots are suppressed.
	OnChange func(*types.Order)

	Logger  logger.Logger
	Metrics metrics.Recorder
}

// Wait polls the order until a serialized transaction appears, the payment
// reaches a terminal failure status, the attempt budget runs out, or ctx is
// canceled. A remote error consumes an attempt; only the final attempt's
// error propagates.
func (p *PreparationPoller) Wait(ctx context.Context, orderID string) (*types.Order, error) {
	maxAttempts, delay, log, rec := p.policy()

	var tracker changeTracker
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ord, err := p.Orders.GetStatus(ctx, orderID)
		rec.IncCounter("status_poll", map[string]string{"chain": ""})
		if err != nil {
			if attempt == maxAttempts {
				return nil, err
			}
			log.Warn("order status poll failed", map[string]any{
				"orderId": orderID,
				"attempt": attempt,
				"error":   err.Error(),
			})
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		tracker.observe(ord, log, p.OnChange)

		if prep := ord.Payment.Preparation; prep != nil && prep.SerializedTransaction != "" {
			return ord, nil
		}

		switch ord.Payment.Status {
		case types.PaymentStatusFailed, types.PaymentStatusCanceled:
			return nil, &types.CheckoutError{
				Code:    types.ErrCodePaymentTerminallyFailed,
				Message: fmt.Sprintf("payment reached terminal status %q", ord.Payment.Status),
				Order:   ord,
			}
		}

		if attempt < maxAttempts {
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	return nil, &types.CheckoutError{
		Code:    types.ErrCodePreparationTimeout,
		Message: fmt.Sprintf("no payment preparation after %d attempts", maxAttempts),
	}
}

func (p *PreparationPoller) policy() (int, time.Duration, logger.Logger, metrics.Recorder) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	delay := p.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}
	var log logger.Logger = p.Logger
	if log == nil {
		log = logger.NoopLogger{}
	}
	var rec metrics.Recorder = p.Metrics
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return maxAttempts, delay, log, rec
}

// changeTracker suppresses duplicate status notifications: a snapshot is
// reported only when phase or payment status differs from the previous one.
type changeTracker struct {
	seen       bool
	phase      string
	payStatus  string
}

func (t *changeTracker) observe(ord *types.Order, log logger.Logger, onChange func(*types.Order)) {
	if t.seen && ord.Phase == t.phase && ord.Payment.Status == t.payStatus {
		return
	}
	t.seen = true
	t.phase = ord.Phase
	t.payStatus = ord.Payment.Status

	log.Info("order status changed", map[string]any{
		"orderId":       ord.OrderID,
		"phase":         ord.Phase,
		"paymentStatus": ord.Payment.Status,
	})
	if onChange != nil {
		onChange(ord)
	}
}

// sleep pauses for d or until ctx is canceled.
func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
