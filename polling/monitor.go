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

// StatusMonitor watches an order after the payment transaction has been
// submitted, until the service reports it complete or the attempt budget runs
// out. Exhausting the budget is not a failure verdict: the order may still
// complete later, so the caller should report "unknown, check later".
type StatusMonitor struct {
	Orders gateway.OrderService

	// MaxAttempts bounds the number of GetStatus calls (default 15).
	MaxAttempts int

	// Delay is the fixed pause between attempts (default 2s).
	Delay time.Duration

	// OnChange fires when phase or payment status differs from the previous
	// observation.
	OnChange func(*types.Order)

	Logger  logger.Logger
	Metrics metrics.Recorder
}

// Wait polls the order until it reaches a terminal phase or payment status.
// On success it fetches one extra snapshot so the final report reflects the
// freshest state the service has; if that extra fetch fails, the snapshot
// that triggered the stop is returned instead.
func (m *StatusMonitor) Wait(ctx context.Context, orderID string) (*types.Order, error) {
	maxAttempts, delay, log, rec := m.policy()

	var tracker changeTracker
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ord, err := m.Orders.GetStatus(ctx, orderID)
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

		tracker.observe(ord, log, m.OnChange)

		if orderSettled(ord) {
			fresh, err := m.Orders.GetStatus(ctx, orderID)
			if err != nil {
				log.Warn("final status refresh failed, using last snapshot", map[string]any{
					"orderId": orderID,
					"error":   err.Error(),
				})
				return ord, nil
			}
			return fresh, nil
		}

		if attempt < maxAttempts {
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	return nil, &types.CheckoutError{
		Code:    types.ErrCodeConfirmationTimeout,
		Message: fmt.Sprintf("order not confirmed after %d attempts; it may still complete, check again later", maxAttempts),
	}
}

func (m *StatusMonitor) policy() (int, time.Duration, logger.Logger, metrics.Recorder) {
	maxAttempts := m.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	delay := m.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}
	var log logger.Logger = m.Logger
	if log == nil {
		log = logger.NoopLogger{}
	}
	var rec metrics.Recorder = m.Metrics
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return maxAttempts, delay, log, rec
}

// orderSettled reports whether the service considers the purchase done.
func orderSettled(ord *types.Order) bool {
	if ord.Payment.Status == types.PaymentStatusCompleted {
		return true
	}
	return ord.Phase == types.PhaseCompleted || ord.Phase == types.PhaseComplete
}
