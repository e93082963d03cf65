package checkout

import (
	"time"

	"github.com/chainstore/checkout/logger"
	"github.com/chainstore/checkout/metrics"
	"github.com/chainstore/checkout/products"
	"github.com/chainstore/checkout/signer"
)

type Option func(*Orchestrator)

func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		o.metrics = r
	}
}

// WithTimeout sets a wall-clock ceiling on the whole purchase flow, bounding
// worst-case latency even when individual remote calls are slow.
func WithTimeout(t time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = t
	}
}

// WithPreparationPolicy bounds the payment-preparation poll.
func WithPreparationPolicy(maxAttempts int, delay time.Duration) Option {
	return func(o *Orchestrator) {
		o.prepAttempts = maxAttempts
		o.prepDelay = delay
	}
}

// WithMonitorPolicy bounds the post-payment confirmation poll.
func WithMonitorPolicy(maxAttempts int, delay time.Duration) Option {
	return func(o *Orchestrator) {
		o.monitorAttempts = maxAttempts
		o.monitorDelay = delay
	}
}

// WithProductRegistry replaces the default product-source registry.
func WithProductRegistry(r *products.Registry) Option {
	return func(o *Orchestrator) {
		o.registry = r
	}
}

// WithChainDialer overrides how chain backends are opened (tests, custom
// transports).
func WithChainDialer(dial signer.DialFunc) Option {
	return func(o *Orchestrator) {
		o.dial = dial
	}
}
