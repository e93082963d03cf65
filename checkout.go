// Package checkout orchestrates the purchase of a physical good paid with an
// on-chain crypto transfer, coordinating a merchant-of-record checkout
// service and a public blockchain network. The two systems are eventually
// consistent and fail independently; the orchestrator sequences order
// creation, address resolution, payment preparation, on-chain signing and
// post-payment confirmation, tolerating partial failure at every hop.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/chainstore/checkout/gateway"
	"github.com/chainstore/checkout/logger"
	"github.com/chainstore/checkout/metrics"
	"github.com/chainstore/checkout/polling"
	"github.com/chainstore/checkout/products"
	"github.com/chainstore/checkout/signer"
	"github.com/chainstore/checkout/types"
)

// State is the orchestrator's position in the purchase flow.
type State string

const (
	StateCreated             State = "created"
	StateAddressPending      State = "address-pending"
	StateValid               State = "valid"
	StateAwaitingPreparation State = "awaiting-preparation"
	StateReadyToSign         State = "ready-to-sign"
	StateSubmitted           State = "submitted"
	StateConfirmed           State = "confirmed"

	// Absorbing failure states.
	StateAddressRequired    State = "address-required"
	StateInsufficientFunds  State = "insufficient-funds"
	StatePayloadUnavailable State = "payload-unavailable"
	StateRemoteFailure      State = "remote-failure"
	StateTimeout            State = "timeout"
)

// PurchaseRequest is the input to one purchase flow.
type PurchaseRequest struct {
	// Product is a product identifier or a store URL. Required.
	Product string `validate:"required"`

	// ProductSource selects the store; defaults to "amazon".
	ProductSource string

	// Chain is the settlement network. When empty, it is picked from the
	// gateway's environment: polygon for production keys, the default
	// testnet otherwise.
	Chain types.Chain

	// Currency defaults to "usdc".
	Currency string

	// SigningKey is the payer's hex-encoded private key. When empty, the
	// flow stops after quote validation with ManualCompletion set; that is
	// a valid terminal outcome, not an error.
	SigningKey string

	// ShippingAddress is required when the product needs physical delivery.
	ShippingAddress *types.ShippingAddress

	// RecipientEmail optionally names who receives the good.
	RecipientEmail string
}

// Result is the terminal outcome of one purchase flow. State distinguishes
// "purchase confirmed", "requires manual follow-up" and "failed, with
// reason"; Confirmed is only ever reported after it was observed.
type Result struct {
	State   State
	Order   *types.Order
	Receipt *signer.Receipt
	Report  *Report

	// ManualCompletion is set when no signing key was supplied and the
	// order was left valid for out-of-band payment.
	ManualCompletion bool
}

// Orchestrator drives single purchase flows. It holds no per-order state
// across runs; a crash mid-flow is resumed by order identifier against the
// remote service, not from local state.
type Orchestrator struct {
	orders   gateway.OrderService
	registry *products.Registry
	logger   logger.Logger
	metrics  metrics.Recorder

	prepAttempts    int
	prepDelay       time.Duration
	monitorAttempts int
	monitorDelay    time.Duration

	// timeout is an optional wall-clock ceiling over the whole flow, on top
	// of the per-stage attempt budgets.
	timeout time.Duration

	dial signer.DialFunc
}

var validate = validator.New()

// New creates an orchestrator over the given order service.
func New(orders gateway.OrderService, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		orders:   orders,
		registry: products.DefaultRegistry(),
		logger:   logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Purchase runs one order from creation to a terminal state. The returned
// Result always carries the final state; err is non-nil for every terminal
// state except Confirmed and the manual-completion outcome.
func (o *Orchestrator) Purchase(ctx context.Context, req PurchaseRequest) (*Result, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		o.metrics.ObserveLatency("purchase", time.Since(start), map[string]string{"chain": req.Chain.String()})
	}()

	res := &Result{}

	// Fail fast on caller mistakes before any remote call.
	if err := validate.Struct(&req); err != nil {
		return res, &types.CheckoutError{
			Code:    types.ErrCodeValidationFailed,
			Message: fmt.Sprintf("invalid purchase request: %v", err),
			Err:     err,
		}
	}
	source := req.ProductSource
	if source == "" {
		source = "amazon"
	}
	locator, err := o.registry.Locator(source, req.Product)
	if err != nil {
		return res, err
	}
	if req.Currency == "" {
		req.Currency = "usdc"
	}
	if req.Chain == "" {
		req.Chain = o.defaultChain()
	}

	var sgn *signer.Signer
	var payer string
	if req.SigningKey != "" {
		sgn, err = signer.New(req.SigningKey)
		if err != nil {
			return res, err
		}
		sgn.Dial = o.dial
		sgn.Logger = o.logger
		sgn.Metrics = o.metrics
		payer = sgn.Address()
	}
	if req.ShippingAddress != nil {
		if err := req.ShippingAddress.Validate(); err != nil {
			return res, err
		}
	}

	ord, err := o.orders.Create(ctx, gateway.CreateOrderRequest{
		ProductLocator: locator,
		PaymentMethod:  req.Chain,
		Currency:       req.Currency,
		PayerAddress:   payer,
		RecipientEmail: req.RecipientEmail,
	})
	if err != nil {
		return o.fail(res, StateRemoteFailure, err)
	}
	res.State = StateCreated
	res.Order = ord
	o.metrics.IncCounter("order_created", map[string]string{"chain": req.Chain.String()})
	o.logger.Info("order created", map[string]any{
		"orderId":     ord.OrderID,
		"quoteStatus": ord.Quote.Status,
		"chain":       req.Chain.String(),
	})

	ord, err = o.resolveAddress(ctx, res, ord, req.ShippingAddress)
	if err != nil {
		return res, err
	}
	res.State = StateValid
	res.Order = ord

	if sgn == nil {
		res.ManualCompletion = true
		res.Report = NewReport(ord, nil)
		o.logger.Info("no signing key supplied, order left for manual completion", map[string]any{
			"orderId": ord.OrderID,
		})
		return res, nil
	}

	res.State = StateAwaitingPreparation
	poller := &polling.PreparationPoller{
		Orders:      o.orders,
		MaxAttempts: o.prepAttempts,
		Delay:       o.prepDelay,
		Logger:      o.logger,
		Metrics:     o.metrics,
	}
	ord, err = poller.Wait(ctx, ord.OrderID)
	if err != nil {
		return o.fail(res, stateForError(err), err)
	}
	res.State = StateReadyToSign
	res.Order = ord

	receipt, err := sgn.SignAndSubmit(ctx, ord)
	if err != nil {
		return o.fail(res, stateForError(err), err)
	}
	res.State = StateSubmitted
	res.Receipt = receipt

	monitor := &polling.StatusMonitor{
		Orders:      o.orders,
		MaxAttempts: o.monitorAttempts,
		Delay:       o.monitorDelay,
		Logger:      o.logger,
		Metrics:     o.metrics,
	}
	final, err := monitor.Wait(ctx, ord.OrderID)
	if err != nil {
		// A confirmation timeout is "unknown, check later", not a verdict
		// on the purchase; keep the receipt and report what we know.
		res.Report = NewReport(res.Order, receipt)
		return o.fail(res, stateForError(err), err)
	}

	res.State = StateConfirmed
	res.Order = final
	res.Report = NewReport(final, receipt)
	o.metrics.IncCounter("purchase_confirmed", map[string]string{"chain": req.Chain.String()})
	o.logger.Info("purchase confirmed", map[string]any{
		"orderId": final.OrderID,
		"txHash":  receipt.TxHash,
	})
	return res, nil
}

// resolveAddress advances the order out of address-pending. The flow never
// waits for a human to supply an address: a missing or rejected address is a
// fatal address-required failure.
func (o *Orchestrator) resolveAddress(ctx context.Context, res *Result, ord *types.Order, addr *types.ShippingAddress) (*types.Order, error) {
	if ord.Quote.Status != types.QuoteStatusRequiresPhysicalAddress {
		return ord, nil
	}

	res.State = StateAddressPending
	if addr == nil {
		err := &types.CheckoutError{
			Code:    types.ErrCodeAddressRequired,
			Message: "product requires physical delivery but no shipping address was supplied",
			Order:   ord,
		}
		_, _ = o.fail(res, StateAddressRequired, err)
		return nil, err
	}

	patched, err := o.orders.PatchShippingAddress(ctx, ord.OrderID, *addr)
	if err != nil {
		_, _ = o.fail(res, StateRemoteFailure, err)
		return nil, err
	}
	if patched.Quote.Status != types.QuoteStatusValid {
		err := &types.CheckoutError{
			Code:    types.ErrCodeAddressRequired,
			Message: fmt.Sprintf("quote is %q after address update, expected %q", patched.Quote.Status, types.QuoteStatusValid),
			Order:   patched,
		}
		_, _ = o.fail(res, StateAddressRequired, err)
		return nil, err
	}
	return patched, nil
}

func (o *Orchestrator) fail(res *Result, state State, err error) (*Result, error) {
	res.State = state
	o.logger.Error("purchase flow stopped", map[string]any{
		"state": string(state),
		"error": err.Error(),
	})
	return res, err
}

func (o *Orchestrator) defaultChain() types.Chain {
	type environmentClassifier interface {
		IsProduction() bool
	}
	if env, ok := o.orders.(environmentClassifier); ok {
		return types.ChainForEnvironment(env.IsProduction())
	}
	return types.DefaultChain
}

// stateForError maps a checkout error to its absorbing failure state.
func stateForError(err error) State {
	switch types.ErrorCode(err) {
	case types.ErrCodeAddressRequired:
		return StateAddressRequired
	case types.ErrCodeInsufficientFunds:
		return StateInsufficientFunds
	case types.ErrCodePaymentPayloadMissing:
		return StatePayloadUnavailable
	case types.ErrCodePreparationTimeout, types.ErrCodeConfirmationTimeout:
		return StateTimeout
	default:
		return StateRemoteFailure
	}
}
