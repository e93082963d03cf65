package types

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Phase is the order's overall lifecycle stage as tracked by the checkout
// service. The service may add stages over time, so this is an open enum.
type Phase = string

const (
	PhaseQuote     Phase = "quote"
	PhasePayment   Phase = "payment"
	PhaseDelivery  Phase = "delivery"
	PhaseCompleted Phase = "completed"

	// Some service deployments report the terminal phase as "complete"
	// rather than "completed". Both are treated as terminal.
	PhaseComplete Phase = "complete"
)

// Quote status values reported by the checkout service.
const (
	QuoteStatusValid                   = "valid"
	QuoteStatusRequiresPhysicalAddress = "requires-physical-address"
	QuoteStatusExpired                 = "expired"
)

// Payment status values reported by the checkout service.
const (
	PaymentStatusAwaitingPayment   = "awaiting-payment"
	PaymentStatusInsufficientFunds = "crypto-payer-insufficient-funds"
	PaymentStatusFailed            = "failed"
	PaymentStatusCanceled          = "canceled"
	PaymentStatusCompleted         = "completed"
)

// Order is a point-in-time snapshot of a remotely-owned purchase record.
// The checkout service is the source of truth; snapshots are never written
// back and are discarded at process exit.
type Order struct {
	OrderID   string     `json:"orderId"`
	Phase     Phase      `json:"phase"`
	Quote     Quote      `json:"quote"`
	Payment   Payment    `json:"payment"`
	LineItems []LineItem `json:"lineItems,omitempty"`

	// Raw holds the normalized JSON the snapshot was parsed from, so that
	// fields this library does not model survive round trips.
	Raw json.RawMessage `json:"-"`
}

// Quote is the priced, validity-checked representation of what will be
// charged. Status signals whether further input (e.g. an address) is needed.
type Quote struct {
	Status     string `json:"status"`
	TotalPrice *Money `json:"totalPrice,omitempty"`
}

// Money is a price amount in a named currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Payment describes how the order is being settled on chain.
type Payment struct {
	Method      string       `json:"method"` // chain identifier, e.g. "polygon-amoy"
	Currency    string       `json:"currency"`
	Status      string       `json:"status"`
	Preparation *Preparation `json:"preparation,omitempty"`
}

// Preparation is an unsigned, chain-ready transaction payload computed by the
// checkout service once all purchase inputs are valid. Its presence is the
// signal that the order can be signed and submitted. The service attaches
// auxiliary fields we do not model; those are kept in Extra.
type Preparation struct {
	SerializedTransaction string
	Extra                 map[string]interface{}
}

// UnmarshalJSON keeps unknown preparation fields instead of dropping them.
func (p *Preparation) UnmarshalJSON(data []byte) error {
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if tx, ok := fields["serializedTransaction"].(string); ok {
		p.SerializedTransaction = tx
	}
	delete(fields, "serializedTransaction")
	if len(fields) > 0 {
		p.Extra = fields
	}
	return nil
}

// MarshalJSON is the inverse of UnmarshalJSON.
func (p Preparation) MarshalJSON() ([]byte, error) {
	fields := make(map[string]interface{}, len(p.Extra)+1)
	for k, v := range p.Extra {
		fields[k] = v
	}
	if p.SerializedTransaction != "" {
		fields["serializedTransaction"] = p.SerializedTransaction
	}
	return json.Marshal(fields)
}

// LineItem identifies one product being purchased.
type LineItem struct {
	ProductLocator string `json:"productLocator"`
}

// Recipient is who receives the purchased good.
type Recipient struct {
	Email           string           `json:"email,omitempty"`
	PhysicalAddress *ShippingAddress `json:"physicalAddress,omitempty"`
}

// ShippingAddress is the delivery address for a physical good. It is
// immutable once submitted for a given order update.
type ShippingAddress struct {
	Name       string `json:"name" validate:"required"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country" validate:"required,len=2"`
}

var validate = validator.New()

// Validate checks the address before it is sent to the checkout service.
func (a *ShippingAddress) Validate() error {
	if err := validate.Struct(a); err != nil {
		return &CheckoutError{
			Code:    ErrCodeValidationFailed,
			Message: fmt.Sprintf("invalid shipping address: %v", err),
			Err:     err,
		}
	}
	return nil
}
