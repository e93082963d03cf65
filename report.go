package checkout

import (
	"github.com/chainstore/checkout/signer"
	"github.com/chainstore/checkout/types"
)

// NotAvailable is the placeholder for display fields the checkout service
// did not include in the final snapshot. The service frequently omits
// optional display data; that never fails the flow.
const NotAvailable = "not available"

// Report is the human-readable summary of a finished (or timed-out) flow.
type Report struct {
	OrderID       string
	Phase         string
	PaymentStatus string
	Total         string
	Currency      string
	TxHash        string
	Block         string
}

// NewReport builds a report from the freshest order snapshot and, when a
// transaction was submitted, its receipt.
func NewReport(ord *types.Order, receipt *signer.Receipt) *Report {
	r := &Report{
		OrderID:       NotAvailable,
		Phase:         NotAvailable,
		PaymentStatus: NotAvailable,
		Total:         NotAvailable,
		Currency:      NotAvailable,
		TxHash:        NotAvailable,
		Block:         NotAvailable,
	}
	if ord != nil {
		if ord.OrderID != "" {
			r.OrderID = ord.OrderID
		}
		if ord.Phase != "" {
			r.Phase = ord.Phase
		}
		if ord.Payment.Status != "" {
			r.PaymentStatus = ord.Payment.Status
		}
		if ord.Quote.TotalPrice != nil {
			r.Total = ord.Quote.TotalPrice.Amount.String()
			if ord.Quote.TotalPrice.Currency != "" {
				r.Currency = ord.Quote.TotalPrice.Currency
			}
		}
	}
	if receipt != nil {
		r.TxHash = receipt.TxHash
		if receipt.BlockNumber != nil {
			r.Block = receipt.BlockNumber.String()
		}
	}
	return r
}
