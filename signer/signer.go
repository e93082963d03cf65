// Package signer signs and submits the checkout service's prepared payment
// transaction on the order's settlement chain and waits for it to be mined.
package signer

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/chainstore/checkout/logger"
	"github.com/chainstore/checkout/metrics"
	"github.com/chainstore/checkout/types"
)

const (
	defaultReceiptAttempts = 40
	defaultReceiptDelay    = 3 * time.Second
)

// Receipt is the on-chain proof of a submitted payment.
type Receipt struct {
	TxHash      string
	BlockNumber *big.Int
	Chain       types.Chain
}

// Backend is the slice of chain RPC functionality the signer needs. The
// production implementation is ethclient; tests substitute a fake.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	Close()
}

// DialFunc opens a Backend for the given RPC endpoint. The connection is
// scoped to a single submission: acquire, submit, await confirmation, release.
type DialFunc func(ctx context.Context, rpcURL string) (Backend, error)

func dialEthclient(ctx context.Context, rpcURL string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Signer signs prepared payment transactions with one private key. A Signer
// tracks which orders it has already submitted for and refuses to submit
// twice, even if polling hands it a stale "ready" snapshot again.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address

	// Dial overrides how the chain backend is opened (optional; tests).
	Dial DialFunc

	// ReceiptAttempts and ReceiptDelay bound the confirmation wait.
	ReceiptAttempts int
	ReceiptDelay    time.Duration

	Logger  logger.Logger
	Metrics metrics.Recorder

	mu        sync.Mutex
	submitted map[string]string // orderID -> tx hash
}

// New creates a signer from a hex-encoded private key, with or without the
// "0x" prefix.
func New(privateKeyHex string) (*Signer, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")

	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, &types.CheckoutError{
			Code:    types.ErrCodeValidationFailed,
			Message: "invalid signing key",
			Err:     err,
		}
	}

	return &Signer{
		key:       key,
		address:   crypto.PubkeyToAddress(key.PublicKey),
		submitted: make(map[string]string),
	}, nil
}

// Address returns the payer address derived from the signing key.
func (s *Signer) Address() string {
	return s.address.Hex()
}

// SignAndSubmit checks the order's preconditions, signs its prepared
// transaction, submits it to the order's settlement chain and waits for the
// receipt. Submission and confirmation failures are never retried here:
// resubmitting a half-sent transaction risks a double spend. The caller must
// re-poll for a fresh, never-submitted preparation before trying again.
func (s *Signer) SignAndSubmit(ctx context.Context, ord *types.Order) (*Receipt, error) {
	log, rec := s.deps()

	// Preconditions, checked in order before any network call.
	if ord.Payment.Status == types.PaymentStatusInsufficientFunds {
		return nil, &types.CheckoutError{
			Code:    types.ErrCodeInsufficientFunds,
			Message: fmt.Sprintf("payer %s lacks funds for this order", s.Address()),
			Order:   ord,
		}
	}
	if ord.Quote.Status == types.QuoteStatusRequiresPhysicalAddress {
		return nil, &types.CheckoutError{
			Code:    types.ErrCodeAddressRequired,
			Message: "order still requires a physical delivery address",
			Order:   ord,
		}
	}
	prep := ord.Payment.Preparation
	if prep == nil || prep.SerializedTransaction == "" {
		return nil, &types.CheckoutError{
			Code:    types.ErrCodePaymentPayloadMissing,
			Message: "order has no serialized transaction; it is likely not purchasable through this product source",
			Order:   ord,
		}
	}

	// Any other payment status is deliberately tolerated: the upstream
	// status field lags, and the presence of the serialized transaction is
	// the authoritative go signal.

	s.mu.Lock()
	if txHash, ok := s.submitted[ord.OrderID]; ok {
		s.mu.Unlock()
		return nil, &types.CheckoutError{
			Code:    types.ErrCodePaymentAlreadySubmitted,
			Message: fmt.Sprintf("transaction %s already submitted for order %s", txHash, ord.OrderID),
			Order:   ord,
		}
	}
	s.mu.Unlock()

	chain, known := types.ResolveChain(ord.Payment.Method)
	if !known {
		log.Warn("unknown payment method, using default chain", map[string]any{
			"orderId": ord.OrderID,
			"method":  ord.Payment.Method,
			"chain":   chain.String(),
		})
	}
	info, _ := chain.Info()

	dial := s.Dial
	if dial == nil {
		dial = dialEthclient
	}
	backend, err := dial(ctx, info.RPCURL)
	if err != nil {
		return nil, s.submitError(chain, "connecting to chain RPC", err)
	}
	defer backend.Close()

	raw, err := hex.DecodeString(strings.TrimPrefix(prep.SerializedTransaction, "0x"))
	if err != nil {
		return nil, s.submitError(chain, "decoding serialized transaction", err)
	}
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, s.submitError(chain, "decoding serialized transaction", err)
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, s.submitError(chain, "fetching chain id", err)
	}

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, s.submitError(chain, "signing transaction", err)
	}

	s.mu.Lock()
	s.submitted[ord.OrderID] = signed.Hash().Hex()
	s.mu.Unlock()

	start := time.Now()
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return nil, s.submitError(chain, "submitting transaction", err)
	}
	rec.IncCounter("transaction_submitted", map[string]string{"chain": chain.String()})
	log.Info("payment transaction submitted", map[string]any{
		"orderId": ord.OrderID,
		"chain":   chain.String(),
		"txHash":  signed.Hash().Hex(),
	})

	receipt, err := s.waitMined(ctx, backend, signed.Hash())
	if err != nil {
		return nil, s.submitError(chain, "awaiting confirmation", err)
	}
	if receipt.Status == ethtypes.ReceiptStatusFailed {
		return nil, s.submitError(chain, "transaction reverted on chain", nil)
	}
	rec.ObserveLatency("submission", time.Since(start), map[string]string{"chain": chain.String()})

	return &Receipt{
		TxHash:      signed.Hash().Hex(),
		BlockNumber: receipt.BlockNumber,
		Chain:       chain,
	}, nil
}

// waitMined polls for the transaction receipt until it appears or the
// attempt budget runs out. Receipt-not-found and transient RPC errors both
// consume attempts.
func (s *Signer) waitMined(ctx context.Context, backend Backend, txHash common.Hash) (*ethtypes.Receipt, error) {
	attempts := s.ReceiptAttempts
	if attempts <= 0 {
		attempts = defaultReceiptAttempts
	}
	delay := s.ReceiptDelay
	if delay <= 0 {
		delay = defaultReceiptDelay
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		receipt, err := backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		lastErr = err

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("no receipt for %s after %d attempts: %w", txHash.Hex(), attempts, lastErr)
	}
	return nil, fmt.Errorf("no receipt for %s after %d attempts", txHash.Hex(), attempts)
}

func (s *Signer) submitError(chain types.Chain, message string, err error) *types.CheckoutError {
	return &types.CheckoutError{
		Code:    types.ErrCodeTransactionSubmitFailed,
		Message: fmt.Sprintf("%s on %s", message, chain),
		Err:     err,
	}
}

func (s *Signer) deps() (logger.Logger, metrics.Recorder) {
	var log logger.Logger = s.Logger
	if log == nil {
		log = logger.NoopLogger{}
	}
	var rec metrics.Recorder = s.Metrics
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return log, rec
}
