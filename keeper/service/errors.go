package service

import (
	"errors"
	"fmt"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/fortuna-labs/keeper/commitment"
	"github.com/fortuna-labs/keeper/hashchain"
)

var (
	ErrKeeperShutDown    = errors.New("the keeper is shutting down")
	ErrDeliveryExhausted = errors.New("reveal delivery exhausted")
)

// ErrorKind enumerates every way a delivery can fail.
type ErrorKind uint8

const (
	KindGasUsageEstimate ErrorKind = iota + 1
	KindGasPriceEstimate
	KindSubmission
	KindConfirmationTimeout
	KindConfirmation
	KindReceipt
	KindGasLimitExceeded
	KindIncorrectRevelation
	KindChainNotFound
	KindLengthMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case KindGasUsageEstimate:
		return "gas_usage_estimate"
	case KindGasPriceEstimate:
		return "gas_price_estimate"
	case KindSubmission:
		return "submission"
	case KindConfirmationTimeout:
		return "confirmation_timeout"
	case KindConfirmation:
		return "confirmation"
	case KindReceipt:
		return "receipt"
	case KindGasLimitExceeded:
		return "gas_limit_exceeded"
	case KindIncorrectRevelation:
		return "incorrect_revelation"
	case KindChainNotFound:
		return "chain_not_found"
	case KindLengthMismatch:
		return "length_mismatch"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Permanent reports whether retrying can never turn this kind of failure
// into a success.
func (k ErrorKind) Permanent() bool {
	switch k {
	case KindGasLimitExceeded, KindIncorrectRevelation, KindChainNotFound, KindLengthMismatch:
		return true
	default:
		return false
	}
}

// TxError is a classified delivery failure. Detail is the transport error
// flattened to a string so the kind set does not depend on the RPC client.
type TxError struct {
	Kind   ErrorKind
	Detail string

	// Tx is the filled transaction, if the attempt got that far
	Tx *ethtypes.Transaction
	// Receipt is set for KindReceipt
	Receipt *ethtypes.Receipt

	// Estimate and Limit are set for KindGasLimitExceeded
	Estimate uint64
	Limit    uint64

	cause error
}

func newTxError(kind ErrorKind, cause error) *TxError {
	e := &TxError{Kind: kind, cause: cause}
	if cause != nil {
		e.Detail = cause.Error()
	}

	return e
}

func (e *TxError) Error() string {
	msg := e.Kind.String()
	switch {
	case e.Kind == KindGasLimitExceeded:
		msg = fmt.Sprintf("%s: estimate %d exceeds limit %d", msg, e.Estimate, e.Limit)
	case e.Detail != "":
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Tx != nil {
		msg = fmt.Sprintf("%s (tx %s, nonce %d)", msg, e.Tx.Hash().Hex(), e.Tx.Nonce())
	}

	return msg
}

func (e *TxError) Unwrap() error {
	return e.cause
}

// permanentError marks an error as not worth retrying regardless of its kind.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// MarkPermanent makes IsPermanent report true for err. Error mappers use it
// to stop a delivery whose failure is known to be final.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	var pe *permanentError
	if errors.As(err, &pe) {
		return true
	}

	var te *TxError
	if errors.As(err, &te) {
		return te.Kind.Permanent()
	}

	return errors.Is(err, commitment.ErrIncorrectRevelation) ||
		errors.Is(err, hashchain.ErrChainNotFound) ||
		errors.Is(err, hashchain.ErrLengthMismatch)
}

func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}

// KindOf returns the kind of err or zero if err is not classified.
func KindOf(err error) ErrorKind {
	var te *TxError
	if errors.As(err, &te) {
		return te.Kind
	}

	switch {
	case errors.Is(err, commitment.ErrIncorrectRevelation):
		return KindIncorrectRevelation
	case errors.Is(err, hashchain.ErrChainNotFound):
		return KindChainNotFound
	case errors.Is(err, hashchain.ErrLengthMismatch):
		return KindLengthMismatch
	default:
		return 0
	}
}

// DeliveryFailure is the terminal outcome of a delivery that was not
// confirmed. It always carries the progress made.
type DeliveryFailure struct {
	NumRetries       uint64
	FeeMultiplierPct uint64
	Duration         time.Duration
	DeadlineExceeded bool
	LastErr          error
}

func (f *DeliveryFailure) Error() string {
	reason := "interrupted"
	switch {
	case f.DeadlineExceeded:
		reason = "deadline exceeded"
	case IsPermanent(f.LastErr):
		reason = "permanent failure"
	}

	return fmt.Sprintf("%s after %d retries in %v (%s, fee multiplier %d%%): %v",
		ErrDeliveryExhausted, f.NumRetries, f.Duration, reason, f.FeeMultiplierPct, f.LastErr)
}

func (f *DeliveryFailure) Unwrap() []error {
	return []error{ErrDeliveryExhausted, f.LastErr}
}

var (
	// ErrRequestFulfilled means the request needs no reveal from the keeper
	// anymore, either because it was fulfilled or because it was never
	// eligible for a callback.
	ErrRequestFulfilled = errors.New("request does not need a reveal")

	ErrRequestInFlight = errors.New("request is already being delivered")
)
