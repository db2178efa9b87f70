package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidState        = errors.New("invalid state transition")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrVerificationPending = errors.New("transaction verification pending")
	ErrVerificationFailed  = errors.New("transaction verification failed")
	// ErrDuelFull is the join-race loser's error. It is a flavor of
	// ErrInvalidState so callers can match either.
	ErrDuelFull     = fmt.Errorf("duel already has two players: %w", ErrInvalidState)
	ErrPayoutExists = errors.New("payout already recorded")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrLockHeld     = errors.New("lock already held")
)

// DecodeErrorKind classifies account decode failures.
type DecodeErrorKind string

const (
	TruncatedData     DecodeErrorKind = "truncated data"
	BadDiscriminator  DecodeErrorKind = "bad discriminator"
	UnknownStatusCode DecodeErrorKind = "unknown status code"
)

// DecodeError reports why raw account bytes could not be decoded into a
// typed record. Decoding fails closed: a partial record is never returned.
type DecodeError struct {
	Account string // "pool" or "duel"
	Kind    DecodeErrorKind
	Detail  string
}

func (e *DecodeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("decode %s: %s: %s", e.Account, e.Kind, e.Detail)
	}
	return fmt.Sprintf("decode %s: %s", e.Account, e.Kind)
}
