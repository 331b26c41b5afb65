package settlement

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPaymentNotSettled   = errors.New("payment not settled")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrBalanceUnknown      = errors.New("balance unknown")
)

// InsufficientBalanceError carries the exact shortfall so handlers can show
// the talent how much they can actually withdraw.
type InsufficientBalanceError struct {
	Requested int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: requested %d, available %d (short %d)",
		e.Requested, e.Available, e.Requested-e.Available)
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// InvalidTransitionError names the disallowed move.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition: %s -> %s", e.Entity, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
