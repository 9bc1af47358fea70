package tellergo

import (
	"errors"
	"fmt"
)

var (
	ErrInternalServer       = errors.New("internal server error")
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrInsufficientFunds    = errors.New("insufficient balance")
	ErrAccountLocked        = errors.New("account is locked, please contact support")
	ErrAuthFailed           = errors.New("authentication failed")
	ErrSelfTransfer         = errors.New("cannot transfer to the same account")
	ErrNumberSpaceExhausted = errors.New("could not allocate a unique account number")
	ErrNoSnapshot           = errors.New("no snapshot found")
)

type ErrBadRequest struct {
	Fields map[string]string `json:"fields"`
}

func (e ErrBadRequest) Error() string {
	return fmt.Sprintf("missing/invalid params: %v", e.Fields)
}

type ErrNotFound struct {
	Number string `json:"number"`
}

func (e ErrNotFound) Error() string {
	if e.Number == "" {
		return "account not found"
	}
	return fmt.Sprintf("account %s not found", e.Number)
}

// ErrWrongPIN is returned by a failed PIN check. Once no attempts remain the
// account has been locked and the error also matches ErrAccountLocked.
type ErrWrongPIN struct {
	Remaining int `json:"remaining"`
}

func (e ErrWrongPIN) Error() string {
	if e.Remaining <= 0 {
		return "too many failed attempts, account locked"
	}
	return fmt.Sprintf("incorrect PIN, %d attempts remaining", e.Remaining)
}

func (e ErrWrongPIN) Is(target error) bool {
	switch target {
	case ErrAuthFailed:
		return true
	case ErrAccountLocked:
		return e.Remaining <= 0
	}
	return false
}

// ErrPersistence reports a snapshot load or save failure. It is never fatal.
type ErrPersistence struct {
	Op  string
	Err error
}

func (e ErrPersistence) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e ErrPersistence) Unwrap() error {
	return e.Err
}
