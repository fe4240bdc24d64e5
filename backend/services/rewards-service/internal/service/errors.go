package service

import (
	"errors"
	"fmt"
)

// Class groups program errors by what went wrong.
type Class string

const (
	ClassAuthorization  Class = "AuthorizationError"
	ClassState          Class = "StateError"
	ClassArithmetic     Class = "ArithmeticError"
	ClassExternalLedger Class = "ExternalLedgerError"
	ClassNotFound       Class = "NotFoundError"
)

// Error is a program failure with a stable numeric code.
type Error struct {
	Code    uint32
	Name    string
	Class   Class
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil && e.Class == ClassExternalLedger {
		return e.cause.Error()
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches program errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) wrap(cause error) *Error {
	out := *e
	out.cause = cause
	return &out
}

var (
	ErrUnauthorized             = &Error{Code: 6000, Name: "Unauthorized", Class: ClassAuthorization, Message: "signer is not authorized for this record"}
	ErrOwnerMismatch            = &Error{Code: 6001, Name: "OwnerMismatch", Class: ClassAuthorization, Message: "token account is not owned by the expected identity"}
	ErrInvalidPlatformAuthority = &Error{Code: 6002, Name: "InvalidPlatformAuthority", Class: ClassAuthorization, Message: "invalid platform authority"}
	ErrAlreadyInitialized       = &Error{Code: 6003, Name: "AlreadyInitialized", Class: ClassState, Message: "platform already initialized"}
	ErrDuplicateRegistration    = &Error{Code: 6004, Name: "DuplicateRegistration", Class: ClassState, Message: "driver already registered"}
	ErrDriverNotActive          = &Error{Code: 6005, Name: "DriverNotActive", Class: ClassState, Message: "driver is not active"}
	ErrNoDelegation             = &Error{Code: 6006, Name: "NoDelegation", Class: ClassState, Message: "no delegation to platform"}
	ErrAccountNotInitialized    = &Error{Code: 6007, Name: "AccountNotInitialized", Class: ClassState, Message: "required record is not initialized"}
	ErrChargerCodeTooLong       = &Error{Code: 6008, Name: "ChargerCodeTooLong", Class: ClassState, Message: "charger code exceeds 16 bytes"}
	ErrArithmeticOverflow       = &Error{Code: 6009, Name: "ArithmeticOverflow", Class: ClassArithmetic, Message: "arithmetic overflow"}
	ErrExternalLedger           = &Error{Code: 6010, Name: "ExternalLedgerError", Class: ClassExternalLedger, Message: "asset ledger rejected the instruction"}

	// Reserved; no operation returns these.
	ErrDriverNotFound  = &Error{Code: 6011, Name: "DriverNotFound", Class: ClassNotFound, Message: "driver not found"}
	ErrChargerNotFound = &Error{Code: 6012, Name: "ChargerNotFound", Class: ClassNotFound, Message: "charger not found"}
)

// externalLedger wraps a collaborator failure, keeping its message.
func externalLedger(err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return ErrExternalLedger.wrap(err)
}

// ClassOf returns the class of a program error, or "" for other errors.
func ClassOf(err error) Class {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ""
}
