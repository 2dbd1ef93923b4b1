package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no censored words have been found")

	ErrValidation   = fmt.Errorf("invalid event payload")
	ErrNotFound     = fmt.Errorf("participant or message not found")
	ErrUnauthorized = fmt.Errorf("caller is not the required party")

	ErrBlocked          = fmt.Errorf("sender is blocked by the receiver")
	ErrAlreadyBlocked   = fmt.Errorf("target is already blocked")
	ErrNotBlocked       = fmt.Errorf("target is not blocked")
	ErrAlreadyRelated   = fmt.Errorf("accounts are already friends or a request is pending")
	ErrRequestsDisabled = fmt.Errorf("target does not accept friend requests")

	ErrStorage = fmt.Errorf("storage failure")
)
