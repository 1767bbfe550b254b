package service

import "fmt"

// serviceError сравнимый тип ошибки, работает с errors.Is
type serviceError string

func (e serviceError) Error() string { return string(e) }

var (
	ErrSelfMatch        = serviceError("cannot report a match against yourself")
	ErrUnknownPlayer    = serviceError("player not found")
	ErrTieNotAllowed    = serviceError("matches cannot end in a tie")
	ErrInvalidScore     = serviceError("scores must be non-negative integers")
	ErrInvalidDecision  = serviceError(`decision must be "approve" or "deny"`)
	ErrNotFound         = serviceError("match request not found")
	ErrNotAuthorized    = serviceError("not authorized for this match")
	ErrAlreadyProcessed = serviceError("match already processed")
	ErrStorage          = serviceError("storage failure")
)

// storageError оборачивает сбой хранилища в ErrStorage
func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
