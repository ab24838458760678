package ledger

import "errors"

var (
	// ErrInsufficientFunds is returned when a balance adjustment would
	// drive a user's cash below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTimestamp is returned when a ledger entry already exists
	// for the same (user, timestamp) pair.
	ErrDuplicateTimestamp = errors.New("duplicate transaction timestamp")

	// ErrInsufficientShares is returned when a sell commit would drive
	// the user's net position for the symbol below zero.
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrUserNotFound is returned when the user id has no account row.
	ErrUserNotFound = errors.New("user not found")
)
