package service

import "errors"

// User-correctable errors returned by the services.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidContract   = errors.New("a contract needs at least 3 items")
	ErrInvalidAmount     = errors.New("invalid amount: must not be negative")
	ErrEmptyStake        = errors.New("nothing staked")
	ErrItemLocked        = errors.New("item is being withdrawn")
	ErrCaseEmpty         = errors.New("case has no droppable items")
	ErrWithdrawBlocked   = errors.New("withdrawals are blocked for this profile")
	ErrNoTradeURL        = errors.New("no valid trade url set")
)
