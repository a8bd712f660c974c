package services

import "errors"

var (
	ErrWalletNotFound        = errors.New("wallet not found")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrForbidden             = errors.New("access denied")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrBalanceLimitExceeded  = errors.New("resulting balance exceeds the wallet limit")
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
	ErrSameWalletTransfer    = errors.New("cannot transfer to the same wallet")
	ErrCurrencyMismatch      = errors.New("currency mismatch")
	ErrRecipientRequired     = errors.New("recipient wallet is required for transfers")
	ErrRecipientNotFound     = errors.New("recipient wallet not found")
	ErrUserExists            = errors.New("username or email already exists")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrWalletNumberExhausted = errors.New("could not allocate a unique wallet number")
	ErrTransactionNotPending = errors.New("transaction is no longer pending")
)
