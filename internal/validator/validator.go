package validator

import (
	"errors"
	"regexp"
	"strings"

	"ewallet/internal/models"
	"ewallet/internal/money"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidEmail             = errors.New("invalid email")
	ErrInvalidUsername          = errors.New("username must be 3-50 letters, digits or underscores")
	ErrInvalidPassword          = errors.New("password must be at least 8 characters")
	ErrInvalidCurrency          = errors.New("currency must be a 3-letter code")
	ErrInvalidAmount            = errors.New("amount must be a non-negative number")
	ErrInvalidTransactionType   = errors.New("type must be DEPOSIT, WITHDRAWAL or TRANSFER")
	ErrInvalidTransactionStatus = errors.New("status must be PENDING, COMPLETED or FAILED")
	ErrInvalidWalletNumber      = errors.New("invalid wallet number")
	ErrInvalidID                = errors.New("invalid identifier")
)

var (
	emailRegex        = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernameRegex     = regexp.MustCompile(`^[a-zA-Z0-9_]{3,50}$`)
	currencyRegex     = regexp.MustCompile(`^[A-Z]{3}$`)
	walletNumberRegex = regexp.MustCompile(`^EW[0-9]{8}$`)
)

const maxEmailLength = 100

func ValidateEmail(email string) error {
	if len(email) > maxEmailLength || !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrInvalidPassword
	}
	return nil
}

// ValidateCurrency returns the upper-cased code.
func ValidateCurrency(code string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if !currencyRegex.MatchString(normalized) {
		return "", ErrInvalidCurrency
	}
	return normalized, nil
}

// ValidateAmount rejects NaN, infinities and negative values and rounds the
// rest to two decimal places.
func ValidateAmount(value float64) (decimal.Decimal, error) {
	amount, err := money.FromFloat(value)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return NormalizeAmount(amount)
}

func NormalizeAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() || money.CheckRange(amount) != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return money.Round(amount), nil
}

func ValidateTransactionType(raw string) (models.TransactionType, error) {
	txType := models.TransactionType(strings.ToUpper(strings.TrimSpace(raw)))
	if !txType.Valid() {
		return "", ErrInvalidTransactionType
	}
	return txType, nil
}

func ValidateWalletNumber(number string) error {
	if !walletNumberRegex.MatchString(number) {
		return ErrInvalidWalletNumber
	}
	return nil
}

// IsValidationError reports whether err came from one of the validators above.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidEmail, ErrInvalidUsername, ErrInvalidPassword, ErrInvalidCurrency,
		ErrInvalidAmount, ErrInvalidTransactionType, ErrInvalidTransactionStatus,
		ErrInvalidWalletNumber, ErrInvalidID,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
