// Package validate normalizes and validates marketplace listing inputs.
// It is pure: no I/O, no clock reads, deterministic outputs.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"stellar-nft-market/internal/domain"
)

// Asset code constraints imposed by the ledger's alphanum4/alphanum12
// asset encoding.
const (
	MaxAssetCodeLen  = 12
	ShortCodeMaxLen  = 4
	MaxPriceDecimals = 7
)

// CodeClass distinguishes the two ledger asset-code encodings.
type CodeClass string

const (
	CodeClassShort CodeClass = "alphanum4"  // 1-4 characters
	CodeClassLong  CodeClass = "alphanum12" // 5-12 characters
)

// Reason codes carried by validation failures.
const (
	ReasonEmpty          = "empty"
	ReasonTooLong        = "too_long"
	ReasonNativeTicker   = "contains_native_ticker"
	ReasonFirstNotLetter = "first_char_not_letter"
	ReasonNotNumeric     = "not_numeric"
	ReasonNotPositive    = "not_positive"
	ReasonTooManyDigits  = "too_many_fractional_digits"
)

// InvalidAssetCodeError reports a rejected asset code.
type InvalidAssetCodeError struct {
	Raw    string
	Reason string
}

func (e *InvalidAssetCodeError) Error() string {
	return fmt.Sprintf("invalid asset code %q: %s", e.Raw, e.Reason)
}

// InvalidPriceError reports a rejected price.
type InvalidPriceError struct {
	Raw    string
	Reason string
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid price %q: %s", e.Raw, e.Reason)
}

// Reason extracts the reason code from a validation error, or "" when
// err is not one.
func Reason(err error) string {
	var codeErr *InvalidAssetCodeError
	if errors.As(err, &codeErr) {
		return codeErr.Reason
	}
	var priceErr *InvalidPriceError
	if errors.As(err, &priceErr) {
		return priceErr.Reason
	}
	return ""
}

// NormalizeAssetCode strips non-alphanumeric characters, uppercases, and
// validates the result against the ledger's asset-code rules. It is
// idempotent: a valid normalized code normalizes to itself.
func NormalizeAssetCode(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		}
	}
	code := b.String()

	if code == "" {
		return "", &InvalidAssetCodeError{Raw: raw, Reason: ReasonEmpty}
	}
	if len(code) > MaxAssetCodeLen {
		return "", &InvalidAssetCodeError{Raw: raw, Reason: ReasonTooLong}
	}
	if strings.Contains(code, domain.NativeTicker) {
		return "", &InvalidAssetCodeError{Raw: raw, Reason: ReasonNativeTicker}
	}
	if code[0] < 'A' || code[0] > 'Z' {
		return "", &InvalidAssetCodeError{Raw: raw, Reason: ReasonFirstNotLetter}
	}
	return code, nil
}

// ClassOf classifies a normalized asset code by encoding length.
func ClassOf(code string) CodeClass {
	if len(code) <= ShortCodeMaxLen {
		return CodeClassShort
	}
	return CodeClassLong
}

// NormalizePrice validates raw as a positive decimal with at most seven
// fractional digits and returns its canonical string form.
//
// Validation happens before any rounding: inputs with more than seven
// fractional digits are rejected outright rather than rounded, so a
// sub-1e-7 price can never silently normalize to "0".
func NormalizePrice(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return "", &InvalidPriceError{Raw: raw, Reason: ReasonNotNumeric}
	}
	if !d.IsPositive() {
		return "", &InvalidPriceError{Raw: raw, Reason: ReasonNotPositive}
	}
	if fractionalDigits(trimmed) > MaxPriceDecimals {
		return "", &InvalidPriceError{Raw: raw, Reason: ReasonTooManyDigits}
	}
	return d.String(), nil
}

// fractionalDigits counts significant digits after the decimal point,
// ignoring trailing zeros ("5.5000000000" still means 5.5).
func fractionalDigits(s string) int {
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		// Exponent notation: defer to the parsed exponent.
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0
		}
		if d.Exponent() >= 0 {
			return 0
		}
		return int(-d.Exponent())
	}
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0
	}
	frac := strings.TrimRight(s[dot+1:], "0")
	return len(frac)
}

// ValidateAuctionWindow checks the timed-auction deadline invariants:
// the end must follow the start and lie in the future at creation time.
func ValidateAuctionWindow(startMillis, endMillis, nowMillis int64) error {
	if endMillis <= startMillis {
		return fmt.Errorf("auction end %d is not after start %d", endMillis, startMillis)
	}
	if endMillis <= nowMillis {
		return fmt.Errorf("auction end %d is not in the future", endMillis)
	}
	return nil
}
