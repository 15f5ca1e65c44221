package shared

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// currencyCodeLength is the length of an ISO currency code.
	currencyCodeLength = 3
	// pairSeparators are the separators accepted between the base and quote of a symbol.
	pairSeparators = "/-_.:"
)

// ErrInvalidSymbol is returned when a symbol cannot be mapped to a currency pair.
var ErrInvalidSymbol = errors.New("invalid symbol")

// Pair represents the base and quote currencies of an instrument.
type Pair struct {
	Base  string
	Quote string
}

// String stringifies the provided pair.
func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// IsValid asserts the pair has both a base and a quote.
func (p Pair) IsValid() bool {
	return p.Base != "" && p.Quote != ""
}

// isASCIILetter asserts the provided rune is an ascii letter.
func isASCIILetter(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
}

// isAlpha asserts the provided string is made up of ascii letters only.
func isAlpha(s string) bool {
	for _, r := range s {
		if !isASCIILetter(r) {
			return false
		}
	}

	return s != ""
}

// ParseSymbol maps a display symbol (e.g. "EUR/USD" or "EURUSD") to the currency pair
// expected by the data provider.
func ParseSymbol(display string) (Pair, error) {
	compact := strings.Join(strings.Fields(display), "")

	parts := strings.FieldsFunc(compact, func(r rune) bool {
		return strings.ContainsRune(pairSeparators, r)
	})
	if len(parts) == 2 && len(parts[0]) >= currencyCodeLength && len(parts[1]) >= currencyCodeLength &&
		isAlpha(parts[0]) && isAlpha(parts[1]) {
		return Pair{
			Base:  strings.ToUpper(parts[0]),
			Quote: strings.ToUpper(parts[1]),
		}, nil
	}

	// Fall back to fixed width codes for compact symbols like "EURUSD".
	letters := strings.Map(func(r rune) rune {
		if isASCIILetter(r) {
			return r
		}
		return -1
	}, compact)
	if len(letters) < currencyCodeLength*2 {
		return Pair{}, fmt.Errorf("%w: %q has fewer than %d letters", ErrInvalidSymbol,
			display, currencyCodeLength*2)
	}

	letters = strings.ToUpper(letters)

	return Pair{
		Base:  letters[:currencyCodeLength],
		Quote: letters[currencyCodeLength : currencyCodeLength*2],
	}, nil
}
