// Package types provides the value types shared by every escrow package.
package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"math/bits"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrOverflow is returned by every checked arithmetic helper when a result
// does not fit in the unsigned 64-bit amount range.
var ErrOverflow = errors.New("escrow: arithmetic overflow")

// Amount is a token quantity in the smallest indivisible unit.
// All arithmetic is integer-only and checked: nothing ever wraps.
type Amount uint64

var maxAmount = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// ParseAmount parses a base-10 integer string. Fractions, negative numbers
// and values beyond the uint64 range are rejected.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount: empty string")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("amount: parse %q: %w", s, err)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("amount: %q is not an integer", s)
	}
	if d.Sign() < 0 {
		return 0, fmt.Errorf("amount: %q is negative", s)
	}
	if d.GreaterThan(maxAmount) {
		return 0, fmt.Errorf("amount: %q: %w", s, ErrOverflow)
	}
	return Amount(d.BigInt().Uint64()), nil
}

// MustParseAmount is like ParseAmount but panics on error.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Add returns a+b or ErrOverflow.
func (a Amount) Add(b Amount) (Amount, error) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return Amount(sum), nil
}

// Sub returns a-b or ErrOverflow when b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	diff, borrow := bits.Sub64(uint64(a), uint64(b), 0)
	if borrow != 0 {
		return 0, ErrOverflow
	}
	return Amount(diff), nil
}

// Mul returns a*n or ErrOverflow.
func (a Amount) Mul(n uint64) (Amount, error) {
	hi, lo := bits.Mul64(uint64(a), n)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return Amount(lo), nil
}

// QuoRem returns the floor quotient and remainder of a/n.
// Panics if n is zero.
func (a Amount) QuoRem(n uint64) (Amount, Amount) {
	if n == 0 {
		panic("amount: division by zero")
	}
	return Amount(uint64(a) / n), Amount(uint64(a) % n)
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a == 0 }

// String returns the base-10 representation.
func (a Amount) String() string { return strconv.FormatUint(uint64(a), 10) }

// Display renders the amount in major units given the token's decimal
// exponent, e.g. Amount(1500000).Display(6) == "1.500000".
func (a Amount) Display(exp int32) string {
	if exp <= 0 {
		return a.String()
	}
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(a)), -exp)
	return d.StringFixed(exp)
}

// MarshalJSON encodes the amount as a JSON string so that values above
// 2^53 survive JavaScript clients.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ──────────────────────────────────────────────────
// Coins
// ──────────────────────────────────────────────────

// Coin is an amount of a single native token denomination.
type Coin struct {
	Denom  string `json:"denom"`
	Amount Amount `json:"amount"`
}

// NewCoin creates a Coin.
func NewCoin(denom string, amount Amount) Coin {
	return Coin{Denom: denom, Amount: amount}
}

// String returns e.g. "889uscrt".
func (c Coin) String() string { return c.Amount.String() + c.Denom }

// Coins is a set of funds attached to an operation.
type Coins []Coin

// AmountOf returns the total attached in denom.
func (cs Coins) AmountOf(denom string) (Amount, error) {
	var total Amount
	for _, c := range cs {
		if c.Denom != denom {
			continue
		}
		var err error
		if total, err = total.Add(c.Amount); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Without returns the coins whose denomination differs from denom,
// skipping zero amounts.
func (cs Coins) Without(denom string) Coins {
	var out Coins
	for _, c := range cs {
		if c.Denom == denom || c.Amount.IsZero() {
			continue
		}
		out = append(out, c)
	}
	return out
}
