// Package invoice defines the invoice record a payee submits and a payer
// accepts, plus the persistence contract backends implement for it.
package invoice

import (
	"time"

	"github.com/xraph/escrow/types"
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Snip20 references a token contract. Accepted on the wire, never settled.
type Snip20 struct {
	Address string `json:"address"`
	Hash    string `json:"hash"`
}

// Token identifies the settlement token of an invoice.
type Token struct {
	Native string  `json:"native,omitempty"`
	Snip20 *Snip20 `json:"snip20,omitempty"`
}

// NativeToken returns a Token settling in the chain-native denom.
func NativeToken(denom string) Token { return Token{Native: denom} }

// IsNative reports whether the token is a plain native denomination.
func (t Token) IsNative() bool { return t.Native != "" && t.Snip20 == nil }

// Denom returns the native denomination, or "" for contract tokens.
func (t Token) Denom() string {
	if !t.IsNative() {
		return ""
	}
	return t.Native
}

// Invoice is a payee's request for payment.
type Invoice struct {
	types.Entity

	ID              uint64       `json:"id"`
	Purpose         string       `json:"purpose"`
	Amount          types.Amount `json:"amount"`
	AdminCharge     types.Amount `json:"admin_charge"`
	CustomerCharge  types.Amount `json:"customer_charge"`
	Payer           string       `json:"payer"`
	Owner           string       `json:"owner"`
	Days            uint64       `json:"days"`
	RecurrentTime   uint64       `json:"recurrent_time"`
	Token           Token        `json:"token"`
	Status          Status       `json:"status"`
	CyclesWithdrawn uint64       `json:"cycles_withdrawn"`
	AcceptedAt      *time.Time   `json:"accepted_at,omitempty"`
}

// RemainingCycles returns the number of cycles not yet withdrawn.
func (inv *Invoice) RemainingCycles() uint64 {
	if inv.CyclesWithdrawn >= inv.RecurrentTime {
		return 0
	}
	return inv.RecurrentTime - inv.CyclesWithdrawn
}

// Clone returns a deep copy.
func (inv *Invoice) Clone() *Invoice {
	c := *inv
	if inv.Token.Snip20 != nil {
		s := *inv.Token.Snip20
		c.Token.Snip20 = &s
	}
	if inv.AcceptedAt != nil {
		t := *inv.AcceptedAt
		c.AcceptedAt = &t
	}
	return &c
}
