// Package fee computes how an invoice total is divided between the admin
// and the payee, and how the payee share is released across recurring
// withdrawal cycles. Everything here is pure and uses checked arithmetic.
package fee

import (
	"errors"

	"github.com/xraph/escrow/types"
)

var (
	// ErrInvalidSchedule is returned for a zero cycle count, a zero cycle
	// length, or a cycle index outside the schedule.
	ErrInvalidSchedule = errors.New("escrow: invalid schedule")

	// ErrChargesExceedAmount is returned when admin and customer charges
	// together exceed the invoice amount.
	ErrChargesExceedAmount = errors.New("escrow: charges exceed invoice amount")
)

// Split divides an invoice total. The admin share is the admin charge; the
// payee share is whatever remains of the total. The customer charge is paid
// on top of the total and is not part of either share.
func Split(total, adminCharge, customerCharge types.Amount) (adminShare, payeeShare types.Amount, err error) {
	charges, err := adminCharge.Add(customerCharge)
	if err != nil {
		return 0, 0, err
	}
	if charges > total {
		return 0, 0, ErrChargesExceedAmount
	}
	payeeShare, err = total.Sub(adminCharge)
	if err != nil {
		return 0, 0, err
	}
	return adminCharge, payeeShare, nil
}

// Required returns the funds a payer must attach to accept an invoice.
func Required(amount, customerCharge types.Amount) (types.Amount, error) {
	return amount.Add(customerCharge)
}

// CycleAmount returns the amount released at cycleIndex (zero-based).
// Every cycle but the last releases floor(payeeShare/recurrentTime); the
// last one also carries the remainder, so the cycles sum to payeeShare.
func CycleAmount(payeeShare types.Amount, recurrentTime, cycleIndex uint64) (types.Amount, error) {
	if recurrentTime == 0 || cycleIndex >= recurrentTime {
		return 0, ErrInvalidSchedule
	}
	base, rem := payeeShare.QuoRem(recurrentTime)
	if cycleIndex == recurrentTime-1 {
		return base.Add(rem)
	}
	return base, nil
}
