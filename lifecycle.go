package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/contract"
	"github.com/xraph/escrow/fee"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/invoice"
	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/types"
)

// ──────────────────────────────────────────────────
// submit_invoice
// ──────────────────────────────────────────────────

func (e *Escrow) submitInvoice(ctx context.Context, tx store.Tx, caller Caller, o SubmitInvoice, now time.Time, res *Result) (notifier, error) {
	if err := e.validateAddress("caller", caller.Address); err != nil {
		return nil, err
	}
	if err := e.validateStruct(o); err != nil {
		return nil, err
	}
	if o.Payer == caller.Address {
		return nil, ValidationError{Field: "payer", Message: "must differ from the submitter"}
	}
	if !o.Token.IsNative() {
		return nil, ErrUnsupportedToken
	}
	if err := e.validateDenom(o.Token.Native); err != nil {
		return nil, err
	}

	sched := fee.Schedule{Days: o.Days, Cycles: o.RecurrentTime, Unit: e.cycleUnit}
	if err := sched.Validate(); err != nil {
		return nil, err
	}
	if _, _, err := fee.Split(o.Amount, o.AdminCharge, o.CustomerCharge); err != nil {
		if errors.Is(err, fee.ErrChargesExceedAmount) {
			return nil, ErrChargesExceedAmount
		}
		return nil, err
	}
	if _, err := fee.Required(o.Amount, o.CustomerCharge); err != nil {
		return nil, err
	}

	invoiceID, err := tx.NextID(ctx, store.CounterInvoices)
	if err != nil {
		return nil, err
	}

	inv := &invoice.Invoice{
		Entity:         types.NewEntityAt(now),
		ID:             invoiceID,
		Purpose:        o.Purpose,
		Amount:         o.Amount,
		AdminCharge:    o.AdminCharge,
		CustomerCharge: o.CustomerCharge,
		Payer:          o.Payer,
		Owner:          caller.Address,
		Days:           o.Days,
		RecurrentTime:  o.RecurrentTime,
		Token:          invoice.NativeToken(o.Token.Native),
		Status:         invoice.StatusPending,
	}
	if err := tx.PutInvoice(ctx, inv); err != nil {
		return nil, err
	}
	if err := tx.IndexAppend(ctx, store.IndexOwnerInvoices, inv.Owner, inv.ID); err != nil {
		return nil, err
	}
	res.InvoiceID = inv.ID

	return func(ctx context.Context) {
		e.logger.Debug("invoice submitted",
			"invoice_id", inv.ID,
			"owner", inv.Owner,
			"payer", inv.Payer,
			"amount", inv.Amount.String(),
			"denom", inv.Token.Native,
			"recurrent_time", inv.RecurrentTime,
		)
		e.plugins.EmitInvoiceSubmitted(ctx, inv)
	}, nil
}

// ──────────────────────────────────────────────────
// accept_invoice
// ──────────────────────────────────────────────────

func (e *Escrow) acceptInvoice(ctx context.Context, tx store.Tx, caller Caller, o AcceptInvoice, now time.Time, res *Result) (notifier, error) {
	inv, err := tx.GetInvoice(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if caller.Address != inv.Payer {
		return nil, ErrWrongPayer
	}
	if inv.Status != invoice.StatusPending {
		return nil, fmt.Errorf("%w: invoice is %s", ErrInvalidState, inv.Status)
	}

	admin, err := tx.GetAdmin(ctx)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrNotInstantiated
		}
		return nil, err
	}

	denom := inv.Token.Denom()
	if denom == "" {
		return nil, ErrUnsupportedToken
	}
	required, err := fee.Required(inv.Amount, inv.CustomerCharge)
	if err != nil {
		return nil, err
	}
	attached, err := caller.Funds.AmountOf(denom)
	if err != nil {
		return nil, err
	}
	if attached < required {
		return nil, fmt.Errorf("%w: attached %s, required %s",
			ErrInsufficientFunds, types.NewCoin(denom, attached), types.NewCoin(denom, required))
	}

	adminShare, payeeShare, err := fee.Split(inv.Amount, inv.AdminCharge, inv.CustomerCharge)
	if err != nil {
		return nil, err
	}
	held, err := payeeShare.Add(inv.CustomerCharge)
	if err != nil {
		return nil, err
	}
	firstDue, err := e.scheduleOf(inv).DueAt(now, 0)
	if err != nil {
		return nil, err
	}

	acceptedAt := now
	inv.Status = invoice.StatusAccepted
	inv.AcceptedAt = &acceptedAt
	inv.TouchAt(now)

	c := &contract.Contract{
		Entity:           types.NewEntityAt(now),
		ID:               inv.ID,
		InvoiceID:        inv.ID,
		Payer:            inv.Payer,
		Payee:            inv.Owner,
		Denom:            denom,
		TotalCycles:      inv.RecurrentTime,
		RemainingCycles:  inv.RemainingCycles(),
		NextWithdrawalAt: firstDue,
		EscrowBalance:    held,
		Status:           contract.StatusActive,
	}

	if err := tx.PutInvoice(ctx, inv); err != nil {
		return nil, err
	}
	if err := tx.PutContract(ctx, c); err != nil {
		return nil, err
	}
	if err := tx.IndexAppend(ctx, store.IndexPayerContracts, c.Payer, c.ID); err != nil {
		return nil, err
	}

	if !adminShare.IsZero() {
		if err := e.credit(ctx, tx, res, now, inv.ID, account.KindAdminFee, admin, types.NewCoin(denom, adminShare)); err != nil {
			return nil, err
		}
	}
	if excess := attached - required; !excess.IsZero() {
		if err := e.credit(ctx, tx, res, now, inv.ID, account.KindRefund, inv.Payer, types.NewCoin(denom, excess)); err != nil {
			return nil, err
		}
	}
	for _, coin := range caller.Funds.Without(denom) {
		if err := e.credit(ctx, tx, res, now, inv.ID, account.KindRefund, inv.Payer, coin); err != nil {
			return nil, err
		}
	}

	return func(ctx context.Context) {
		e.logger.Debug("invoice accepted",
			"invoice_id", inv.ID,
			"payer", inv.Payer,
			"admin_share", adminShare.String(),
			"escrow_balance", held.String(),
			"next_withdrawal_at", firstDue,
		)
		e.plugins.EmitInvoiceAccepted(ctx, inv, c)
	}, nil
}

// ──────────────────────────────────────────────────
// cancel_payment
// ──────────────────────────────────────────────────

func (e *Escrow) cancelPayment(ctx context.Context, tx store.Tx, caller Caller, o CancelPayment, now time.Time, res *Result) (notifier, error) {
	inv, err := tx.GetInvoice(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if caller.Address != inv.Owner && caller.Address != inv.Payer {
		return nil, ErrUnauthorized
	}

	switch inv.Status {
	case invoice.StatusPending:
	case invoice.StatusAccepted:
		if inv.CyclesWithdrawn > 0 {
			return nil, fmt.Errorf("%w: %d cycles already withdrawn", ErrInvalidState, inv.CyclesWithdrawn)
		}
	default:
		return nil, fmt.Errorf("%w: invoice is %s", ErrInvalidState, inv.Status)
	}

	if inv.Status == invoice.StatusAccepted {
		c, err := e.contractOf(ctx, tx, inv)
		if err != nil {
			return nil, err
		}
		if !c.EscrowBalance.IsZero() {
			refund := types.NewCoin(c.Denom, c.EscrowBalance)
			if err := e.credit(ctx, tx, res, now, inv.ID, account.KindRefund, inv.Payer, refund); err != nil {
				return nil, err
			}
		}
		c.EscrowBalance = 0
		c.Status = contract.StatusCancelled
		c.TouchAt(now)
		if err := tx.PutContract(ctx, c); err != nil {
			return nil, err
		}
	}

	inv.Status = invoice.StatusCancelled
	inv.TouchAt(now)
	if err := tx.PutInvoice(ctx, inv); err != nil {
		return nil, err
	}

	return func(ctx context.Context) {
		e.logger.Debug("payment cancelled",
			"invoice_id", inv.ID,
			"caller", caller.Address,
			"refunds", len(res.Transfers),
		)
		e.plugins.EmitPaymentCancelled(ctx, inv, transfersOf(res, account.KindRefund))
	}, nil
}

// ──────────────────────────────────────────────────
// withdraw_payment
// ──────────────────────────────────────────────────

func (e *Escrow) withdrawPayment(ctx context.Context, tx store.Tx, caller Caller, o WithdrawPayment, now time.Time, res *Result) (notifier, error) {
	inv, err := tx.GetInvoice(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if caller.Address != inv.Owner {
		return nil, ErrUnauthorized
	}
	if inv.Status != invoice.StatusAccepted {
		return nil, fmt.Errorf("%w: invoice is %s", ErrInvalidState, inv.Status)
	}
	if inv.AcceptedAt == nil || inv.CyclesWithdrawn >= inv.RecurrentTime {
		return nil, fmt.Errorf("%w: invoice %d has an inconsistent schedule", ErrStoreCorrupt, inv.ID)
	}

	c, err := e.contractOf(ctx, tx, inv)
	if err != nil {
		return nil, err
	}
	if c.Status != contract.StatusActive {
		return nil, fmt.Errorf("%w: contract %d is %s for an accepted invoice", ErrStoreCorrupt, c.ID, c.Status)
	}
	if now.Before(c.NextWithdrawalAt) {
		return nil, fmt.Errorf("%w: next cycle matures at %s", ErrNotYetDue, c.NextWithdrawalAt.Format(time.RFC3339))
	}

	_, payeeShare, err := fee.Split(inv.Amount, inv.AdminCharge, inv.CustomerCharge)
	if err != nil {
		return nil, err
	}
	amount, err := fee.CycleAmount(payeeShare, inv.RecurrentTime, inv.CyclesWithdrawn)
	if err != nil {
		return nil, err
	}
	if c.EscrowBalance, err = c.EscrowBalance.Sub(amount); err != nil {
		return nil, fmt.Errorf("%w: escrow of contract %d below cycle amount %s", ErrStoreCorrupt, c.ID, amount)
	}
	if err := e.credit(ctx, tx, res, now, inv.ID, account.KindRelease, inv.Owner, types.NewCoin(c.Denom, amount)); err != nil {
		return nil, err
	}
	release := res.Transfers[len(res.Transfers)-1]

	inv.CyclesWithdrawn++
	c.RemainingCycles = inv.RemainingCycles()
	completed := c.RemainingCycles == 0

	if completed {
		admin, err := tx.GetAdmin(ctx)
		if err != nil {
			if IsNotFound(err) {
				return nil, fmt.Errorf("%w: admin missing for accepted invoice %d", ErrStoreCorrupt, inv.ID)
			}
			return nil, err
		}
		if !c.EscrowBalance.IsZero() {
			charge := types.NewCoin(c.Denom, c.EscrowBalance)
			if err := e.credit(ctx, tx, res, now, inv.ID, account.KindCustomerCharge, admin, charge); err != nil {
				return nil, err
			}
		}
		c.EscrowBalance = 0
		c.Status = contract.StatusCompleted
		inv.Status = invoice.StatusCompleted
	} else {
		next, err := e.scheduleOf(inv).DueAt(*inv.AcceptedAt, inv.CyclesWithdrawn)
		if err != nil {
			return nil, err
		}
		c.NextWithdrawalAt = next
	}

	inv.TouchAt(now)
	c.TouchAt(now)
	if err := tx.PutInvoice(ctx, inv); err != nil {
		return nil, err
	}
	if err := tx.PutContract(ctx, c); err != nil {
		return nil, err
	}

	return func(ctx context.Context) {
		e.logger.Debug("payment withdrawn",
			"invoice_id", inv.ID,
			"owner", inv.Owner,
			"amount", amount.String(),
			"cycles_withdrawn", inv.CyclesWithdrawn,
			"completed", completed,
		)
		e.plugins.EmitPaymentWithdrawn(ctx, inv, release)
		if completed {
			e.plugins.EmitContractCompleted(ctx, inv, c)
		}
	}, nil
}

// ──────────────────────────────────────────────────
// admin_update_admin
// ──────────────────────────────────────────────────

func (e *Escrow) updateAdmin(ctx context.Context, tx store.Tx, caller Caller, o UpdateAdmin) (notifier, error) {
	if err := e.validateStruct(o); err != nil {
		return nil, err
	}
	current, err := tx.GetAdmin(ctx)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrNotInstantiated
		}
		return nil, err
	}
	if caller.Address != current {
		return nil, ErrUnauthorized
	}
	if err := tx.PutAdmin(ctx, o.NewAdmin); err != nil {
		return nil, err
	}

	return func(ctx context.Context) {
		e.logger.Debug("admin updated", "previous", current, "current", o.NewAdmin)
		e.plugins.EmitAdminUpdated(ctx, current, o.NewAdmin)
	}, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (e *Escrow) scheduleOf(inv *invoice.Invoice) fee.Schedule {
	return fee.Schedule{Days: inv.Days, Cycles: inv.RecurrentTime, Unit: e.cycleUnit}
}

// contractOf loads the contract paired with an accepted invoice.
func (e *Escrow) contractOf(ctx context.Context, tx store.Tx, inv *invoice.Invoice) (*contract.Contract, error) {
	c, err := tx.GetContract(ctx, inv.ID)
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: accepted invoice %d has no contract", ErrStoreCorrupt, inv.ID)
		}
		return nil, err
	}
	if c.Payer != inv.Payer || c.Payee != inv.Owner {
		return nil, fmt.Errorf("%w: contract %d does not match its invoice", ErrStoreCorrupt, c.ID)
	}
	return c, nil
}

// credit adds coin to the recipient balance and journals the transfer.
func (e *Escrow) credit(ctx context.Context, tx store.Tx, res *Result, now time.Time, invoiceID uint64, kind account.Kind, recipient string, coin types.Coin) error {
	balance, err := tx.GetBalance(ctx, recipient, coin.Denom)
	if err != nil {
		return err
	}
	if balance, err = balance.Add(coin.Amount); err != nil {
		return err
	}
	if err := tx.PutBalance(ctx, recipient, coin.Denom, balance); err != nil {
		return err
	}

	seq, err := tx.NextID(ctx, store.CounterTransfers)
	if err != nil {
		return err
	}
	t := &account.Transfer{
		ID:          id.NewTransferID(),
		Seq:         seq,
		OperationID: res.OperationID,
		InvoiceID:   invoiceID,
		Kind:        kind,
		Recipient:   recipient,
		Coin:        coin,
		CreatedAt:   now,
	}
	if err := tx.AppendTransfer(ctx, t); err != nil {
		return err
	}
	res.Transfers = append(res.Transfers, t)
	return nil
}
