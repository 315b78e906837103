package escrow

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/xraph/escrow/invoice"
	"github.com/xraph/escrow/types"
)

// Legacy wire names still accepted by the decoder.
const (
	legacyUpdateAdmin = "admin_update_amin"
	legacyAdminWallet = "admim_wallet"
)

// submitInvoiceMsg is the wire form of SubmitInvoice. recurrent_time may be
// omitted and then defaults to a single cycle.
type submitInvoiceMsg struct {
	Purpose        string        `json:"purpose"`
	Amount         types.Amount  `json:"amount"`
	AdminCharge    types.Amount  `json:"admin_charge"`
	CustomerCharge types.Amount  `json:"customer_charge"`
	Payer          string        `json:"payer"`
	Days           uint64        `json:"days"`
	RecurrentTime  *uint64       `json:"recurrent_time"`
	Token          invoice.Token `json:"token"`
}

type updateAdminMsg struct {
	NewAdmin string `json:"new_admin"`
	Legacy   string `json:"newAdmin"`
}

// DecodeOperation parses a single-key JSON envelope such as
// {"accept_invoice": {"id": 1}} into an Operation.
func DecodeOperation(data []byte) (Operation, error) {
	name, body, err := envelope(data)
	if err != nil {
		return nil, err
	}

	switch name {
	case OpSubmitInvoice:
		var m submitInvoiceMsg
		if err := strict(body, &m); err != nil {
			return nil, msgError(name, err)
		}
		recurrent := uint64(1)
		if m.RecurrentTime != nil {
			recurrent = *m.RecurrentTime
		}
		return SubmitInvoice{
			Purpose:        m.Purpose,
			Amount:         m.Amount,
			AdminCharge:    m.AdminCharge,
			CustomerCharge: m.CustomerCharge,
			Payer:          m.Payer,
			Days:           m.Days,
			RecurrentTime:  recurrent,
			Token:          m.Token,
		}, nil
	case OpAcceptInvoice:
		var o AcceptInvoice
		if err := strict(body, &o); err != nil {
			return nil, msgError(name, err)
		}
		return o, nil
	case OpCancelPayment:
		var o CancelPayment
		if err := strict(body, &o); err != nil {
			return nil, msgError(name, err)
		}
		return o, nil
	case OpWithdrawPayment:
		var o WithdrawPayment
		if err := strict(body, &o); err != nil {
			return nil, msgError(name, err)
		}
		return o, nil
	case OpUpdateAdmin, legacyUpdateAdmin:
		var m updateAdminMsg
		if err := strict(body, &m); err != nil {
			return nil, msgError(name, err)
		}
		if m.NewAdmin == "" {
			m.NewAdmin = m.Legacy
		}
		return UpdateAdmin{NewAdmin: m.NewAdmin}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
}

// EncodeOperation renders op in the envelope DecodeOperation reads.
func EncodeOperation(op Operation) ([]byte, error) {
	op = normalize(op)
	if op == nil {
		return nil, ErrUnknownOperation
	}
	return json.Marshal(map[string]Operation{op.Name(): op})
}

// DecodeQuery parses a single-key JSON envelope such as
// {"paginated_invoice": {"owner": "...", "page": 0, "page_size": 10}}.
func DecodeQuery(data []byte) (Query, error) {
	name, body, err := envelope(data)
	if err != nil {
		return nil, err
	}

	var q Query
	switch name {
	case QuerySingleInvoice:
		var v SingleInvoice
		err = strict(body, &v)
		q = v
	case QueryPaginatedInvoice:
		var v PaginatedInvoice
		err = strict(body, &v)
		q = v
	case QueryNumberOfInvoice:
		var v NumberOfInvoice
		err = strict(body, &v)
		q = v
	case QuerySingleContract:
		var v SingleContract
		err = strict(body, &v)
		q = v
	case QueryPaginatedContract:
		var v PaginatedContract
		err = strict(body, &v)
		q = v
	case QueryNumberOfContract:
		var v NumberOfContract
		err = strict(body, &v)
		q = v
	case QueryAdminWallet, legacyAdminWallet:
		var v AdminWallet
		err = strict(body, &v)
		q = v
	case QueryBalance:
		var v BalanceOf
		err = strict(body, &v)
		q = v
	case QueryTransfers:
		var v InvoiceTransfers
		err = strict(body, &v)
		q = v
	default:
		return nil, fmt.Errorf("%w: unknown query %q", ErrInvalidInput, name)
	}
	if err != nil {
		return nil, msgError(name, err)
	}
	return q, nil
}

// envelope splits {"name": {...}} into its single key and body.
func envelope(data []byte) (string, json.RawMessage, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if len(env) != 1 {
		return "", nil, fmt.Errorf("%w: message must have exactly one key, got %d", ErrInvalidInput, len(env))
	}
	for name, body := range env {
		return name, body, nil
	}
	return "", nil, ErrInvalidInput
}

func strict(body json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(body)) == 0 || bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func msgError(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: decode %s: %w", ErrInvalidInput, name, err)
}
