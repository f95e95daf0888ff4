package ledger

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/MesaPay/hub/internal/money"
)

// Block is one entry of a ledger's append-only transfer log. The body is kept
// generic because ledgers disagree on exact field layouts; DecodeTransfer
// extracts the transfer facts the hub cares about.
type Block struct {
	ID   uint64         `json:"id"`
	Body map[string]any `json:"block"`
}

// DecodeTransfer extracts a TransferTxn from a block body. It accepts both
// the "btype": "1xfer" block tag and the legacy "op": "xfer" transaction tag.
// Everything in the block is untrusted; each field is validated before use.
func DecodeTransfer(b Block, tokenID TokenID, tokenDecimals uint8) (TransferTxn, error) {
	if b.Body == nil {
		return TransferTxn{}, fmt.Errorf("ledger: invalid block format")
	}

	btypeIsXfer := false
	if btype, ok := b.Body["btype"].(string); ok {
		btypeIsXfer = btype == "1xfer"
	}

	txRaw, ok := b.Body["tx"]
	if !ok {
		return TransferTxn{}, fmt.Errorf("ledger: no 'tx' field found in block")
	}
	tx, ok := txRaw.(map[string]any)
	if !ok {
		return TransferTxn{}, fmt.Errorf("ledger: invalid 'tx' format")
	}

	opIsXfer := false
	if op, ok := tx["op"].(string); ok {
		opIsXfer = op == "xfer"
	}
	if !btypeIsXfer && !opIsXfer {
		return TransferTxn{}, fmt.Errorf("ledger: block is not a transfer")
	}

	amtRaw, ok := tx["amt"]
	if !ok {
		return TransferTxn{}, fmt.Errorf("ledger: block contains no 'amt' field")
	}
	amt, err := decodeNat(amtRaw)
	if err != nil {
		return TransferTxn{}, fmt.Errorf("ledger: invalid 'amt' field: %w", err)
	}
	qty, err := money.New(amt, tokenDecimals)
	if err != nil {
		return TransferTxn{}, fmt.Errorf("ledger: invalid 'amt' field: %w", err)
	}

	to, err := decodeAccount(tx["to"], true)
	if err != nil {
		return TransferTxn{}, fmt.Errorf("ledger: invalid 'to' field: %w", err)
	}
	from, err := decodeAccount(tx["from"], false)
	if err != nil {
		return TransferTxn{}, fmt.Errorf("ledger: invalid 'from' field: %w", err)
	}

	memoRaw, ok := tx["memo"].(string)
	if !ok {
		return TransferTxn{}, fmt.Errorf("ledger: block contains no 'memo' field")
	}
	var memo Memo
	if err := memo.UnmarshalText([]byte(memoRaw)); err != nil {
		return TransferTxn{}, fmt.Errorf("ledger: invalid 'memo' field: %w", err)
	}

	return TransferTxn{
		From:    from,
		To:      to,
		Qty:     qty,
		TokenID: tokenID,
		Memo:    memo,
	}, nil
}

// decodeNat parses an amount that arrives as a JSON number or decimal string.
func decodeNat(raw any) (*big.Int, error) {
	switch v := raw.(type) {
	case json.Number:
		n, ok := new(big.Int).SetString(v.String(), 10)
		if !ok {
			return nil, fmt.Errorf("not a natural number: %q", v.String())
		}
		return n, nil
	case string:
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("not a natural number: %q", v)
		}
		return n, nil
	case float64:
		if v < 0 || v != float64(uint64(v)) {
			return nil, fmt.Errorf("not a natural number: %v", v)
		}
		return new(big.Int).SetUint64(uint64(v)), nil
	default:
		return nil, fmt.Errorf("unsupported amount type %T", raw)
	}
}

// decodeAccount parses {"owner": "...", "subaccount": "<hex>"}. The
// subaccount is mandatory for recipients and optional for senders.
func decodeAccount(raw any, requireSubaccount bool) (Account, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Account{}, fmt.Errorf("not an account object")
	}

	owner, ok := m["owner"].(string)
	if !ok || owner == "" {
		return Account{}, fmt.Errorf("no owner principal")
	}

	acc := Account{Owner: Principal(owner)}

	subRaw, ok := m["subaccount"].(string)
	if !ok || subRaw == "" {
		if requireSubaccount {
			return Account{}, fmt.Errorf("no subaccount")
		}
		return acc, nil
	}

	sub, err := hex.DecodeString(subRaw)
	if err != nil || len(sub) != 32 {
		return Account{}, fmt.Errorf("invalid subaccount")
	}
	var s Subaccount
	copy(s[:], sub)
	acc.Subaccount = &s

	return acc, nil
}
