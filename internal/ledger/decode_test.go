package ledger

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
)

func transferBody(t *testing.T, overrides map[string]any) map[string]any {
	t.Helper()

	sub := strings.Repeat("ab", 32)
	memo := strings.Repeat("cd", 32)

	tx := map[string]any{
		"op":   "xfer",
		"amt":  json.Number("500000000"),
		"memo": memo,
		"from": map[string]any{"owner": "buyer"},
		"to":   map[string]any{"owner": "hub", "subaccount": sub},
	}
	for k, v := range overrides {
		if v == nil {
			delete(tx, k)
			continue
		}
		tx[k] = v
	}
	return map[string]any{"btype": "1xfer", "tx": tx}
}

func TestDecodeTransfer(t *testing.T) {
	block := Block{ID: 7, Body: transferBody(t, nil)}

	txn, err := DecodeTransfer(block, "token-a", 8)
	if err != nil {
		t.Fatalf("DecodeTransfer: %v", err)
	}

	if txn.From.Owner != "buyer" || txn.To.Owner != "hub" {
		t.Fatalf("accounts = %+v -> %+v", txn.From, txn.To)
	}
	if txn.To.Subaccount == nil {
		t.Fatal("recipient subaccount missing")
	}
	if got := txn.Qty.String(); got != "5.00000000" {
		t.Fatalf("qty = %s, want 5.00000000", got)
	}
	if txn.TokenID != "token-a" {
		t.Fatalf("token id = %s", txn.TokenID)
	}
	wantMemo, _ := hex.DecodeString(strings.Repeat("cd", 32))
	if string(txn.Memo[:]) != string(wantMemo) {
		t.Fatal("memo mismatch")
	}
}

func TestDecodeTransferAmountForms(t *testing.T) {
	cases := []struct {
		name string
		amt  any
		want string
	}{
		{"json number", json.Number("123"), "0.00000123"},
		{"decimal string", "123", "0.00000123"},
		{"float from lax decoder", float64(123), "0.00000123"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			block := Block{Body: transferBody(t, map[string]any{"amt": tc.amt})}
			txn, err := DecodeTransfer(block, "token-a", 8)
			if err != nil {
				t.Fatalf("DecodeTransfer: %v", err)
			}
			if got := txn.Qty.String(); got != tc.want {
				t.Fatalf("qty = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDecodeTransferRejects(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(body map[string]any)
		fragment string
	}{
		{
			name: "not a transfer",
			mutate: func(body map[string]any) {
				body["btype"] = "2approve"
				body["tx"].(map[string]any)["op"] = "approve"
			},
			fragment: "not a transfer",
		},
		{
			name: "missing tx",
			mutate: func(body map[string]any) {
				delete(body, "tx")
			},
			fragment: "no 'tx' field",
		},
		{
			name: "missing amount",
			mutate: func(body map[string]any) {
				delete(body["tx"].(map[string]any), "amt")
			},
			fragment: "no 'amt' field",
		},
		{
			name: "negative float amount",
			mutate: func(body map[string]any) {
				body["tx"].(map[string]any)["amt"] = float64(-5)
			},
			fragment: "'amt'",
		},
		{
			name: "recipient without subaccount",
			mutate: func(body map[string]any) {
				body["tx"].(map[string]any)["to"] = map[string]any{"owner": "hub"}
			},
			fragment: "'to'",
		},
		{
			name: "short memo",
			mutate: func(body map[string]any) {
				body["tx"].(map[string]any)["memo"] = "abcd"
			},
			fragment: "'memo'",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := transferBody(t, nil)
			tc.mutate(body)

			_, err := DecodeTransfer(Block{Body: body}, "token-a", 8)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.fragment) {
				t.Fatalf("error %q does not mention %q", err, tc.fragment)
			}
		})
	}
}

func TestDecodeTransferSenderSubaccountOptional(t *testing.T) {
	body := transferBody(t, map[string]any{
		"from": map[string]any{"owner": "buyer"},
	})

	txn, err := DecodeTransfer(Block{Body: body}, "token-a", 8)
	if err != nil {
		t.Fatalf("DecodeTransfer: %v", err)
	}
	if txn.From.Subaccount != nil {
		t.Fatal("sender subaccount should stay nil")
	}
	if txn.From.EffectiveSubaccount() != (Subaccount{}) {
		t.Fatal("effective subaccount should default to all zeroes")
	}
}
