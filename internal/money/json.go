package money

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// decimalJSON is the wire/persistence form of a Decimal. The magnitude is a
// decimal string so arbitrary precision survives JSON number limits.
type decimalJSON struct {
	Value    string `json:"value"`
	Decimals uint8  `json:"decimals"`
}

// MarshalJSON implements json.Marshaler.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return json.Marshal(decimalJSON{
		Value:    d.magnitude().String(),
		Decimals: d.decimals,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	var raw decimalJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("money: decode decimal: %w", err)
	}

	val, ok := new(big.Int).SetString(raw.Value, 10)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, raw.Value)
	}

	parsed, err := New(val, raw.Decimals)
	if err != nil {
		return err
	}

	*d = parsed
	return nil
}
