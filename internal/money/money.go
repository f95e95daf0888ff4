package money

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Decimal is a fixed-point decimal amount: an arbitrary-precision magnitude
// paired with a decimal-place count. All monetary quantities in the hub are
// Decimals. Binary operations require both operands to carry the same number
// of decimals; use Rescale to convert explicitly.
//
// Examples:
//   - $10.50 USD (8 decimals)  = Decimal{val: 1050000000, decimals: 8}
//   - 1.5 tokens (6 decimals)  = Decimal{val: 1500000, decimals: 6}
type Decimal struct {
	val      *big.Int
	decimals uint8
}

// MaxDecimals is the largest supported decimal-place count.
const MaxDecimals = 31

// USDDecimals is the scale every USD-denominated quantity is normalized to.
const USDDecimals = 8

var (
	// ErrInvalidScale occurs when a decimal-place count exceeds MaxDecimals.
	ErrInvalidScale = errors.New("money: invalid scale")

	// ErrIncompatibleScale occurs when operating on decimals of different scale.
	ErrIncompatibleScale = errors.New("money: incompatible scale")

	// ErrNegativeAmount occurs when an operation would produce a negative magnitude.
	ErrNegativeAmount = errors.New("money: negative amount not allowed")

	// ErrDivisionByZero occurs when dividing by zero.
	ErrDivisionByZero = errors.New("money: division by zero")

	// ErrInvalidFormat occurs when parsing fails.
	ErrInvalidFormat = errors.New("money: invalid format")
)

// bases holds 10^0 .. 10^31, indexed by scale.
var bases [MaxDecimals + 1]*big.Int

func init() {
	ten := big.NewInt(10)
	b := big.NewInt(1)
	for i := 0; i <= MaxDecimals; i++ {
		bases[i] = new(big.Int).Set(b)
		b.Mul(b, ten)
	}
}

// base returns 10^decimals. The caller must have validated decimals.
func base(decimals uint8) *big.Int {
	return bases[decimals]
}

// New creates a Decimal from a magnitude and a scale.
func New(val *big.Int, decimals uint8) (Decimal, error) {
	if decimals > MaxDecimals {
		return Decimal{}, fmt.Errorf("%w: %d decimals", ErrInvalidScale, decimals)
	}
	if val.Sign() < 0 {
		return Decimal{}, ErrNegativeAmount
	}
	return Decimal{val: new(big.Int).Set(val), decimals: decimals}, nil
}

// MustNew is New that panics on error. Intended for constants and tests.
func MustNew(val *big.Int, decimals uint8) Decimal {
	d, err := New(val, decimals)
	if err != nil {
		panic(err)
	}
	return d
}

// FromUint64 creates a Decimal from an atomic-unit magnitude.
func FromUint64(val uint64, decimals uint8) (Decimal, error) {
	return New(new(big.Int).SetUint64(val), decimals)
}

// Zero returns a zero amount at the given scale.
func Zero(decimals uint8) Decimal {
	return Decimal{val: new(big.Int), decimals: decimals}
}

// One returns 1.0 at the given scale.
func One(decimals uint8) Decimal {
	if decimals > MaxDecimals {
		decimals = MaxDecimals
	}
	return Decimal{val: new(big.Int).Set(base(decimals)), decimals: decimals}
}

// Val returns a copy of the magnitude in atomic units.
func (d Decimal) Val() *big.Int {
	if d.val == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(d.val)
}

// Decimals returns the scale.
func (d Decimal) Decimals() uint8 {
	return d.decimals
}

// IsZero reports whether the magnitude is zero.
func (d Decimal) IsZero() bool {
	return d.val == nil || d.val.Sign() == 0
}

// magnitude returns the internal value, tolerating the zero Decimal.
func (d Decimal) magnitude() *big.Int {
	if d.val == nil {
		return new(big.Int)
	}
	return d.val
}

// Add returns d + other. Scales must match.
func (d Decimal) Add(other Decimal) (Decimal, error) {
	if d.decimals != other.decimals {
		return Decimal{}, fmt.Errorf("%w: %d vs %d decimals", ErrIncompatibleScale, d.decimals, other.decimals)
	}
	return Decimal{
		val:      new(big.Int).Add(d.magnitude(), other.magnitude()),
		decimals: d.decimals,
	}, nil
}

// Sub returns d - other. Scales must match; the result must be non-negative.
func (d Decimal) Sub(other Decimal) (Decimal, error) {
	if d.decimals != other.decimals {
		return Decimal{}, fmt.Errorf("%w: %d vs %d decimals", ErrIncompatibleScale, d.decimals, other.decimals)
	}
	res := new(big.Int).Sub(d.magnitude(), other.magnitude())
	if res.Sign() < 0 {
		return Decimal{}, ErrNegativeAmount
	}
	return Decimal{val: res, decimals: d.decimals}, nil
}

// Mul returns d * other, truncating toward zero: (a*b)/10^scale.
// The intermediate product is computed at full precision before rescaling.
func (d Decimal) Mul(other Decimal) (Decimal, error) {
	if d.decimals != other.decimals {
		return Decimal{}, fmt.Errorf("%w: %d vs %d decimals", ErrIncompatibleScale, d.decimals, other.decimals)
	}
	res := new(big.Int).Mul(d.magnitude(), other.magnitude())
	res.Quo(res, base(d.decimals))
	return Decimal{val: res, decimals: d.decimals}, nil
}

// Div returns d / other, truncating toward zero: (a*10^scale)/b.
// The dividend is widened before the division so no precision is lost
// against the nominal scale.
func (d Decimal) Div(other Decimal) (Decimal, error) {
	if d.decimals != other.decimals {
		return Decimal{}, fmt.Errorf("%w: %d vs %d decimals", ErrIncompatibleScale, d.decimals, other.decimals)
	}
	if other.IsZero() {
		return Decimal{}, ErrDivisionByZero
	}
	res := new(big.Int).Mul(d.magnitude(), base(d.decimals))
	res.Quo(res, other.magnitude())
	return Decimal{val: res, decimals: d.decimals}, nil
}

// MulUint64 multiplies by an integer scalar.
func (d Decimal) MulUint64(n uint64) Decimal {
	return Decimal{
		val:      new(big.Int).Mul(d.magnitude(), new(big.Int).SetUint64(n)),
		decimals: d.decimals,
	}
}

// DivUint64 divides by an integer scalar, truncating toward zero.
func (d Decimal) DivUint64(n uint64) (Decimal, error) {
	if n == 0 {
		return Decimal{}, ErrDivisionByZero
	}
	return Decimal{
		val:      new(big.Int).Quo(d.magnitude(), new(big.Int).SetUint64(n)),
		decimals: d.decimals,
	}, nil
}

// Rescale converts to a different scale. Widening multiplies by a power of
// ten; narrowing divides, truncating toward zero. Narrowing is lossy and
// deliberately not an error.
func (d Decimal) Rescale(decimals uint8) (Decimal, error) {
	if decimals > MaxDecimals {
		return Decimal{}, fmt.Errorf("%w: %d decimals", ErrInvalidScale, decimals)
	}
	switch {
	case decimals == d.decimals:
		return Decimal{val: new(big.Int).Set(d.magnitude()), decimals: decimals}, nil
	case decimals > d.decimals:
		factor := base(decimals - d.decimals)
		return Decimal{val: new(big.Int).Mul(d.magnitude(), factor), decimals: decimals}, nil
	default:
		factor := base(d.decimals - decimals)
		return Decimal{val: new(big.Int).Quo(d.magnitude(), factor), decimals: decimals}, nil
	}
}

// Sqrt computes the integer square root of the whole part, rescaled back.
// The fractional part is discarded before the root is taken, so the result
// is an approximation.
func (d Decimal) Sqrt() Decimal {
	b := base(d.decimals)
	whole := new(big.Int).Quo(d.magnitude(), b)
	whole.Sqrt(whole)
	return Decimal{val: whole.Mul(whole, b), decimals: d.decimals}
}

// Cmp compares two Decimals of equal scale: -1 if d < other, 0 if equal,
// +1 if d > other. Comparing different scales is refused; rescale first.
func (d Decimal) Cmp(other Decimal) (int, error) {
	if d.decimals != other.decimals {
		return 0, fmt.Errorf("%w: %d vs %d decimals", ErrIncompatibleScale, d.decimals, other.decimals)
	}
	return d.magnitude().Cmp(other.magnitude()), nil
}

// Equal reports exact equality of scale and magnitude.
func (d Decimal) Equal(other Decimal) bool {
	return d.decimals == other.decimals && d.magnitude().Cmp(other.magnitude()) == 0
}

// String renders "integer_part.fractional_part" with the fractional part
// zero-padded to the scale width.
func (d Decimal) String() string {
	b := base(d.decimals)
	whole := new(big.Int)
	frac := new(big.Int)
	whole.QuoRem(d.magnitude(), b, frac)

	if d.decimals == 0 {
		return whole.String()
	}

	fracStr := frac.String()
	var sb strings.Builder
	sb.Grow(len(fracStr) + int(d.decimals) + 2)
	sb.WriteString(whole.String())
	sb.WriteByte('.')
	for i := len(fracStr); i < int(d.decimals); i++ {
		sb.WriteByte('0')
	}
	sb.WriteString(fracStr)
	return sb.String()
}

// Parse reads a "123.45"-style string into a Decimal at the given scale.
// Extra fractional digits beyond the scale are truncated.
func Parse(s string, decimals uint8) (Decimal, error) {
	if decimals > MaxDecimals {
		return Decimal{}, fmt.Errorf("%w: %d decimals", ErrInvalidScale, decimals)
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 || parts[0] == "" {
		return Decimal{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	whole, ok := new(big.Int).SetString(parts[0], 10)
	if !ok {
		return Decimal{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	if whole.Sign() < 0 {
		return Decimal{}, ErrNegativeAmount
	}

	val := whole.Mul(whole, base(decimals))

	if len(parts) == 2 && parts[1] != "" {
		fracStr := parts[1]
		if len(fracStr) > int(decimals) {
			fracStr = fracStr[:decimals]
		}
		frac, ok := new(big.Int).SetString(fracStr, 10)
		if !ok || frac.Sign() < 0 {
			return Decimal{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
		}
		frac.Mul(frac, base(decimals-uint8(len(fracStr))))
		val.Add(val, frac)
	}

	return Decimal{val: val, decimals: decimals}, nil
}

// MustParse is Parse that panics on error. Intended for constants and tests.
func MustParse(s string, decimals uint8) Decimal {
	d, err := Parse(s, decimals)
	if err != nil {
		panic(err)
	}
	return d
}
