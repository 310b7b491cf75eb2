package types

import (
	"fmt"
	"io"
	"math/big"

	"github.com/module/tdb/pkg/primitives"
)

// DecimalField represents the Mixed Decimal128 kind: an arbitrary-precision
// decimal expressed as an unscaled integer and a base-10 exponent, so that
// Decimal(1) and Decimal(1.0) keep their distinct provenance instead of
// being rounded through a binary float.
type DecimalField struct {
	Unscaled *big.Int
	Exponent int32 // value == Unscaled * 10^Exponent
}

// NewDecimalField builds a DecimalField directly from its unscaled/exponent
// representation.
func NewDecimalField(unscaled *big.Int, exponent int32) *DecimalField {
	return &DecimalField{Unscaled: unscaled, Exponent: exponent}
}

// ParseDecimalField parses a base-10 literal such as "-12.340" into a
// DecimalField, preserving trailing zeros as exponent precision.
func ParseDecimalField(s string) (*DecimalField, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid decimal literal: %q", s)
	}
	// Scale by the denominator's power-of-ten when possible; fall back to
	// a fixed scale of 18 digits for non-decimal rationals.
	num := r.Num()
	den := r.Denom()
	if isPowerOfTen(den) {
		exp := -countPowerOfTen(den)
		return &DecimalField{Unscaled: new(big.Int).Set(num), Exponent: int32(exp)}, nil
	}

	const scale = 18
	scaled := new(big.Int).Mul(num, pow10(scale))
	scaled.Quo(scaled, den)
	return &DecimalField{Unscaled: scaled, Exponent: -scale}, nil
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func isPowerOfTen(n *big.Int) bool {
	if n.Sign() <= 0 {
		return n.Cmp(big.NewInt(1)) == 0
	}
	v := new(big.Int).Set(n)
	ten := big.NewInt(10)
	for v.Cmp(big.NewInt(1)) > 0 {
		q, r := new(big.Int).QuoRem(v, ten, new(big.Int))
		if r.Sign() != 0 {
			return false
		}
		v = q
	}
	return true
}

func countPowerOfTen(n *big.Int) int {
	v := new(big.Int).Set(n)
	ten := big.NewInt(10)
	count := 0
	for v.Cmp(big.NewInt(1)) > 0 {
		v.Quo(v, ten)
		count++
	}
	return count
}

// rat returns the DecimalField's value as an exact big.Rat.
func (d *DecimalField) rat() *big.Rat {
	r := new(big.Rat).SetInt(d.Unscaled)
	if d.Exponent == 0 {
		return r
	}
	scale := new(big.Rat).SetInt(pow10(abs32(d.Exponent)))
	if d.Exponent > 0 {
		return r.Mul(r, scale)
	}
	return r.Quo(r, scale)
}

func abs32(v int32) int {
	if v < 0 {
		return int(-v)
	}
	return int(v)
}

func (d *DecimalField) Serialize(w io.Writer) error {
	raw := d.Unscaled.Bytes()
	neg := d.Unscaled.Sign() < 0

	if err := serializeUint32(w, uint32(d.Exponent)); err != nil {
		return err
	}
	signByte := byte(0)
	if neg {
		signByte = 1
	}
	if _, err := w.Write([]byte{signByte}); err != nil {
		return err
	}
	if err := serializeUint32(w, uint32(len(raw))); err != nil {
		return err
	}
	_, err := w.Write(raw)
	return err
}

func (d *DecimalField) Compare(op primitives.Predicate, other Field) (bool, error) {
	o, ok := other.(*DecimalField)
	if !ok {
		return false, fmt.Errorf("cannot compare DecimalField with %T", other)
	}
	cmp := d.rat().Cmp(o.rat())

	switch op {
	case primitives.Equals:
		return cmp == 0, nil
	case primitives.LessThan:
		return cmp < 0, nil
	case primitives.GreaterThan:
		return cmp > 0, nil
	case primitives.LessThanOrEqual:
		return cmp <= 0, nil
	case primitives.GreaterThanOrEqual:
		return cmp >= 0, nil
	case primitives.NotEqual:
		return cmp != 0, nil
	default:
		return false, fmt.Errorf("unsupported predicate for DecimalField: %v", op)
	}
}

func (d *DecimalField) Type() Type {
	return DecimalType
}

func (d *DecimalField) String() string {
	return d.rat().FloatString(-d.minFrac())
}

func (d *DecimalField) minFrac() int {
	if d.Exponent >= 0 {
		return 0
	}
	return int(d.Exponent)
}

func (d *DecimalField) Equals(other Field) bool {
	o, ok := other.(*DecimalField)
	if !ok {
		return false
	}
	return d.rat().Cmp(o.rat()) == 0
}

func (d *DecimalField) Hash() (primitives.HashCode, error) {
	r := d.rat()
	return fnvHash([]byte(r.RatString())), nil
}

func (d *DecimalField) Length() uint32 {
	return uint32(9 + len(d.Unscaled.Bytes()))
}
