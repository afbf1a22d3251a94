// Package fixed implements non-negative fixed-point fractions with 24
// decimal places, used for governance thresholds, quorum factors and the
// participation baseline. All operations return new values; a Fraction is
// never mutated in place.
package fixed

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

// Decimals is the number of decimal places carried by a Fraction.
const Decimals = 24

var scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Fraction is a non-negative fixed-point number scaled by 10^24.
type Fraction struct {
	v *big.Int
}

// Zero returns the fraction 0.
func Zero() Fraction {
	return Fraction{v: new(big.Int)}
}

// One returns the fraction 1.0.
func One() Fraction {
	return Fraction{v: new(big.Int).Set(scale)}
}

// Half returns the fraction 0.5.
func Half() Fraction {
	return Fraction{v: new(big.Int).Div(scale, big.NewInt(2))}
}

// New returns a fraction from an already-scaled value.
func New(scaled *big.Int) (Fraction, error) {
	if scaled == nil || scaled.Sign() < 0 {
		return Fraction{}, errors.New("fixed: scaled value must be non-negative")
	}
	return Fraction{v: new(big.Int).Set(scaled)}, nil
}

// FromRatio returns the fraction num/den.
func FromRatio(num, den *big.Int) (Fraction, error) {
	if den == nil || den.Sign() == 0 {
		return Fraction{}, errors.New("fixed: zero denominator")
	}
	if num == nil || num.Sign() < 0 || den.Sign() < 0 {
		return Fraction{}, errors.New("fixed: ratio must be non-negative")
	}
	v := new(big.Int).Mul(num, scale)
	return Fraction{v: v.Div(v, den)}, nil
}

// FromString parses a decimal string such as "0.005" or "1".
func FromString(s string) (Fraction, error) {
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > Decimals {
		return Fraction{}, errors.Errorf("fixed: more than %d decimal places in %q", Decimals, s)
	}
	padded := frac + strings.Repeat("0", Decimals-len(frac))
	w, ok := new(big.Int).SetString(whole, 10)
	if !ok || w.Sign() < 0 {
		return Fraction{}, errors.Errorf("fixed: malformed decimal %q", s)
	}
	f, ok := new(big.Int).SetString(padded, 10)
	if !ok {
		return Fraction{}, errors.Errorf("fixed: malformed decimal %q", s)
	}
	v := new(big.Int).Mul(w, scale)
	return Fraction{v: v.Add(v, f)}, nil
}

// MustFromString is FromString that panics on malformed input. For constants.
func MustFromString(s string) Fraction {
	f, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return f
}

func (f Fraction) big() *big.Int {
	if f.v == nil {
		return new(big.Int)
	}
	return f.v
}

// Big returns a copy of the underlying scaled value.
func (f Fraction) Big() *big.Int {
	return new(big.Int).Set(f.big())
}

// Add returns f + o.
func (f Fraction) Add(o Fraction) Fraction {
	return Fraction{v: new(big.Int).Add(f.big(), o.big())}
}

// Sub returns f - o. It panics if the result would be negative; callers
// operate on validated parameters in [0, 1].
func (f Fraction) Sub(o Fraction) Fraction {
	v := new(big.Int).Sub(f.big(), o.big())
	if v.Sign() < 0 {
		panic(fmt.Sprintf("fixed: negative result from %s - %s", f, o))
	}
	return Fraction{v: v}
}

// Mul returns f * o.
func (f Fraction) Mul(o Fraction) Fraction {
	v := new(big.Int).Mul(f.big(), o.big())
	return Fraction{v: v.Div(v, scale)}
}

// Div returns f / o. It panics on division by zero.
func (f Fraction) Div(o Fraction) Fraction {
	if o.IsZero() {
		panic("fixed: division by zero")
	}
	v := new(big.Int).Mul(f.big(), scale)
	return Fraction{v: v.Div(v, o.big())}
}

// MulBig scales an integer weight by the fraction, truncating.
func (f Fraction) MulBig(w *big.Int) *big.Int {
	v := new(big.Int).Mul(f.big(), w)
	return v.Div(v, scale)
}

// Cmp compares f and o, returning -1, 0 or 1.
func (f Fraction) Cmp(o Fraction) int {
	return f.big().Cmp(o.big())
}

// Gt reports whether f > o.
func (f Fraction) Gt(o Fraction) bool { return f.Cmp(o) > 0 }

// Gte reports whether f >= o.
func (f Fraction) Gte(o Fraction) bool { return f.Cmp(o) >= 0 }

// Lt reports whether f < o.
func (f Fraction) Lt(o Fraction) bool { return f.Cmp(o) < 0 }

// IsZero reports whether f == 0.
func (f Fraction) IsZero() bool { return f.big().Sign() == 0 }

// String renders the fraction as a decimal with trailing zeros trimmed.
func (f Fraction) String() string {
	q, r := new(big.Int).QuoRem(f.big(), scale, new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	frac := strings.TrimRight(fmt.Sprintf("%0*s", Decimals, r.String()), "0")
	return q.String() + "." + frac
}

// MarshalText implements encoding.TextMarshaler.
func (f Fraction) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextMarshaler.
func (f *Fraction) UnmarshalText(text []byte) error {
	parsed, err := FromString(string(text))
	if err != nil {
		return err
	}
	f.v = parsed.v
	return nil
}
