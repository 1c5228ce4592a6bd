package money

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"strings"
)

// Rate is an exact rational fraction of an amount. The zero value is 0.
type Rate struct {
	r *big.Rat
}

var (
	Zero = Rate{}
	One  = NewRate(1, 1)
)

// NewRate returns num/den. It panics on a zero denominator, like big.NewRat.
func NewRate(num, den int64) Rate {
	return Rate{r: big.NewRat(num, den)}
}

// Percent returns p/100.
func Percent(p int64) Rate {
	return NewRate(p, 100)
}

// ParseRate accepts "2/3", "0.06" or "6%".
func ParseRate(s string) (Rate, error) {
	s = strings.TrimSpace(s)
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")

	r, ok := new(big.Rat).SetString(strings.TrimSpace(s))
	if !ok {
		return Zero, fmt.Errorf("invalid rate %q", s)
	}
	if percent {
		r.Quo(r, big.NewRat(100, 1))
	}
	if r.Sign() < 0 {
		return Zero, fmt.Errorf("rate %q is negative", s)
	}
	return Rate{r: r}, nil
}

func (r Rate) rat() *big.Rat {
	if r.r == nil {
		return new(big.Rat)
	}
	return r.r
}

func (r Rate) Mul(o Rate) Rate {
	return Rate{r: new(big.Rat).Mul(r.rat(), o.rat())}
}

func (r Rate) Add(o Rate) Rate {
	return Rate{r: new(big.Rat).Add(r.rat(), o.rat())}
}

func (r Rate) Sub(o Rate) Rate {
	return Rate{r: new(big.Rat).Sub(r.rat(), o.rat())}
}

func (r Rate) Cmp(o Rate) int {
	return r.rat().Cmp(o.rat())
}

func (r Rate) Equal(o Rate) bool {
	return r.Cmp(o) == 0
}

func (r Rate) Sign() int {
	return r.rat().Sign()
}

func (r Rate) IsZero() bool {
	return r.Sign() == 0
}

// Floor returns floor(amount * r) for non-negative amounts.
func (r Rate) Floor(amount Cents) Cents {
	n := new(big.Int).Mul(big.NewInt(int64(amount)), r.rat().Num())
	q := new(big.Int).Div(n, r.rat().Denom())
	return Cents(q.Int64())
}

// Round returns amount * r rounded half away from zero to the cent.
func (r Rate) Round(amount Cents) Cents {
	n := new(big.Int).Mul(big.NewInt(int64(amount)), r.rat().Num())
	d := r.rat().Denom()
	n.Mul(n, big.NewInt(2))
	n.Add(n, d)
	q := new(big.Int).Div(n, new(big.Int).Mul(d, big.NewInt(2)))
	return Cents(q.Int64())
}

// String returns the reduced fraction, e.g. "3/50".
func (r Rate) String() string {
	return r.rat().RatString()
}

// PercentString renders the rate as a percentage with up to four decimals.
func (r Rate) PercentString() string {
	p := new(big.Rat).Mul(r.rat(), big.NewRat(100, 1))
	s := strings.TrimRight(strings.TrimRight(p.FloatString(4), "0"), ".")
	return s + "%"
}

func (r Rate) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Rate) UnmarshalText(b []byte) error {
	parsed, err := ParseRate(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Rate) Value() (driver.Value, error) {
	return r.String(), nil
}

func (r *Rate) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	case nil:
		*r = Zero
		return nil
	default:
		return fmt.Errorf("Rate.Scan: unsupported type %T", src)
	}
}
