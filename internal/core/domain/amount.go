package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Amount is a quantity of the settlement currency expressed in gwei,
// i.e. 1e-9 of one unit. Prices and fees are compared exactly.
type Amount int64

const (
	amountDecimals = 9

	Gwei Amount = 1
	Unit Amount = 1_000_000_000
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount parses a decimal string such as "1", "1.0" or "0.025" into
// an Amount. At most nine fractional digits are accepted.
func ParseAmount(s string) (Amount, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	negative := false
	switch raw[0] {
	case '-':
		negative = true
		raw = raw[1:]
	case '+':
		raw = raw[1:]
	}

	whole, frac, hasDot := strings.Cut(raw, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if hasDot && frac == "" {
		frac = "0"
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > amountDecimals {
		return 0, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, amountDecimals)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	digits := whole + frac + strings.Repeat("0", amountDecimals-len(frac))
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
	}
	if negative {
		v = -v
	}
	return Amount(v), nil
}

// MustParseAmount is ParseAmount for constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// AddChecked returns a+b, or false when the sum leaves the int64 range.
func (a Amount) AddChecked(b Amount) (Amount, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

func (a Amount) String() string {
	sign := ""
	u := uint64(a)
	if a < 0 {
		sign = "-"
		u = uint64(-(a + 1)) + 1
	}

	whole := u / uint64(Unit)
	frac := u % uint64(Unit)
	if frac == 0 {
		return sign + strconv.FormatUint(whole, 10)
	}
	fracStr := strings.TrimRight(fmt.Sprintf("%09d", frac), "0")
	return sign + strconv.FormatUint(whole, 10) + "." + fracStr
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalText(text []byte) error {
	v, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
