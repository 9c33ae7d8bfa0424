// Package fracindex generates order keys that sort strictly between two
// existing keys, so a list item can move without renumbering its siblings.
//
// Keys use the base-62 alphabet 0-9A-Za-z and are made of a variable-length
// integer part (its length is encoded by the first character, 'a'..'z' for
// non-negative and 'Z'..'A' for negative values) followed by an optional
// fractional part that never ends in '0'. This is the same layout existing
// stored documents use, so keys generated here interleave with them.
package fracindex

import (
	"errors"
	"fmt"
	"strings"
)

const (
	digits          = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	smallestInteger = "A00000000000000000000000000"
	zero            = '0'
	largestDigit    = 'z'
)

// ErrInvalidKey is returned for keys that do not follow the key layout.
var ErrInvalidKey = errors.New("invalid order key")

// ErrOutOfOrder is returned when the lower bound is not below the upper one.
var ErrOutOfOrder = errors.New("order keys out of order")

// ErrExhausted is returned when no key exists beyond the requested bound.
var ErrExhausted = errors.New("order key space exhausted")

// KeyBetween returns a key k with a < k < b. An empty a means "before
// everything" and an empty b means "after everything"; KeyBetween("", "")
// returns the first key of an empty list.
func KeyBetween(a, b string) (string, error) {
	if a != "" {
		if err := Validate(a); err != nil {
			return "", err
		}
	}
	if b != "" {
		if err := Validate(b); err != nil {
			return "", err
		}
	}
	if a != "" && b != "" && a >= b {
		return "", fmt.Errorf("%w: %q >= %q", ErrOutOfOrder, a, b)
	}

	if a == "" {
		if b == "" {
			return "a0", nil
		}
		ib, _ := integerPart(b)
		fb := b[len(ib):]
		if ib == smallestInteger {
			mid, err := midpoint("", fb)
			if err != nil {
				return "", err
			}
			return ib + mid, nil
		}
		if ib < b {
			return ib, nil
		}
		res, ok := decrementInteger(ib)
		if !ok {
			return "", fmt.Errorf("%w: nothing below %q", ErrExhausted, b)
		}
		return res, nil
	}

	ia, _ := integerPart(a)
	fa := a[len(ia):]

	if b == "" {
		i, ok := incrementInteger(ia)
		if !ok {
			mid, err := midpoint(fa, "")
			if err != nil {
				return "", err
			}
			return ia + mid, nil
		}
		return i, nil
	}

	ib, _ := integerPart(b)
	fb := b[len(ib):]
	if ia == ib {
		mid, err := midpoint(fa, fb)
		if err != nil {
			return "", err
		}
		return ia + mid, nil
	}

	i, ok := incrementInteger(ia)
	if !ok {
		return "", fmt.Errorf("%w: nothing above %q", ErrExhausted, a)
	}
	if i < b {
		return i, nil
	}
	mid, err := midpoint(fa, "")
	if err != nil {
		return "", err
	}
	return ia + mid, nil
}

// NKeysBetween returns n ascending keys strictly between a and b, spread so
// that later insertions between any two of them stay short.
func NKeysBetween(a, b string, n int) ([]string, error) {
	switch {
	case n <= 0:
		return nil, nil
	case n == 1:
		k, err := KeyBetween(a, b)
		if err != nil {
			return nil, err
		}
		return []string{k}, nil
	}

	if b == "" {
		out := make([]string, 0, n)
		c, err := KeyBetween(a, b)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		for len(out) < n {
			if c, err = KeyBetween(c, ""); err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	}

	if a == "" {
		out := make([]string, n)
		c, err := KeyBetween(a, b)
		if err != nil {
			return nil, err
		}
		out[n-1] = c
		for i := n - 2; i >= 0; i-- {
			if c, err = KeyBetween("", c); err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	}

	mid := n / 2
	c, err := KeyBetween(a, b)
	if err != nil {
		return nil, err
	}
	lo, err := NKeysBetween(a, c, mid)
	if err != nil {
		return nil, err
	}
	hi, err := NKeysBetween(c, b, n-mid-1)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	out = append(out, lo...)
	out = append(out, c)
	return append(out, hi...), nil
}

// Validate reports whether key is a well-formed order key.
func Validate(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if key == smallestInteger {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidKey, key)
	}
	i, err := integerPart(key)
	if err != nil {
		return err
	}
	for j := 0; j < len(key); j++ {
		if strings.IndexByte(digits, key[j]) < 0 {
			return fmt.Errorf("%w: %q has invalid digit %q", ErrInvalidKey, key, key[j])
		}
	}
	if f := key[len(i):]; strings.HasSuffix(f, string(zero)) {
		return fmt.Errorf("%w: %q has trailing zero", ErrInvalidKey, key)
	}
	return nil
}

func integerLength(head byte) (int, error) {
	switch {
	case head >= 'a' && head <= 'z':
		return int(head-'a') + 2, nil
	case head >= 'A' && head <= 'Z':
		return int('Z'-head) + 2, nil
	}
	return 0, fmt.Errorf("%w: invalid head %q", ErrInvalidKey, head)
}

func integerPart(key string) (string, error) {
	n, err := integerLength(key[0])
	if err != nil {
		return "", err
	}
	if n > len(key) {
		return "", fmt.Errorf("%w: %q is shorter than its integer part", ErrInvalidKey, key)
	}
	return key[:n], nil
}

// midpoint returns a fractional part strictly between a and b. An empty b is
// the open upper bound.
func midpoint(a, b string) (string, error) {
	if b != "" && a >= b {
		return "", fmt.Errorf("%w: %q >= %q", ErrOutOfOrder, a, b)
	}
	if strings.HasSuffix(a, string(zero)) || strings.HasSuffix(b, string(zero)) {
		return "", fmt.Errorf("%w: trailing zero", ErrInvalidKey)
	}

	if b != "" {
		n := 0
		for n < len(b) && digitAt(a, n) == b[n] {
			n++
		}
		if n > 0 {
			rest := ""
			if n < len(a) {
				rest = a[n:]
			}
			mid, err := midpoint(rest, b[n:])
			if err != nil {
				return "", err
			}
			return b[:n] + mid, nil
		}
	}

	digitA := 0
	if a != "" {
		digitA = strings.IndexByte(digits, a[0])
	}
	digitB := len(digits)
	if b != "" {
		digitB = strings.IndexByte(digits, b[0])
	}

	if digitB-digitA > 1 {
		return string(digits[(digitA+digitB+1)/2]), nil
	}
	if len(b) > 1 {
		return b[:1], nil
	}
	rest := ""
	if len(a) > 1 {
		rest = a[1:]
	}
	mid, err := midpoint(rest, "")
	if err != nil {
		return "", err
	}
	return string(digits[digitA]) + mid, nil
}

func digitAt(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return zero
}

func incrementInteger(x string) (string, bool) {
	head := x[0]
	digs := []byte(x[1:])
	carry := true
	for i := len(digs) - 1; carry && i >= 0; i-- {
		d := strings.IndexByte(digits, digs[i]) + 1
		if d == len(digits) {
			digs[i] = zero
		} else {
			digs[i] = digits[d]
			carry = false
		}
	}
	if !carry {
		return string(head) + string(digs), true
	}
	switch head {
	case 'Z':
		return "a0", true
	case 'z':
		return "", false
	}
	h := head + 1
	if h > 'a' {
		digs = append(digs, zero)
	} else {
		digs = digs[:len(digs)-1]
	}
	return string(h) + string(digs), true
}

func decrementInteger(x string) (string, bool) {
	head := x[0]
	digs := []byte(x[1:])
	borrow := true
	for i := len(digs) - 1; borrow && i >= 0; i-- {
		d := strings.IndexByte(digits, digs[i]) - 1
		if d == -1 {
			digs[i] = largestDigit
		} else {
			digs[i] = digits[d]
			borrow = false
		}
	}
	if !borrow {
		return string(head) + string(digs), true
	}
	switch head {
	case 'a':
		return "Z" + string(largestDigit), true
	case 'A':
		return "", false
	}
	h := head - 1
	if h < 'Z' {
		digs = append(digs, largestDigit)
	} else {
		digs = digs[:len(digs)-1]
	}
	return string(h) + string(digs), true
}
