package filter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var sizeUnits = map[string]float64{
	"":  1,
	"K": 1 << 10,
	"M": 1 << 20,
	"G": 1 << 30,
	"T": 1 << 40,
}

// ParseSize parses a byte count such as "512", "64K", "1.5M" or "2GiB".
// Units are powers of 1024 and case-insensitive; a trailing "B" or "iB"
// is accepted.
func ParseSize(s string) (int64, error) {
	in := strings.ToUpper(strings.TrimSpace(s))
	in = strings.TrimSuffix(in, "B")
	in = strings.TrimSuffix(in, "I")

	unit := ""
	if n := len(in); n > 0 {
		if _, ok := sizeUnits[in[n-1:]]; ok {
			unit, in = in[n-1:], in[:n-1]
		}
	}
	if in == "" {
		return 0, fmt.Errorf("invalid size %q", s)
	}

	if n, err := strconv.ParseInt(in, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("invalid size %q: negative", s)
		}
		mul := int64(sizeUnits[unit])
		if n > math.MaxInt64/mul {
			return 0, fmt.Errorf("invalid size %q: overflows", s)
		}
		return n * mul, nil
	}

	f, err := strconv.ParseFloat(in, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if f < 0 {
		return 0, fmt.Errorf("invalid size %q: negative", s)
	}
	v := f * sizeUnits[unit]
	if v >= math.MaxInt64 {
		return 0, fmt.Errorf("invalid size %q: overflows", s)
	}
	return int64(v), nil
}
