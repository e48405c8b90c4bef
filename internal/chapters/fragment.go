package chapters

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidFragment reports a malformed temporal media fragment.
var ErrInvalidFragment = errors.New("invalid time fragment")

// ParseTimeFragment extracts the start of a temporal media fragment ("t=90", "t=npt:1:30.5",
// "t=10,20"). Fragments without a "t" dimension yield zero.
func ParseTimeFragment(fragment string) (time.Duration, error) {
	for _, part := range strings.Split(fragment, "&") {
		name, value, ok := strings.Cut(part, "=")
		if !ok || name != "t" {
			continue
		}
		value = strings.TrimPrefix(value, "npt:")
		start, _, _ := strings.Cut(value, ",")
		if start == "" {
			return 0, nil
		}
		d, err := parseClock(start)
		if err != nil {
			return 0, fmt.Errorf("%w %q: %v", ErrInvalidFragment, part, err)
		}
		return d, nil
	}
	return 0, nil
}

// parseClock accepts seconds, mm:ss or hh:mm:ss, each with an optional fraction on the last field.
func parseClock(s string) (time.Duration, error) {
	fields := strings.Split(s, ":")
	if len(fields) > 3 {
		return 0, errors.New("too many fields")
	}
	var total float64
	for i, f := range fields {
		last := i == len(fields)-1
		var v float64
		var err error
		if last {
			v, err = strconv.ParseFloat(f, 64)
		} else {
			var n int
			n, err = strconv.Atoi(f)
			v = float64(n)
		}
		if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("bad field %q", f)
		}
		if i > 0 && v >= 60 {
			return 0, fmt.Errorf("field %q out of range", f)
		}
		total = total*60 + v
	}
	return time.Duration(math.Round(total * float64(time.Second))), nil
}
