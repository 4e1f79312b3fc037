package ui

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

type timeUnit struct {
	millis int64
	name   string
}

var timeUnits = []timeUnit{
	{86400e3 * 365, "year"},
	{86400e3 * 30, "month"},
	{86400e3, "day"},
	{3600e3, "hour"},
	{60e3, "minute"},
	{1e3, "second"},
}

// FromNow renders a millisecond timestamp as a relative English phrase such
// as "3 days ago" or "2 hours from now". A zero timestamp renders as def,
// or "never" when def is empty. Timestamps below 1e12 are treated as
// seconds and scaled up.
func FromNow(v int64, digits int, def string) string {
	if v == 0 {
		if def != "" {
			return def
		}
		return "never"
	}
	if v < 1e12 {
		v *= 1e3
	}
	delta := v - time.Now().UnixMilli()
	suffix := " ago"
	if delta > 0 {
		suffix = " from now"
	}
	if s := Diff(absInt64(delta), digits, suffix); s != "" {
		return s
	}
	return "just now"
}

// Diff renders a millisecond duration using its largest whole unit, with an
// optional number of decimal digits. Durations under one second render as
// the empty string.
func Diff(v int64, digits int, suffix string) string {
	for _, unit := range timeUnits {
		whole := v / unit.millis
		if whole == 0 {
			continue
		}
		var amount string
		plural := whole != 1
		if digits > 0 {
			n := math.Pow(10, float64(digits))
			f := math.Floor(float64(v)/float64(unit.millis)*n) / n
			amount = strconv.FormatFloat(f, 'f', -1, 64)
			plural = f != 1
		} else {
			amount = strconv.FormatInt(whole, 10)
		}
		name := unit.name
		if plural {
			name += "s"
		}
		return fmt.Sprintf("%s %s%s", amount, name, suffix)
	}
	return ""
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
