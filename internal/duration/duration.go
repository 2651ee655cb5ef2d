// Package duration parses durations that may carry day, week, month or year
// suffixes in addition to the units understood by time.ParseDuration.
package duration

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

var units = []struct {
	suffix string
	mult   time.Duration
}{
	{"d", Day},
	{"w", Week},
	{"M", Month},
	{"y", Year},
}

// Parse accepts anything time.ParseDuration does, plus "7d", "2w", "1M", "1y"
// and bare numbers which are read as seconds.
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("duration: empty value")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	for _, u := range units {
		if !strings.HasSuffix(s, u.suffix) {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSuffix(s, u.suffix), 64)
		if err != nil {
			return 0, fmt.Errorf("duration: invalid value %q", s)
		}
		return time.Duration(n * float64(u.mult)), nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("duration: invalid value %q", s)
	}
	return time.Duration(n * float64(time.Second)), nil
}

// Format renders whole days with the "d" suffix and everything else the way
// time.Duration does.
func Format(d time.Duration) string {
	if d != 0 && d%Day == 0 {
		return strconv.FormatInt(int64(d/Day), 10) + "d"
	}
	return d.String()
}

// Value adapts a *time.Duration to pflag.Value.
type Value time.Duration

func (v *Value) String() string { return Format(time.Duration(*v)) }

func (v *Value) Set(s string) error {
	d, err := Parse(s)
	if err != nil {
		return err
	}
	*v = Value(d)
	return nil
}

func (v *Value) Type() string { return "duration" }

func (v *Value) UnmarshalText(text []byte) error { return v.Set(string(text)) }

func DurationVar(f *pflag.FlagSet, p *time.Duration, name string, value time.Duration, usage string) {
	*p = value
	f.Var((*Value)(p), name, usage)
}
