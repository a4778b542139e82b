package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration that decodes from strings such as "1s" or "250ms".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Clock is a time of day stored as minutes past midnight, written as "HH:MM".
type Clock int

func (c *Clock) UnmarshalText(text []byte) error {
	t, err := time.Parse("15:04", string(text))
	if err != nil {
		return fmt.Errorf("invalid time of day %q: expected HH:MM", string(text))
	}
	*c = Clock(t.Hour()*60 + t.Minute())
	return nil
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Offset returns the clock as a duration since midnight.
func (c Clock) Offset() time.Duration {
	return time.Duration(c) * time.Minute
}
