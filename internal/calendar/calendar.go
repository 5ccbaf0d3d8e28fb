// Package calendar derives date keys and hours in the pipeline's reference
// timezone from an injectable clock.
package calendar

import (
	"fmt"
	"time"
)

// DefaultTimezone is the reference timezone shared by the generator, the
// decider and the flag recorder.
const DefaultTimezone = "Asia/Bangkok"

// keyLayout renders a date as YYMMDD.
const keyLayout = "060102"

// DateKey identifies a calendar day, e.g. "240115".
type DateKey string

// Clock returns the current instant. Tests pass a fixed function.
type Clock func() time.Time

// Calendar pins a clock to a reference location.
type Calendar struct {
	loc *time.Location
	now Clock
}

// New loads the named location. A nil clock means time.Now.
func New(timezone string, now Clock) (*Calendar, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return WithLocation(loc, now), nil
}

// WithLocation builds a Calendar for an already resolved location.
func WithLocation(loc *time.Location, now Clock) *Calendar {
	if now == nil {
		now = time.Now
	}
	return &Calendar{loc: loc, now: now}
}

func (c *Calendar) Location() *time.Location { return c.loc }

// Now returns the clock's current time in the reference location.
func (c *Calendar) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns the date key of Now.
func (c *Calendar) Today() DateKey {
	return KeyOf(c.Now())
}

// Yesterday returns the date key of the calendar day before Now.
func (c *Calendar) Yesterday() DateKey {
	return KeyOf(c.Now().AddDate(0, 0, -1))
}

// KeyOf formats t (already in the desired location) as a date key.
func KeyOf(t time.Time) DateKey {
	return DateKey(t.Format(keyLayout))
}

// ParseKey parses a YYMMDD key in loc.
func ParseKey(key string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(keyLayout, key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date key %q: %w", key, err)
	}
	return t, nil
}

// HourString renders the hour of t as two zero-padded digits.
func HourString(t time.Time) string {
	return fmt.Sprintf("%02d", t.Hour())
}

// Naming maps date keys to file names in the repository working copy.
type Naming struct {
	OutputPrefix string
	OutputExt    string
	FlagPrefix   string
	FlagExt      string
}

// DefaultNaming matches midjourney_prompts_<YYMMDD>.txt and
// email_sent_<YYMMDD>.flag.
func DefaultNaming() Naming {
	return Naming{
		OutputPrefix: "midjourney_prompts_",
		OutputExt:    ".txt",
		FlagPrefix:   "email_sent_",
		FlagExt:      ".flag",
	}
}

func (n Naming) Output(day DateKey) string {
	return n.OutputPrefix + string(day) + n.OutputExt
}

func (n Naming) Flag(day DateKey) string {
	return n.FlagPrefix + string(day) + n.FlagExt
}

// OutputGlob matches every dated output file.
func (n Naming) OutputGlob() string {
	return n.OutputPrefix + "*" + n.OutputExt
}

// FlagGlob matches every sent-flag.
func (n Naming) FlagGlob() string {
	return n.FlagPrefix + "*" + n.FlagExt
}
