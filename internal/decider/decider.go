// Package decider decides, once per run, whether yesterday's output should be
// emailed.
package decider

import (
	"fmt"
	"time"

	"github.com/jkpraja/genMJP/internal/calendar"
	"github.com/jkpraja/genMJP/internal/types"
)

// DefaultSendHour is the hour (reference timezone) at which the daily email
// goes out.
const DefaultSendHour = 4

// Input is everything Decide looks at.
type Input struct {
	// Now must already be in the reference timezone.
	Now        time.Time
	SendHour   int
	FileExists bool
	FlagExists bool
}

// Decision is the outcome for yesterday's date.
type Decision struct {
	Send       bool
	Date       calendar.DateKey
	Hour       string
	FileExists bool
	FlagExists bool
	Reason     string
}

// Decide sends iff yesterday's file exists and either this is the send hour,
// or the send hour has passed and no sent-flag exists yet. A missing file
// never sends, whatever the hour or flag.
func Decide(in Input) Decision {
	d := Decision{
		Date:       calendar.KeyOf(in.Now.AddDate(0, 0, -1)),
		Hour:       calendar.HourString(in.Now),
		FileExists: in.FileExists,
		FlagExists: in.FlagExists,
	}
	hour := in.Now.Hour()

	switch {
	case !in.FileExists:
		d.Reason = "no output file for " + string(d.Date)
	case hour == in.SendHour:
		d.Send = true
		d.Reason = "send hour"
	case hour > in.SendHour && !in.FlagExists:
		d.Send = true
		d.Reason = "catch-up after send hour"
	case hour > in.SendHour:
		d.Reason = "already sent"
	default:
		d.Reason = fmt.Sprintf("before send hour %02d", in.SendHour)
	}
	return d
}

// Record converts the decision to its journal form.
func (d Decision) Record() *types.DeliveryDecision {
	return &types.DeliveryDecision{
		Date:       string(d.Date),
		Hour:       d.Hour,
		FileExists: d.FileExists,
		FlagExists: d.FlagExists,
		Send:       d.Send,
		Reason:     d.Reason,
	}
}

// Presence answers whether a file exists in the repository working copy.
type Presence interface {
	Exists(name string) (bool, error)
}

// Evaluator gathers the decider inputs for yesterday from the repository.
type Evaluator struct {
	Calendar *calendar.Calendar
	Naming   calendar.Naming
	SendHour int
}

// Evaluate reads F and S for yesterday and decides. The attachment name is
// returned alongside so callers do not recompute it.
func (e *Evaluator) Evaluate(store Presence) (Decision, string, error) {
	now := e.Calendar.Now()
	yesterday := calendar.KeyOf(now.AddDate(0, 0, -1))
	attachment := e.Naming.Output(yesterday)

	fileExists, err := store.Exists(attachment)
	if err != nil {
		return Decision{}, "", fmt.Errorf("check %s: %w", attachment, err)
	}
	flagExists, err := store.Exists(e.Naming.Flag(yesterday))
	if err != nil {
		return Decision{}, "", fmt.Errorf("check %s: %w", e.Naming.Flag(yesterday), err)
	}

	d := Decide(Input{
		Now:        now,
		SendHour:   e.SendHour,
		FileExists: fileExists,
		FlagExists: flagExists,
	})
	return d, attachment, nil
}
