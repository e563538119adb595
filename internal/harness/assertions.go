package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/chatsync/internal/chat"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s", ev.Step, ev.Do, ev.Client)
			if ev.ID != "" {
				fmt.Fprintf(&buf, " -> %s", ev.ID)
			}
			if ev.Error != "" {
				fmt.Fprintf(&buf, " (error: %s)", ev.Error)
			}
			fmt.Fprintln(&buf)
		}
	}

	return buf.String()
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertLog:
			err = assertLog(result, assertion)
		case AssertConverged:
			err = assertConverged(result, assertion)
		case AssertReactions:
			err = assertReactions(result, assertion)
		case AssertMessage:
			err = assertMessage(result, assertion)
		case AssertRetained:
			err = assertRetained(result, assertion)
		case AssertStatus:
			err = assertStatus(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}

func idsOf(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

// assertLog checks a client's log ids, in order.
func assertLog(result *Result, a Assertion) error {
	msgs, ok := result.State.Logs[a.Client]
	if !ok {
		return fmt.Errorf("log assertion: client %q never joined", a.Client)
	}
	got := idsOf(msgs)
	if diff := cmp.Diff(a.IDs, got, cmpEmpty); diff != "" {
		return &AssertionError{
			Type:     AssertLog,
			Expected: fmt.Sprintf("%s log %v", a.Client, a.IDs),
			Actual:   fmt.Sprintf("%v (-want +got):\n%s", got, diff),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertConverged checks that clients hold identical logs. With no
// clients named, every connected client is compared.
func assertConverged(result *Result, a Assertion) error {
	names := a.Clients
	if len(names) == 0 {
		for name, status := range result.State.Status {
			if status == "Connected" {
				names = append(names, name)
			}
		}
		sort.Strings(names)
	}
	if len(names) < 2 {
		return nil
	}

	first := result.State.Logs[names[0]]
	for _, name := range names[1:] {
		if diff := cmp.Diff(first, result.State.Logs[name], cmpEmpty); diff != "" {
			return &AssertionError{
				Type:     AssertConverged,
				Expected: fmt.Sprintf("%s and %s hold the same log", names[0], name),
				Actual:   fmt.Sprintf("logs differ (-%s +%s):\n%s", names[0], name, diff),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

// assertReactions checks the reactor set for one emoji, ignoring order.
func assertReactions(result *Result, a Assertion) error {
	m, err := findMessage(result, a)
	if err != nil {
		return err
	}
	got := m.Reactions.Reactors(a.Emoji)
	want := slices.Clone(a.Actors)
	slices.Sort(got)
	slices.Sort(want)
	if diff := cmp.Diff(want, got, cmpEmpty); diff != "" {
		return &AssertionError{
			Type:     AssertReactions,
			Expected: fmt.Sprintf("%s on %s for %s: %v", a.Emoji, a.Message, a.Client, want),
			Actual:   fmt.Sprintf("%v", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertMessage checks a message's text and reply quote. Empty fields
// are not checked.
func assertMessage(result *Result, a Assertion) error {
	m, err := findMessage(result, a)
	if err != nil {
		return err
	}
	if a.Text != "" && m.Text != a.Text {
		return &AssertionError{
			Type:     AssertMessage,
			Expected: fmt.Sprintf("%s text %q", a.Message, a.Text),
			Actual:   fmt.Sprintf("%q", m.Text),
			Trace:    result.Trace,
		}
	}
	if a.Quote != "" {
		actual := "no reply reference"
		if m.ReplyTo != nil {
			if m.ReplyTo.Text == a.Quote {
				return nil
			}
			actual = fmt.Sprintf("quote %q", m.ReplyTo.Text)
		}
		return &AssertionError{
			Type:     AssertMessage,
			Expected: fmt.Sprintf("%s quotes %q", a.Message, a.Quote),
			Actual:   actual,
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertRetained checks the retained snapshot's ids. An absent snapshot
// matches an empty list.
func assertRetained(result *Result, a Assertion) error {
	got := idsOf(result.State.Retained)
	if diff := cmp.Diff(a.IDs, got, cmpEmpty); diff != "" {
		return &AssertionError{
			Type:     AssertRetained,
			Expected: fmt.Sprintf("retained snapshot %v", a.IDs),
			Actual:   fmt.Sprintf("%v", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertStatus(result *Result, a Assertion) error {
	got, ok := result.State.Status[a.Client]
	if !ok {
		return fmt.Errorf("status assertion: client %q never joined", a.Client)
	}
	if got != a.Status {
		return &AssertionError{
			Type:     AssertStatus,
			Expected: fmt.Sprintf("%s status %q", a.Client, a.Status),
			Actual:   fmt.Sprintf("%q", got),
		}
	}
	return nil
}

func findMessage(result *Result, a Assertion) (chat.Message, error) {
	msgs, ok := result.State.Logs[a.Client]
	if !ok {
		return chat.Message{}, fmt.Errorf("%s assertion: client %q never joined", a.Type, a.Client)
	}
	for _, m := range msgs {
		if m.ID == a.Message {
			return m, nil
		}
	}
	return chat.Message{}, &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("message %s in %s's log", a.Message, a.Client),
		Actual:   fmt.Sprintf("log %v", idsOf(msgs)),
		Trace:    result.Trace,
	}
}

// cmpEmpty treats nil and empty slices as equal.
var cmpEmpty = cmp.FilterValues(func(x, y []string) bool {
	return len(x) == 0 && len(y) == 0
}, cmp.Comparer(func(_, _ []string) bool { return true }))
