package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/intelstore/internal/ir"
	"github.com/roach88/intelstore/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Target   string // run or item the assertion is about
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s %s\n", e.Type, e.Target)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

// AssertionContext provides the session assertions read through.
type AssertionContext struct {
	Session *store.Session
	Ctx     context.Context
}

// EvaluateAssertions evaluates all assertions against the store.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error
		if actx == nil || actx.Session == nil {
			err = fmt.Errorf("assertion[%d]: %s requires a store session", i, assertion.Type)
		} else {
			err = evaluate(actx.Ctx, actx.Session, assertion)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(ctx context.Context, sess *store.Session, a Assertion) error {
	switch a.Type {
	case AssertRun:
		return assertRun(ctx, sess, a)
	case AssertItem:
		return assertItem(ctx, sess, a)
	case AssertItemCount:
		return assertItemCount(ctx, sess, a)
	case AssertItemOrder:
		return assertItemOrder(ctx, sess, a)
	case AssertTelemetry:
		return assertTelemetry(ctx, sess, a)
	}
	return fmt.Errorf("unknown assertion type: %s", a.Type)
}

func assertRun(ctx context.Context, sess *store.Session, a Assertion) error {
	run, err := sess.GetRun(ctx, a.RunID)
	if err != nil {
		return lookupFailure(a, a.RunID, err)
	}
	actual := runObject(run)
	actual["settings"] = run.SettingsSnapshot
	return matchFields(a, a.RunID, actual)
}

func assertItem(ctx context.Context, sess *store.Session, a Assertion) error {
	items, err := sess.ListItemsForRun(ctx, a.RunID)
	if err != nil {
		return lookupFailure(a, a.RunID, err)
	}
	target := a.RunID + "/" + a.ItemID
	for _, item := range items {
		if item.ItemID == a.ItemID {
			return matchFields(a, target, itemObject(item))
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Target:   target,
		Expected: "item present",
		Actual:   "not found",
	}
}

func assertItemCount(ctx context.Context, sess *store.Session, a Assertion) error {
	items, err := sess.ListItemsForRun(ctx, a.RunID)
	if err != nil {
		return lookupFailure(a, a.RunID, err)
	}
	if len(items) != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Target:   a.RunID,
			Expected: fmt.Sprintf("%d items", a.Count),
			Actual:   fmt.Sprintf("%d items", len(items)),
		}
	}
	return nil
}

func assertItemOrder(ctx context.Context, sess *store.Session, a Assertion) error {
	items, err := sess.ListItemsForRun(ctx, a.RunID)
	if err != nil {
		return lookupFailure(a, a.RunID, err)
	}
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ItemID
	}
	if !slices.Equal(ids, a.Items) {
		return &AssertionError{
			Type:     a.Type,
			Target:   a.RunID,
			Expected: fmt.Sprintf("%v", a.Items),
			Actual:   fmt.Sprintf("%v", ids),
		}
	}
	return nil
}

func assertTelemetry(ctx context.Context, sess *store.Session, a Assertion) error {
	rec, err := sess.GetTelemetry(ctx, a.RunID)
	if err != nil {
		return lookupFailure(a, a.RunID, err)
	}
	return matchFields(a, a.RunID, rec.Payload)
}

// lookupFailure reports a missing record as an assertion failure and any
// other store error as is.
func lookupFailure(a Assertion, target string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &AssertionError{
			Type:     a.Type,
			Target:   target,
			Expected: "record present",
			Actual:   "not found",
		}
	}
	return fmt.Errorf("%s %s: %w", a.Type, target, err)
}

// matchFields checks that every expected field is present in actual with an
// equal value. Extra fields in actual are ignored.
func matchFields(a Assertion, target string, actual ir.Object) error {
	v, err := ir.FromAny(a.Expect)
	if err != nil {
		return fmt.Errorf("%s %s: expect: %w", a.Type, target, err)
	}
	expected, ok := v.(ir.Object)
	if !ok {
		return fmt.Errorf("%s %s: expect must be an object", a.Type, target)
	}
	for _, key := range expected.SortedKeys() {
		want := expected[key]
		got, ok := actual[key]
		if !ok {
			return &AssertionError{
				Type:     a.Type,
				Target:   target,
				Expected: fmt.Sprintf("field %q = %s", key, render(want)),
				Actual:   "field missing",
			}
		}
		if !ir.Equal(got, want) {
			return &AssertionError{
				Type:     a.Type,
				Target:   target,
				Expected: fmt.Sprintf("field %q = %s", key, render(want)),
				Actual:   fmt.Sprintf("field %q = %s", key, render(got)),
			}
		}
	}
	return nil
}

func render(v ir.Value) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
