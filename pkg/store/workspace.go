package store

import (
	"context"
	"fmt"

	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

// TargetPolicy decides which widgets an automation writes to when the board
// holds more than one widget of the target kind.
type TargetPolicy int

const (
	// TargetAll writes every matching widget.
	TargetAll TargetPolicy = iota
	// TargetFirst writes the first match in board order.
	TargetFirst
	// TargetUnique writes only when exactly one widget matches; more than
	// one is ErrAmbiguousTarget.
	TargetUnique
)

func (p TargetPolicy) String() string {
	switch p {
	case TargetAll:
		return "all"
	case TargetFirst:
		return "first"
	case TargetUnique:
		return "unique"
	default:
		return fmt.Sprintf("TargetPolicy(%d)", int(p))
	}
}

// ParseTargetPolicy parses "all", "first" or "unique".
func ParseTargetPolicy(s string) (TargetPolicy, error) {
	for _, p := range []TargetPolicy{TargetAll, TargetFirst, TargetUnique} {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("store: unknown target policy %q", s)
}

// Workspace resolves automation targets by kind against a live board.
type Workspace struct {
	reader Reader
	policy TargetPolicy
}

// NewWorkspace wraps r with a resolution policy.
func NewWorkspace(r Reader, policy TargetPolicy) *Workspace {
	return &Workspace{reader: r, policy: policy}
}

// Policy returns the workspace's target policy.
func (w *Workspace) Policy() TargetPolicy {
	return w.policy
}

// Reader returns the underlying board view.
func (w *Workspace) Reader() Reader {
	return w.reader
}

// FindByKind returns the widgets of kind the policy selects. No match is an
// empty result, not an error.
func (w *Workspace) FindByKind(ctx context.Context, kind widget.Kind) ([]widget.Widget, error) {
	matches, err := w.all(ctx, kind)
	if err != nil {
		return nil, err
	}

	switch w.policy {
	case TargetFirst:
		if len(matches) > 1 {
			matches = matches[:1]
		}
	case TargetUnique:
		if len(matches) > 1 {
			return nil, fmt.Errorf("%w: %d widgets of kind %s", ErrAmbiguousTarget, len(matches), kind)
		}
	}
	return matches, nil
}

// FindFirstByKind returns the first widget of kind in board order,
// regardless of policy.
func (w *Workspace) FindFirstByKind(ctx context.Context, kind widget.Kind) (widget.Widget, bool, error) {
	matches, err := w.all(ctx, kind)
	if err != nil || len(matches) == 0 {
		return widget.Widget{}, false, err
	}
	return matches[0], true, nil
}

// Has reports whether at least one widget of kind is on the board.
func (w *Workspace) Has(ctx context.Context, kind widget.Kind) (bool, error) {
	_, ok, err := w.FindFirstByKind(ctx, kind)
	return ok, err
}

func (w *Workspace) all(ctx context.Context, kind widget.Kind) ([]widget.Widget, error) {
	widgets, err := w.reader.Widgets(ctx)
	if err != nil {
		return nil, err
	}
	var out []widget.Widget
	for _, wd := range widgets {
		if wd.Kind == kind {
			out = append(out, wd)
		}
	}
	return out, nil
}
