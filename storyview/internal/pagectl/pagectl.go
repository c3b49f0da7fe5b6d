// Package pagectl defines the page controller capability the story
// traversal runs against, and the error taxonomy its implementations map
// browser failures onto.
package pagectl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Key names a keyboard key understood by PressKey.
type Key string

const (
	KeyArrowRight Key = "ArrowRight"
	KeyEnter      Key = "Enter"
)

// ErrElementTimeout means an expected element did not appear or become
// clickable within its wait budget. Callers treat it as "feature absent".
var ErrElementTimeout = errors.New("pagectl: element wait timed out")

// ErrScript means a script could not run in the page context (navigation
// in progress, context destroyed, JS exception).
var ErrScript = errors.New("pagectl: script execution failed")

// DriverError is an underlying browser automation failure: crashed
// session, detached target, protocol error. It is not recoverable within
// the current traversal.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("pagectl: %s: %v", e.Op, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// Driver wraps err as a *DriverError for op. Context errors and errors
// already classified are returned unchanged.
func Driver(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, ErrElementTimeout) ||
		errors.Is(err, ErrScript) {
		return err
	}
	var de *DriverError
	if errors.As(err, &de) {
		return err
	}
	return &DriverError{Op: op, Err: err}
}

// IsXPath reports whether selector should be evaluated as XPath rather
// than CSS.
func IsXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(")
}

// Controller is the page-level capability used by the monitor, the login
// flow and the traversal controller. Lookups (Has, Count) never wait;
// the *WhenReady methods wait up to timeout and return ErrElementTimeout.
// Eval takes a JS function expression and returns its JSON-decoded result.
type Controller interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Has(ctx context.Context, selector string) (bool, error)
	Count(ctx context.Context, selector string) (int, error)
	Eval(ctx context.Context, js string, args ...any) (any, error)
	PressKey(ctx context.Context, key Key) error
	ClickWhenReady(ctx context.Context, selector string, timeout time.Duration) error
	InputWhenReady(ctx context.Context, selector, text string, timeout time.Duration) error
}
