// Package monitor detects human-style "advance" actions on a story page.
//
// Install registers two capture listeners at document level (clicks inside
// known navigation regions, ArrowRight key-presses) that raise a single
// page-global flag. ConsumeAndReset reads and clears that flag in one
// evaluation, so there is no window between the read and the clear.
package monitor

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/storyview/storyview/internal/pagectl"
)

//go:embed monitor.js
var monitorJS string

const consumeJS = `() => {
	const seen = window.__storyviewAdvance === true;
	window.__storyviewAdvance = false;
	return seen;
}`

// Monitor owns the advance flag of one page.
type Monitor struct {
	page    pagectl.Controller
	regions []string
	logger  *slog.Logger
}

// New creates a Monitor. regions are the CSS signatures whose clicks count
// as an advance.
func New(page pagectl.Controller, regions []string, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{page: page, regions: regions, logger: logger}
}

// Install injects the listeners into the current page context. A page that
// already carries them is left untouched. Navigating to a new document
// drops the listeners, so Install must run again after every navigation.
func (m *Monitor) Install(ctx context.Context) error {
	regions := m.regions
	if regions == nil {
		regions = []string{}
	}
	res, err := m.page.Eval(ctx, monitorJS, regions)
	if err != nil {
		return fmt.Errorf("monitor: install: %w", err)
	}
	if fresh, _ := res.(bool); fresh {
		m.logger.Debug("monitor: listeners installed", "regions", len(regions))
	} else {
		m.logger.Debug("monitor: listeners already present")
	}
	return nil
}

// ConsumeAndReset returns whether an advance happened since the previous
// call and clears the flag. When the page context is unavailable the
// result is false with no error; only driver failures are returned.
func (m *Monitor) ConsumeAndReset(ctx context.Context) (bool, error) {
	res, err := m.page.Eval(ctx, consumeJS)
	if err != nil {
		if errors.Is(err, pagectl.ErrScript) {
			m.logger.Debug("monitor: flag unavailable", "error", err)
			return false, nil
		}
		return false, fmt.Errorf("monitor: consume: %w", err)
	}
	seen, _ := res.(bool)
	return seen, nil
}
