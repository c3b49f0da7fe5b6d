package traversal

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/storyview/storyview/internal/pagectl"
)

// fakeClock advances only when slept on.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// storyPage simulates a story viewer. The "next" affordance is visible
// while nextFor is negative or greater than the number of presses.
type storyPage struct {
	redirect   string
	video      bool
	nextFor    int
	leaveAfter int
	beginReady bool
	pressErrAt int
	navErr     error

	url     string
	presses int
	clicks  int
	signals *fakeSignals
}

func (p *storyPage) Navigate(_ context.Context, u string) error {
	if p.navErr != nil {
		return p.navErr
	}
	p.url = u
	if p.redirect != "" {
		p.url = p.redirect
	}
	return nil
}

func (p *storyPage) CurrentURL(context.Context) (string, error) {
	if p.leaveAfter > 0 && p.presses >= p.leaveAfter {
		return "https://www.instagram.com/", nil
	}
	return p.url, nil
}

func (p *storyPage) Has(_ context.Context, sel string) (bool, error) {
	return sel == "video" && p.video, nil
}

func (p *storyPage) Count(context.Context, string) (int, error) {
	if p.nextFor < 0 || p.presses < p.nextFor {
		return 1, nil
	}
	return 0, nil
}

func (p *storyPage) Eval(context.Context, string, ...any) (any, error) { return nil, nil }

func (p *storyPage) PressKey(_ context.Context, key pagectl.Key) error {
	if key != pagectl.KeyArrowRight {
		return errors.New("unexpected key")
	}
	if p.pressErrAt > 0 && p.presses+1 == p.pressErrAt {
		return &pagectl.DriverError{Op: "press", Err: errors.New("target closed")}
	}
	p.presses++
	if p.signals != nil {
		p.signals.flag = true
	}
	return nil
}

func (p *storyPage) ClickWhenReady(context.Context, string, time.Duration) error {
	if !p.beginReady {
		return pagectl.ErrElementTimeout
	}
	p.clicks++
	return nil
}

func (p *storyPage) InputWhenReady(context.Context, string, string, time.Duration) error {
	return nil
}

// fakeSignals mirrors the page flag. scripted values are OR-ed into
// successive reads to simulate manual advances.
type fakeSignals struct {
	flag       bool
	scripted   []bool
	always     bool
	installs   int
	installErr error
}

func (s *fakeSignals) Install(context.Context) error {
	s.installs++
	return s.installErr
}

func (s *fakeSignals) ConsumeAndReset(context.Context) (bool, error) {
	v := s.flag || s.always
	s.flag = false
	if len(s.scripted) > 0 {
		v = v || s.scripted[0]
		s.scripted = s.scripted[1:]
	}
	return v, nil
}

func newController(page *storyPage, sig *fakeSignals, clk *fakeClock, mut func(*Config)) *Controller {
	page.signals = sig
	cfg := Config{
		Selectors: Selectors{
			Video: "video",
			Begin: "div[role='button']",
			Next:  []string{"div.next", "svg[aria-label='Next']"},
		},
		Clock: clk,
	}
	if mut != nil {
		mut(&cfg)
	}
	return New(page, sig, cfg)
}

func TestView_NoNextCompletesAtOne(t *testing.T) {
	page := &storyPage{nextFor: 0}
	sig := &fakeSignals{}
	clk := &fakeClock{now: time.Unix(0, 0)}

	res := newController(page, sig, clk, nil).View(context.Background(), "alice")
	if res.Outcome != Completed {
		t.Fatalf("Outcome: got %s, want completed (err=%v)", res.Outcome, res.Err)
	}
	if res.Stories != 1 {
		t.Errorf("Stories: got %d, want 1", res.Stories)
	}
	if page.presses != 0 {
		t.Errorf("presses: got %d, want 0", page.presses)
	}
	if sig.installs != 1 {
		t.Errorf("installs: got %d, want 1", sig.installs)
	}
}

func TestView_RedirectIsNoContent(t *testing.T) {
	page := &storyPage{redirect: "https://www.instagram.com/", nextFor: -1}
	sig := &fakeSignals{}
	clk := &fakeClock{now: time.Unix(0, 0)}

	res := newController(page, sig, clk, nil).View(context.Background(), "bob")
	if res.Outcome != NoContent {
		t.Fatalf("Outcome: got %s, want no_content", res.Outcome)
	}
	if res.Err != nil {
		t.Errorf("Err: got %v, want nil", res.Err)
	}
	if sig.installs != 0 || page.presses != 0 || page.clicks != 0 {
		t.Errorf("loop entered: installs=%d presses=%d clicks=%d", sig.installs, page.presses, page.clicks)
	}
	if len(clk.sleeps) != 1 || clk.sleeps[0] != 5*time.Second {
		t.Errorf("sleeps: got %v, want only the load settle", clk.sleeps)
	}
}

func TestView_AlwaysNextReachesMaxStories(t *testing.T) {
	page := &storyPage{nextFor: -1}
	sig := &fakeSignals{}
	clk := &fakeClock{now: time.Unix(0, 0)}

	res := newController(page, sig, clk, nil).View(context.Background(), "carol")
	if res.Outcome != Completed {
		t.Fatalf("Outcome: got %s, want completed (err=%v)", res.Outcome, res.Err)
	}
	if res.Stories != 30 {
		t.Errorf("Stories: got %d, want 30", res.Stories)
	}
	if page.presses != 29 || res.Advances != 29 {
		t.Errorf("advances: presses=%d Advances=%d, want 29", page.presses, res.Advances)
	}
}

func TestView_TimeBound(t *testing.T) {
	page := &storyPage{nextFor: -1, video: true}
	sig := &fakeSignals{}
	clk := &fakeClock{now: time.Unix(0, 0)}
	maxWait := 60 * time.Second

	res := newController(page, sig, clk, func(c *Config) { c.MaxWait = maxWait }).
		View(context.Background(), "dave")
	if res.Outcome != TimedOut {
		t.Fatalf("Outcome: got %s, want timed_out", res.Outcome)
	}
	if page.presses != 7 {
		t.Errorf("presses: got %d, want 7", page.presses)
	}
	if res.Stories != 8 {
		t.Errorf("Stories: got %d, want 8", res.Stories)
	}
	loop := res.Elapsed - 5*time.Second // minus load settle
	if loop > maxWait+10*time.Second {
		t.Errorf("loop duration %s exceeds bound plus one dwell", loop)
	}
}

func TestView_ManualAdvanceStillAdvances(t *testing.T) {
	page := &storyPage{nextFor: -1}
	sig := &fakeSignals{scripted: []bool{true, false, true, false}}
	clk := &fakeClock{now: time.Unix(0, 0)}

	res := newController(page, sig, clk, nil).View(context.Background(), "erin")
	if res.Outcome != Completed {
		t.Fatalf("Outcome: got %s (err=%v)", res.Outcome, res.Err)
	}
	if res.Stories != 30 {
		t.Errorf("Stories: got %d, want 30", res.Stories)
	}
	// Every cycle that sees the next affordance sends ArrowRight, including
	// the first one where a manual advance was recorded. The third scripted
	// read lands on the clear after our own keystroke and is absorbed.
	dwells := 0
	for _, d := range clk.sleeps {
		if d == 5*time.Second {
			dwells++
		}
	}
	dwells-- // load settle
	if page.presses != 28 || res.Advances != 28 {
		t.Errorf("advances: presses=%d Advances=%d, want 28", page.presses, res.Advances)
	}
	if dwells != page.presses {
		t.Errorf("dwells=%d presses=%d: a cycle with next visible sent no advance", dwells, page.presses)
	}
}

func TestView_ManualAdvanceSameCycle(t *testing.T) {
	page := &storyPage{nextFor: 1, video: true}
	sig := &fakeSignals{scripted: []bool{true}}
	clk := &fakeClock{now: time.Unix(0, 0)}

	res := newController(page, sig, clk, nil).View(context.Background(), "erin")
	if res.Outcome != Completed {
		t.Fatalf("Outcome: got %s (err=%v)", res.Outcome, res.Err)
	}
	// Cycle 1: manual advance counted and ArrowRight pressed. Cycle 2: the
	// next affordance is gone, so the sequence ends.
	if res.Stories != 3 {
		t.Errorf("Stories: got %d, want 3", res.Stories)
	}
	if page.presses != 1 {
		t.Errorf("presses: got %d, want 1", page.presses)
	}
	dwells := 0
	for _, d := range clk.sleeps {
		if d == 10*time.Second {
			dwells++
		}
	}
	if dwells != 2 {
		t.Errorf("video dwells: got %d, want 2", dwells)
	}
}

func TestView_CountSaturates(t *testing.T) {
	page := &storyPage{nextFor: -1}
	sig := &fakeSignals{always: true}
	clk := &fakeClock{now: time.Unix(0, 0)}

	res := newController(page, sig, clk, func(c *Config) { c.MaxStories = 5 }).
		View(context.Background(), "frank")
	if res.Outcome != Completed {
		t.Fatalf("Outcome: got %s", res.Outcome)
	}
	// Cycle 1: 1 -> 2 (manual) -> 3 (manual) -> 4 (press). Cycle 2: 5, then
	// the second manual signal would reach 6 and is capped; no press at the cap.
	if res.Stories != 5 {
		t.Errorf("Stories: got %d, want 5", res.Stories)
	}
	if page.presses != 1 {
		t.Errorf("presses: got %d, want 1", page.presses)
	}
}

func TestView_LeavesSurface(t *testing.T) {
	page := &storyPage{nextFor: -1, leaveAfter: 3}
	sig := &fakeSignals{}
	clk := &fakeClock{now: time.Unix(0, 0)}

	res := newController(page, sig, clk, nil).View(context.Background(), "gina")
	if res.Outcome != Completed {
		t.Fatalf("Outcome: got %s", res.Outcome)
	}
	if res.Stories != 4 || res.Advances != 3 {
		t.Errorf("got Stories=%d Advances=%d, want 4 and 3", res.Stories, res.Advances)
	}
}

func TestView_DriverErrorFails(t *testing.T) {
	page := &storyPage{nextFor: -1, pressErrAt: 2}
	sig := &fakeSignals{}
	clk := &fakeClock{now: time.Unix(0, 0)}

	res := newController(page, sig, clk, nil).View(context.Background(), "hank")
	if res.Outcome != Failed {
		t.Fatalf("Outcome: got %s, want failed", res.Outcome)
	}
	var de *pagectl.DriverError
	if !errors.As(res.Err, &de) {
		t.Fatalf("Err: got %v, want *DriverError", res.Err)
	}
	if res.Stories != 2 {
		t.Errorf("Stories: got %d, want 2", res.Stories)
	}
}

func TestView_NavigateErrorFails(t *testing.T) {
	page := &storyPage{navErr: &pagectl.DriverError{Op: "navigate", Err: errors.New("boom")}}
	res := newController(page, &fakeSignals{}, &fakeClock{}, nil).View(context.Background(), "ivy")
	if res.Outcome != Failed || res.Err == nil {
		t.Fatalf("got %s / %v, want failed with reason", res.Outcome, res.Err)
	}
}

func TestView_ClicksBeginButton(t *testing.T) {
	page := &storyPage{beginReady: true}
	res := newController(page, &fakeSignals{}, &fakeClock{}, nil).View(context.Background(), "jack")
	if res.Outcome != Completed {
		t.Fatalf("Outcome: got %s", res.Outcome)
	}
	if page.clicks != 1 {
		t.Errorf("clicks: got %d, want 1", page.clicks)
	}
}

func TestView_InstallScriptErrorContinues(t *testing.T) {
	page := &storyPage{nextFor: 2}
	sig := &fakeSignals{installErr: pagectl.ErrScript}
	res := newController(page, sig, &fakeClock{}, nil).View(context.Background(), "kim")
	if res.Outcome != Completed || res.Stories != 3 {
		t.Fatalf("got %s / %d stories, want completed / 3", res.Outcome, res.Stories)
	}
}

func TestView_DwellBySurface(t *testing.T) {
	for _, tc := range []struct {
		name  string
		video bool
		want  time.Duration
	}{
		{"image", false, 5 * time.Second},
		{"video", true, 10 * time.Second},
	} {
		t.Run(tc.name, func(t *testing.T) {
			page := &storyPage{video: tc.video}
			clk := &fakeClock{}
			newController(page, &fakeSignals{}, clk, nil).View(context.Background(), "lee")
			// load settle, then one dwell
			if len(clk.sleeps) != 2 || clk.sleeps[1] != tc.want {
				t.Errorf("sleeps: got %v, want [5s %s]", clk.sleeps, tc.want)
			}
		})
	}
}

func TestView_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	page := &storyPage{nextFor: -1}
	res := newController(page, &fakeSignals{}, &fakeClock{}, nil).View(ctx, "mo")
	if res.Outcome != Failed || !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("got %s / %v, want failed with context.Canceled", res.Outcome, res.Err)
	}
}

func TestStoryURL(t *testing.T) {
	c := New(&storyPage{}, &fakeSignals{}, Config{BaseURL: "https://example.test/"})
	got := c.StoryURL("some user")
	if got != "https://example.test/stories/some%20user/" {
		t.Errorf("StoryURL: got %q", got)
	}
	if !strings.Contains(c.StoryURL("x"), "/stories/") {
		t.Error("StoryURL: missing surface marker")
	}
}
