package traversal

import "time"

// Outcome is the terminal state of one traversal.
type Outcome int

const (
	// Completed means the sequence ended naturally or hit the story cap.
	Completed Outcome = iota
	// NoContent means the identifier has no viewable story surface.
	NoContent
	// TimedOut means the loop stopped only because of the time bound.
	TimedOut
	// Failed means a browser driver failure aborted the traversal.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case NoContent:
		return "no_content"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Result reports how one identifier's traversal ended.
type Result struct {
	Identifier string
	Outcome    Outcome
	// Stories is the final story count; 0 when the loop was never entered.
	Stories int
	// Advances counts synthetic advance keystrokes issued.
	Advances int
	Elapsed  time.Duration
	// Err is the failure reason when Outcome is Failed.
	Err error
}

// Surface classifies what the page currently shows.
type Surface int

const (
	Absent Surface = iota
	Image
	Video
)

func (s Surface) String() string {
	switch s {
	case Image:
		return "image"
	case Video:
		return "video"
	}
	return "none"
}
