package hover

import "fmt"

// Event is a point in time notification of the lap relative cursor.
// A nil Time means there is no active cursor.
type Event struct {
	Time *float64
	// UserInitiated is true for events produced by pointer interaction and
	// false for events relayed from the playback driver.
	UserInitiated bool
	// Seek marks a user interaction that asks for the video to be
	// repositioned (drag, click). Plain hovers leave it false.
	Seek bool
}

func At(t float64, userInitiated bool) Event {
	return Event{Time: &t, UserInitiated: userInitiated}
}

func SeekTo(t float64) Event {
	return Event{Time: &t, UserInitiated: true, Seek: true}
}

func Cleared(userInitiated bool) Event {
	return Event{UserInitiated: userInitiated}
}

func (e Event) Value() (float64, bool) {
	if e.Time == nil {
		return 0, false
	}
	return *e.Time, true
}

func (e Event) String() string {
	if e.Time == nil {
		return fmt.Sprintf("hover(nil user=%t)", e.UserInitiated)
	}
	return fmt.Sprintf("hover(%.3f user=%t seek=%t)", *e.Time, e.UserInitiated, e.Seek)
}
