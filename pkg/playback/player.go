package playback

import (
	"context"
	"fmt"
)

type PlayerState int

const (
	StateUnstarted PlayerState = iota
	StateReady
	StatePlaying
	StatePaused
	StateEnded
	StateError
)

func (s PlayerState) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("PlayerState(%d)", int(s))
}

// PlayerHandle is the capability set the driver needs from an embedded
// video player. Positions are absolute video seconds.
type PlayerHandle interface {
	CurrentPosition() float64
	Seek(t float64)
	Play()
	Pause()
	Dispose()
}

// PlayerEvents receives what the player reports. Implementations of
// PlayerHandle may call these from any goroutine. Events of a disposed player
// are ignored.
type PlayerEvents interface {
	StateChanged(PlayerState)
	Failed(error)
}

// PlayerFactory creates a player for a video id. An error is treated like a
// failed script load: the driver enters the error state and waits for Retry.
type PlayerFactory func(ctx context.Context, videoID string, events PlayerEvents) (PlayerHandle, error)

// AuthorityOwner tells who currently owns the shared video time.
type AuthorityOwner int

const (
	// OwnerDriver means the driver advances the video time from its ticks.
	OwnerDriver AuthorityOwner = iota
	// OwnerManualSeek means a manual seek is in flight. The next tick
	// consumes it and hands authority back to the driver.
	OwnerManualSeek
)

func (o AuthorityOwner) String() string {
	if o == OwnerManualSeek {
		return "manual-seek"
	}
	return "driver"
}
