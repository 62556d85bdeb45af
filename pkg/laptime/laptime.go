// Package laptime converts between absolute video time, lap relative graph
// time and the session level sync offset. All values are seconds.
package laptime

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseSyncTime parses a session sync offset of the form HH:MM:SS[.fff].
// Empty or malformed input yields 0.
func ParseSyncTime(s string) float64 {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0
	}
	hours, ok := parseWhole(parts[0])
	if !ok {
		return 0
	}
	minutes, ok := parseWhole(parts[1])
	if !ok || minutes >= 60 {
		return 0
	}
	secs, ok := parseSeconds(parts[2])
	if !ok || secs >= 60 {
		return 0
	}
	return float64(hours*3600+minutes*60) + secs
}

func parseWhole(s string) (int, bool) {
	if s == "" || strings.ContainsAny(s, "+-") {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseSeconds(s string) (float64, bool) {
	whole, frac, hasFrac := strings.Cut(s, ".")
	if _, ok := parseWhole(whole); !ok {
		return 0, false
	}
	if hasFrac {
		if frac == "" {
			return 0, false
		}
		if _, ok := parseWhole(frac); !ok {
			return 0, false
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FormatSyncTime renders seconds as HH:MM:SS.fff. Negative values render as
// zero.
func FormatSyncTime(secs float64) string {
	if secs < 0 || math.IsNaN(secs) {
		secs = 0
	}
	millis := int64(math.Round(secs * 1000))
	h := millis / 3_600_000
	m := (millis / 60_000) % 60
	s := (millis / 1000) % 60
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// GraphTime maps an absolute video time to the lap relative time. Positions
// before the lap start clamp to 0.
func GraphTime(videoTime, lapStartVideoTime float64) float64 {
	return math.Max(0, videoTime-lapStartVideoTime)
}

// VideoTime maps a lap relative time back to the absolute video time.
func VideoTime(graphTime, lapStartVideoTime float64) float64 {
	return lapStartVideoTime + graphTime
}

// Window is the absolute video time span covered by a lap.
type Window struct {
	Start float64
	End   float64
}

// LapWindow computes the video window of a lap whose bounds are given in
// session time, shifted by the session sync offset.
func LapWindow(syncOffset, lapStart, lapEnd float64) Window {
	return Window{Start: syncOffset + lapStart, End: syncOffset + lapEnd}
}

func (w Window) Duration() float64 {
	return math.Max(0, w.End-w.Start)
}

// HasEnd reports whether the window carries a usable end bound.
func (w Window) HasEnd() bool {
	return w.End > w.Start
}

func (w Window) Contains(videoTime float64) bool {
	return videoTime >= w.Start && (!w.HasEnd() || videoTime <= w.End)
}
