package model

import (
	"slices"

	"github.com/mpapenbr/lapsync/pkg/laptime"
)

// Session is the metadata of a recorded session as delivered by the
// telemetry API.
//
//nolint:tagliatelle // client compatibility
type Session struct {
	ID       string   `json:"id" yaml:"id"`
	Driver   string   `json:"driver" yaml:"driver"`
	Location string   `json:"location" yaml:"location"`
	Laps     []Lap    `json:"laps" yaml:"laps"`
	Channels []string `json:"channels" yaml:"channels"`
	VideoURL string   `json:"videoUrl" yaml:"videoUrl"`
	SyncTime string   `json:"syncTime" yaml:"syncTime"`
}

// Lap bounds are seconds in session time.
type Lap struct {
	Number int     `json:"lap" yaml:"lap"`
	Start  float64 `json:"start" yaml:"start"`
	End    float64 `json:"end" yaml:"end"`
}

// SyncOffset is the video time of session time zero.
func (s *Session) SyncOffset() float64 {
	return laptime.ParseSyncTime(s.SyncTime)
}

func (s *Session) FindLap(num int) (Lap, bool) {
	idx := slices.IndexFunc(s.Laps, func(l Lap) bool { return l.Number == num })
	if idx < 0 {
		return Lap{}, false
	}
	return s.Laps[idx], true
}

// LapWindow returns the absolute video window of the lap.
func (s *Session) LapWindow(l Lap) laptime.Window {
	return laptime.LapWindow(s.SyncOffset(), l.Start, l.End)
}

func (s *Session) HasChannel(name string) bool {
	return slices.Contains(s.Channels, name)
}
