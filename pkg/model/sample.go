package model

// ChannelSample is one value of a telemetry channel. Time is lap relative.
//
//nolint:tagliatelle // wire format of the telemetry API
type ChannelSample struct {
	Time  float64 `json:"s" yaml:"s"`
	Value float64 `json:"d" yaml:"d"`
}

// TrackSample is one GPS position of the car. Time is lap relative.
type TrackSample struct {
	Time float64 `json:"time"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Bounds struct {
	SouthWest LatLng `json:"sw"`
	NorthEast LatLng `json:"ne"`
}

func (t TrackSample) Position() LatLng {
	return LatLng{Lat: t.Lat, Lng: t.Lng}
}
