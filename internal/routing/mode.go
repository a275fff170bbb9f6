package routing

import "strings"

// TravelMode selects how collision and crime risk are weighted.
type TravelMode string

const (
	Walking TravelMode = "walking"
	Driving TravelMode = "driving"
	Cycling TravelMode = "cycling"
)

// ModeWeights are the blend weights of one travel mode. They sum to 1.
type ModeWeights struct {
	Crash float64
	Crime float64
}

var modeWeights = map[TravelMode]ModeWeights{
	Walking: {Crash: 0.3, Crime: 0.7},
	Driving: {Crash: 0.9, Crime: 0.1},
	Cycling: {Crash: 0.5, Crime: 0.5},
}

// ParseTravelMode normalizes a mode name. Unknown names map to walking.
func ParseTravelMode(s string) TravelMode {
	m := TravelMode(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := modeWeights[m]; ok {
		return m
	}
	return Walking
}

// Weights returns the mode's blend weights, walking for unknown modes.
func (m TravelMode) Weights() ModeWeights {
	if w, ok := modeWeights[m]; ok {
		return w
	}
	return modeWeights[Walking]
}
