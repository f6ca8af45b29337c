/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package colorguess holds the color guessing game: its state, the pure
// transition function, the randomization policy and the presentation model
// consumed by whatever renders the board.
package colorguess

import (
	"encoding/json"
	"slices"
)

// Color is a CSS hex color value, e.g. "#FF0000".
type Color string

// Status is the outcome of the most recent guess. The zero value means no
// guess has been graded yet.
type Status string

const (
	StatusNone    Status = ""
	StatusCorrect Status = "Correct!"
	StatusWrong   Status = "Wrong"
)

// Animation selects the visual feedback class applied to the status line.
type Animation string

const (
	AnimationNone      Animation = ""
	AnimationCelebrate Animation = "celebrate"
	AnimationFadeOut   Animation = "fade-out"
)

// PaletteSize is the number of swatches offered every round.
const PaletteSize = 6

// DefaultPalette returns a fresh copy of the built-in palette.
func DefaultPalette() []Color {
	return []Color{"#0000FF", "#00FF00", "#FF0000", "#FFFF00", "#FF00FF", "#00FFFF"}
}

// State is one snapshot of a game session. States are values: transitions
// return new ones and never modify the Colors slice they were given.
// MarshalJSON defines the wire format.
type State struct {
	Status          Status
	Score           int
	Colors          []Color
	TargetColor     Color
	ResultAnimation Animation
}

// NewState returns the neutral starting state using the default palette.
func NewState() State {
	return Initial(DefaultPalette())
}

// Initial returns the neutral starting state for the given palette.
func Initial(palette []Color) State {
	return State{Colors: slices.Clone(palette)}
}

// HasTarget reports whether the target is set and present in the palette.
func (s State) HasTarget() bool {
	return s.TargetColor != "" && slices.Contains(s.Colors, s.TargetColor)
}

func (s State) clone() State {
	s.Colors = slices.Clone(s.Colors)
	return s
}

// MarshalJSON encodes an unset status as null.
func (s State) MarshalJSON() ([]byte, error) {
	type wire struct {
		Status          *Status   `json:"status"`
		Score           int       `json:"score"`
		Colors          []Color   `json:"colors"`
		TargetColor     Color     `json:"targetColor"`
		ResultAnimation Animation `json:"resultAnimation"`
	}

	w := wire{
		Score:           s.Score,
		Colors:          s.Colors,
		TargetColor:     s.TargetColor,
		ResultAnimation: s.ResultAnimation,
	}
	if s.Status != StatusNone {
		status := s.Status
		w.Status = &status
	}
	if w.Colors == nil {
		w.Colors = []Color{}
	}

	return json.Marshal(w)
}
