/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package colorguess

import "strconv"

const (
	Title           = "Color Guessing Game"
	Instructions    = "Guess the correct color!"
	PlaceholderText = "Random color"
	StartLabel      = "Start Game"
)

// Option is one clickable swatch.
type Option struct {
	Value      Color  `json:"value"`
	Label      string `json:"label"`
	Background Color  `json:"background"`
	Foreground Color  `json:"foreground"`
	TestID     string `json:"testId"`
}

// View is everything a rendering surface needs to draw the board.
type View struct {
	Title         string   `json:"title"`
	BoxLabel      string   `json:"boxLabel"`
	BoxColor      Color    `json:"boxColor"`
	BoxForeground Color    `json:"boxForeground"`
	Instructions  string   `json:"instructions"`
	Options       []Option `json:"options"`
	StatusText    string   `json:"statusText"`
	StatusClass   string   `json:"statusClass"`
	ScoreText     string   `json:"scoreText"`
	StartLabel    string   `json:"startLabel"`
}

// Render builds the presentation model for s.
func Render(s State) View {
	v := View{
		Title:        Title,
		BoxLabel:     PlaceholderText,
		BoxColor:     s.TargetColor,
		Instructions: Instructions,
		Options:      make([]Option, 0, len(s.Colors)),
		StatusClass:  string(s.ResultAnimation),
		ScoreText:    "Score: " + strconv.Itoa(s.Score),
		StartLabel:   StartLabel,
	}

	if s.TargetColor != "" {
		v.BoxLabel = string(s.TargetColor)
		v.BoxForeground = foreground(s.TargetColor)
	}

	if s.Status != StatusNone {
		v.StatusText = "Game Status: " + string(s.Status)
	}

	for _, c := range s.Colors {
		v.Options = append(v.Options, Option{
			Value:      c,
			Label:      string(c),
			Background: c,
			Foreground: foreground(c),
			TestID:     "colorOption",
		})
	}

	return v
}
