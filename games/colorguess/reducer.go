/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package colorguess

import "slices"

// Action is something that can be dispatched against a State. Kind names
// the action for logs; Reduce dispatches on the concrete type.
type Action interface {
	Kind() string
}

// StartGame begins a new game. The target and palette are chosen by the
// caller; Reduce copies them verbatim.
type StartGame struct {
	TargetColor Color
	Colors      []Color
}

func (StartGame) Kind() string { return "start_game" }

// GradeGuess records the outcome of a guess. A nil Colors or an empty
// TargetColor keeps the current palette or target.
type GradeGuess struct {
	Status          Status
	Score           int
	ResultAnimation Animation
	Colors          []Color
	TargetColor     Color
}

func (GradeGuess) Kind() string { return "grade_guess" }

// Reduce maps the current state and an action to the next state. Unknown
// actions return the state unchanged.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case StartGame:
		next := s.clone()
		next.Status = StatusNone
		next.Score = 0
		next.ResultAnimation = AnimationNone
		next.TargetColor = a.TargetColor
		next.Colors = slices.Clone(a.Colors)
		return next

	case GradeGuess:
		next := s.clone()
		next.Status = a.Status
		next.Score = a.Score
		next.ResultAnimation = a.ResultAnimation
		if a.Colors != nil {
			next.Colors = slices.Clone(a.Colors)
		}
		if a.TargetColor != "" {
			next.TargetColor = a.TargetColor
		}
		return next

	default:
		return s
	}
}

// Evaluate grades a click against the current target and returns the action
// to dispatch. A correct guess also advances the round with a new target and
// a reshuffled palette; a wrong one leaves both alone.
func Evaluate(s State, clicked Color, r *Randomizer) GradeGuess {
	if s.TargetColor != "" && clicked == s.TargetColor {
		target, colors := r.Draw(s.Colors)

		return GradeGuess{
			Status:          StatusCorrect,
			Score:           s.Score + 1,
			ResultAnimation: AnimationCelebrate,
			Colors:          colors,
			TargetColor:     target,
		}
	}

	return GradeGuess{
		Status:          StatusWrong,
		Score:           s.Score,
		ResultAnimation: AnimationFadeOut,
	}
}

// NewRound draws the payload for a StartGame action from the current palette.
func NewRound(s State, r *Randomizer) StartGame {
	target, colors := r.Draw(s.Colors)

	return StartGame{
		TargetColor: target,
		Colors:      colors,
	}
}
