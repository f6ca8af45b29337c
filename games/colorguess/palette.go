/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package colorguess

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

var (
	ErrPaletteSize    = errors.New("palette must contain exactly six colors")
	ErrInvalidColor   = errors.New("invalid hex color")
	ErrDuplicateColor = errors.New("duplicate palette color")
)

// ParseColor normalizes a #RGB, #RRGGBB or #RRGGBBAA value to upper-case
// #RRGGBB. Alpha is discarded.
func ParseColor(value string) (Color, error) {
	v := strings.TrimSpace(value)
	if len(v) == 9 && strings.HasPrefix(v, "#") {
		v = v[:7]
	}

	c, err := colorful.Hex(v)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidColor, value)
	}

	return Color(strings.ToUpper(c.Hex())), nil
}

// ParsePalette validates a palette supplied by the operator.
func ParsePalette(values []string) ([]Color, error) {
	if len(values) != PaletteSize {
		return nil, fmt.Errorf("%w: got %d", ErrPaletteSize, len(values))
	}

	seen := make(map[Color]bool, len(values))
	palette := make([]Color, 0, len(values))

	for _, v := range values {
		c, err := ParseColor(v)
		if err != nil {
			return nil, err
		}
		if seen[c] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateColor, c)
		}
		seen[c] = true
		palette = append(palette, c)
	}

	return palette, nil
}

// foreground returns a text color that stays readable on top of c.
func foreground(c Color) Color {
	parsed, err := colorful.Hex(string(c))
	if err != nil {
		return "#000000"
	}

	l, _, _ := parsed.Lab()
	if l > 0.6 {
		return "#000000"
	}

	return "#FFFFFF"
}
