// Package ui renders console output for the occ command.
package ui

import "fmt"

// ANSI256 color codes matching the Ayu palette.
const (
	colorTitle = 74  // blue
	colorToken = 245 // medium gray
	colorError = 203 // red
)

// Styles applies ANSI colors when enabled. The zero value renders plain text.
type Styles struct {
	Color bool
}

// NewStyles returns Styles with color enabled according to ShouldUseColor.
func NewStyles() Styles {
	return Styles{Color: ShouldUseColor()}
}

func (s Styles) paint(code int, text string) string {
	if !s.Color {
		return text
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, text)
}

// Title renders an occurrence title.
func (s Styles) Title(text string) string {
	return s.paint(colorTitle, text)
}

// Token renders a version token.
func (s Styles) Token(text string) string {
	return s.paint(colorToken, text)
}

// Error renders an error message.
func (s Styles) Error(text string) string {
	return s.paint(colorError, text)
}

// TitleLine formats one listing line, "Title (0x...)".
func (s Styles) TitleLine(title, token string) string {
	return s.Title(title) + " (" + s.Token(token) + ")"
}
