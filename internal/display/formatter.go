package display

import "strings"

// DefaultWidth is the wrap column for the client preview.
const DefaultWidth = 50

// DefaultContextSegments is how many trailing committed entries contribute
// context to the preview.
const DefaultContextSegments = 2

// Formatter renders the running transcript into a short fixed-width preview.
// The zero value is not usable; construct with New.
type Formatter struct {
	width           int
	contextSegments int
}

// New creates a Formatter. Non-positive arguments fall back to the defaults.
func New(width, contextSegments int) *Formatter {
	if width <= 0 {
		width = DefaultWidth
	}
	if contextSegments <= 0 {
		contextSegments = DefaultContextSegments
	}
	return &Formatter{width: width, contextSegments: contextSegments}
}

// Render produces the display text for one cycle: the last few committed
// entries plus the provisional tail, word-wrapped, reduced to the final two
// wrapped lines. A silence sentinel ("" entry) inside the context window
// discards everything before it, so text from before a pause never bleeds
// into the preview.
//
// Render is a pure function of its inputs.
func (f *Formatter) Render(committed []string, provisional string) string {
	start := len(committed) - f.contextSegments
	if start < 0 {
		start = 0
	}

	var text string
	for _, entry := range committed[start:] {
		if entry == "" {
			text = ""
			continue
		}
		text += entry
	}
	text += provisional

	lines := wrap(text, f.width)
	if len(lines) > 2 {
		lines = lines[len(lines)-2:]
	}
	return strings.Join(lines, " ")
}

// wrap greedily word-wraps text at the given column. Words longer than the
// column are hard-split so every returned line fits.
func wrap(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	var line string
	for _, word := range words {
		for len(word) > width {
			if line != "" {
				lines = append(lines, line)
				line = ""
			}
			lines = append(lines, word[:width])
			word = word[width:]
		}
		if word == "" {
			continue
		}

		switch {
		case line == "":
			line = word
		case len(line)+1+len(word) <= width:
			line += " " + word
		default:
			lines = append(lines, line)
			line = word
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}
