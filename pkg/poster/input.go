package poster

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// ValidateText checks caller-supplied poster text before any browser work.
// Empty text is valid and renders a blank canvas.
func ValidateText(text string, maxLength int) error {
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidInput)
	}

	if n := utf8.RuneCountInString(text); maxLength > 0 && n > maxLength {
		return fmt.Errorf("%w: text has %d characters (max %d)", ErrInvalidInput, n, maxLength)
	}

	for i, r := range text {
		if r == '\n' || r == '\t' {
			continue
		}
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character %U at byte %d", ErrInvalidInput, r, i)
		}
	}

	return nil
}
