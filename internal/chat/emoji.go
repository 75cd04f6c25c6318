package chat

import (
	"strings"
	"unicode"
)

// StripEmoji removes pictographs, dingbats, flags and joiners.
func StripEmoji(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isEmoji(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.FieldsFunc(b.String(), func(r rune) bool {
		return r == ' ' || r == '\t'
	}), " ")
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x2300 && r <= 0x23FF:
		return true
	case r == 0x200D, r == 0xFE0F, r == 0x20E3:
		return true
	}
	return unicode.Is(unicode.So, r) && r > 0x2000
}
