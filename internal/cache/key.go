package cache

import "strings"

// MaxKeyLength is the longest key Key will produce, in runes.
const MaxKeyLength = 200

const illegalKeyChars = `<>:"/\|?*`

// Key turns a track title into a filesystem-safe cache key: characters
// that are illegal in file names (and control characters) become '_', and
// the result is cut to MaxKeyLength runes. Key is idempotent.
func Key(title string) string {
	var b strings.Builder
	n := 0
	for _, r := range title {
		if n == MaxKeyLength {
			break
		}
		if r < 0x20 || r == 0x7f || strings.ContainsRune(illegalKeyChars, r) {
			r = '_'
		}
		b.WriteRune(r)
		n++
	}

	if b.Len() == 0 {
		return "untitled"
	}
	return b.String()
}
