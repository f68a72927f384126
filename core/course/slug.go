package course

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugBase = 60

// Slugify lower-cases s, strips diacritics (Māori macrons included) and joins the words with dashes.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
		} else if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= maxSlugBase {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}

// newSlug returns a unique slug for title.
func newSlug(title string) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	if base := Slugify(title); base != "" {
		return base + "-" + suffix
	}
	return "course-" + suffix
}
