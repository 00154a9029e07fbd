package catalogue

import (
	"strings"

	"github.com/google/uuid"
)

const maxSlugLen = 40

// NewID returns prefix-<uuid>. Ids are never reused.
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// slugID derives a readable id from a title, falling back to fallback when the
// title has no ascii letters or digits.
func slugID(title, fallback string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = fallback
	}
	return NewID(slug)
}
