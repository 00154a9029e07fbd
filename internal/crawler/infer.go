package crawler

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"

	"online-school/internal/catalogue"
)

var (
	gradePattern   = regexp.MustCompile(`(?i)g(\d{1,2})`)
	englishPattern = regexp.MustCompile(`(?i)english`)
	mathPattern    = regexp.MustCompile(`(?i)math|riyaz`)
)

// Metadata is what a PDF filename suggests about the book.
type Metadata struct {
	Grade   *int
	Subject string
}

// InferMetadata guesses grade and subject from a filename. Grade comes from
// the first "g" followed by one or two digits and is not range checked.
// Subject rules run in order and the first match wins: english, then math.
func InferMetadata(filename string) Metadata {
	meta := Metadata{Subject: catalogue.SubjectGeneral}
	if m := gradePattern.FindStringSubmatch(filename); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			meta.Grade = &n
		}
	}
	switch {
	case englishPattern.MatchString(filename):
		meta.Subject = catalogue.SubjectEnglish
	case mathPattern.MatchString(filename):
		meta.Subject = catalogue.SubjectMath
	}
	return meta
}

// Title renders the display title used for crawled books. Unknown grades show as "؟".
func (m Metadata) Title() string {
	grade := "؟"
	if m.Grade != nil {
		grade = strconv.Itoa(*m.Grade)
	}
	return fmt.Sprintf("%s - صنف %s (MOE)", m.Subject, grade)
}

// filenameOf returns the last path segment of a URL.
func filenameOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return path.Base(raw)
	}
	return path.Base(u.Path)
}
