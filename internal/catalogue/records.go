// Package catalogue owns the book and quiz documents: their records, how they
// are persisted as flat JSON files, and the read/filter/append operations the
// HTTP layer and the crawler perform on them.
package catalogue

import "time"

// Book is a single textbook entry. URL is the natural key of the catalogue.
type Book struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Grade    *int   `json:"grade"`
	Subject  string `json:"subject"`
	Language string `json:"language"`
	Source   string `json:"source"`
	URL      string `json:"url"`
}

// Question is one multiple-choice item of a quiz.
type Question struct {
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answerIndex"`
	Explanation string   `json:"explanation,omitempty"`
}

// Quiz groups questions in presentation order.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Grade     *int       `json:"grade"`
	Subject   string     `json:"subject"`
	Questions []Question `json:"questions"`
}

// Meta is the header every persisted document carries.
type Meta struct {
	Created time.Time `json:"created"`
}

// BookDocument is the on-disk shape of the book catalogue.
type BookDocument struct {
	Meta  Meta   `json:"meta"`
	Books []Book `json:"books"`
}

// QuizDocument is the on-disk shape of the quiz catalogue.
type QuizDocument struct {
	Meta    Meta   `json:"meta"`
	Quizzes []Quiz `json:"quizzes"`
}

// URLs returns the set of book urls currently in the document.
func (d *BookDocument) URLs() map[string]struct{} {
	out := make(map[string]struct{}, len(d.Books))
	for _, b := range d.Books {
		out[b.URL] = struct{}{}
	}
	return out
}

// HasURL reports whether a book with exactly this url exists.
func (d *BookDocument) HasURL(u string) bool {
	for _, b := range d.Books {
		if b.URL == u {
			return true
		}
	}
	return false
}

// IntPtr is a small helper for optional grades.
func IntPtr(v int) *int {
	return &v
}
