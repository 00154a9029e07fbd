package catalogue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newTestService(t *testing.T) (*Service, *Store) {
	t.Helper()
	store, _ := newTestStore(t)
	return NewService(store, store, store.logger), store
}

func TestFilterBooks(t *testing.T) {
	books := []Book{
		{ID: "1", Title: "English — صنف 12", Grade: IntPtr(12), Subject: SubjectEnglish, Source: "MOE"},
		{ID: "2", Title: "ریاضی — صنف 9", Grade: IntPtr(9), Subject: SubjectMath, Source: "MOE"},
		{ID: "3", Title: "Local notes", Subject: "History", Source: "uploaded"},
	}
	tests := []struct {
		name   string
		filter BookFilter
		want   []string
	}{
		{"no filter", BookFilter{}, []string{"1", "2", "3"}},
		{"grade exact", BookFilter{Grade: 9}, []string{"2"}},
		{"grade excludes unspecified", BookFilter{Grade: 1}, nil},
		{"subject substring ci", BookFilter{Subject: "ENG"}, []string{"1"}},
		{"query on source", BookFilter{Query: "Upload"}, []string{"3"}},
		{"query on title", BookFilter{Query: "صنف"}, []string{"1", "2"}},
		{"combined", BookFilter{Query: "moe", Grade: 12}, []string{"1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterBooks(books, tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d books, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Fatalf("position %d: got %s want %s", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}

func TestFilterQuizzes(t *testing.T) {
	quizzes := defaultQuizDocument(testTime()).Quizzes
	if got := FilterQuizzes(quizzes, QuizFilter{Grade: 12}); len(got) != 1 || got[0].ID != "g12-english-1" {
		t.Fatalf("grade filter: %+v", got)
	}
	if got := FilterQuizzes(quizzes, QuizFilter{Subject: "ریاضی"}); len(got) != 1 || got[0].ID != "g9-math-1" {
		t.Fatalf("subject filter: %+v", got)
	}
}

func TestAddBook(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	book, err := svc.AddBook(ctx, NewBook{Title: "Biology G8", Grade: "8", URL: "https://example.org/bio.pdf"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.HasPrefix(book.ID, "biology-g8-") {
		t.Fatalf("unexpected id %q", book.ID)
	}
	if book.Grade == nil || *book.Grade != 8 {
		t.Fatalf("grade = %v", book.Grade)
	}

	doc, err := store.LoadBooks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Books) != 5 {
		t.Fatalf("expected seeded 4 + 1, got %d", len(doc.Books))
	}

	again, err := svc.AddBook(ctx, NewBook{Title: "Biology G8", URL: "https://example.org/bio2.pdf"})
	if err != nil {
		t.Fatal(err)
	}
	if again.ID == book.ID {
		t.Fatal("ids must not be reused")
	}
}

func TestAddBookValidation(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	before, err := store.LoadBooks(ctx)
	if err != nil {
		t.Fatal(err)
	}

	cases := []NewBook{
		{Title: "No url"},
		{URL: "https://example.org/x.pdf"},
		{Title: "   ", URL: "https://example.org/x.pdf"},
		{Title: "Bad grade", URL: "https://example.org/x.pdf", Grade: "13"},
		{Title: "Bad grade", URL: "https://example.org/x.pdf", Grade: "nine"},
	}
	for _, in := range cases {
		if _, err := svc.AddBook(ctx, in); !IsValidation(err) {
			t.Fatalf("%+v: expected validation error, got %v", in, err)
		}
	}

	after, err := store.LoadBooks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(after.Books) != len(before.Books) {
		t.Fatalf("collection modified: before %d after %d", len(before.Books), len(after.Books))
	}
}

func TestAddBookDuplicateURL(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.AddBook(context.Background(), NewBook{
		Title: "dup",
		URL:   "https://moe.gov.af/sites/default/files/2020-03/G12-Ps-English.pdf",
	})
	if !errors.Is(err, ErrDuplicateURL) {
		t.Fatalf("expected ErrDuplicateURL, got %v", err)
	}
}

func TestAddUploadDefaultsSource(t *testing.T) {
	svc, _ := newTestService(t)
	book, err := svc.AddUpload(context.Background(), NewBook{Title: "scan.pdf", URL: "/uploads/1-scan.pdf"})
	if err != nil {
		t.Fatal(err)
	}
	if book.Source != "uploaded" || !strings.HasPrefix(book.ID, "local-") {
		t.Fatalf("unexpected upload book %+v", book)
	}
}

func TestAddQuizValidation(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	valid := Question{Prompt: "1+1", Options: []string{"1", "2"}, AnswerIndex: 1}

	tests := []struct {
		name string
		in   NewQuiz
	}{
		{"empty questions", NewQuiz{Title: "t", Questions: []Question{}}},
		{"nil questions", NewQuiz{Title: "t"}},
		{"missing title", NewQuiz{Questions: []Question{valid}}},
		{"one option", NewQuiz{Title: "t", Questions: []Question{{Prompt: "p", Options: []string{"a"}}}}},
		{"answer out of range", NewQuiz{Title: "t", Questions: []Question{{Prompt: "p", Options: []string{"a", "b"}, AnswerIndex: 2}}}},
		{"negative answer", NewQuiz{Title: "t", Questions: []Question{{Prompt: "p", Options: []string{"a", "b"}, AnswerIndex: -1}}}},
		{"blank prompt", NewQuiz{Title: "t", Questions: []Question{{Options: []string{"a", "b"}}}}},
		{"grade out of range", NewQuiz{Title: "t", Grade: "0", Questions: []Question{valid}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.AddQuiz(ctx, tt.in); !IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	quiz, err := svc.AddQuiz(ctx, NewQuiz{Title: "Sums", Grade: "3", Subject: SubjectMath, Questions: []Question{valid, valid}})
	if err != nil {
		t.Fatalf("valid quiz rejected: %v", err)
	}
	doc, err := store.LoadQuizzes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	last := doc.Quizzes[len(doc.Quizzes)-1]
	if last.ID != quiz.ID || len(last.Questions) != 2 {
		t.Fatalf("quiz not persisted in order: %+v", last)
	}
}

func TestGradeInputJSON(t *testing.T) {
	tests := []struct {
		raw  string
		want *int
	}{
		{`{"grade": 9}`, IntPtr(9)},
		{`{"grade": "11"}`, IntPtr(11)},
		{`{"grade": ""}`, nil},
		{`{"grade": null}`, nil},
		{`{}`, nil},
	}
	for _, tt := range tests {
		var in NewBook
		if err := json.Unmarshal([]byte(tt.raw), &in); err != nil {
			t.Fatalf("%s: %v", tt.raw, err)
		}
		got, err := in.Grade.Parse()
		if err != nil {
			t.Fatalf("%s: %v", tt.raw, err)
		}
		if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
			t.Fatalf("%s: got %v want %v", tt.raw, got, tt.want)
		}
	}
}

func TestGradeInputRejectsNonIntegers(t *testing.T) {
	for _, raw := range []string{`{"grade": 9.0}`, `{"grade": "9.5"}`, `{"grade": "9th"}`, `{"grade": "+"}`} {
		var in NewBook
		if err := json.Unmarshal([]byte(raw), &in); err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if _, err := in.Grade.Parse(); !IsValidation(err) {
			t.Fatalf("%s: expected validation error, got %v", raw, err)
		}
	}
}
