package catalogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// BookFilter narrows ListBooks. Zero values disable the respective check.
type BookFilter struct {
	Query   string
	Grade   int
	Subject string
}

// QuizFilter narrows ListQuizzes.
type QuizFilter struct {
	Grade   int
	Subject string
}

// NewBook carries the client-supplied fields of a book.
type NewBook struct {
	Title    string     `json:"title"`
	Grade    GradeInput `json:"grade"`
	Subject  string     `json:"subject"`
	URL      string     `json:"url"`
	Language string     `json:"language"`
	Source   string     `json:"source"`
}

// NewQuiz carries the client-supplied fields of a quiz.
type NewQuiz struct {
	Title     string     `json:"title"`
	Grade     GradeInput `json:"grade"`
	Subject   string     `json:"subject"`
	Questions []Question `json:"questions"`
}

// Service implements the catalogue operations exposed over HTTP.
type Service struct {
	books   BookRepository
	quizzes QuizRepository
	logger  *slog.Logger
}

// NewService wires the repositories into a Service.
func NewService(books BookRepository, quizzes QuizRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{books: books, quizzes: quizzes, logger: logger}
}

// ListBooks returns the books matching filter in catalogue order.
func (s *Service) ListBooks(ctx context.Context, filter BookFilter) ([]Book, error) {
	doc, err := s.books.LoadBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load books: %w", err)
	}
	return FilterBooks(doc.Books, filter), nil
}

// AddBook validates and appends a manually entered book.
func (s *Service) AddBook(ctx context.Context, in NewBook) (Book, error) {
	book, err := in.toBook()
	if err != nil {
		return Book{}, err
	}
	book.ID = slugID(book.Title, "book")
	return s.appendBook(ctx, book)
}

// AddUpload appends a book that points at an uploaded file. Source defaults to "uploaded".
func (s *Service) AddUpload(ctx context.Context, in NewBook) (Book, error) {
	if strings.TrimSpace(in.Source) == "" {
		in.Source = "uploaded"
	}
	book, err := in.toBook()
	if err != nil {
		return Book{}, err
	}
	book.ID = NewID("local")
	return s.appendBook(ctx, book)
}

func (s *Service) appendBook(ctx context.Context, book Book) (Book, error) {
	doc, err := s.books.LoadBooks(ctx)
	if err != nil {
		return Book{}, fmt.Errorf("load books: %w", err)
	}
	if doc.HasURL(book.URL) {
		return Book{}, fmt.Errorf("%w: %s", ErrDuplicateURL, book.URL)
	}
	doc.Books = append(doc.Books, book)
	if err := s.books.SaveBooks(ctx, doc); err != nil {
		return Book{}, fmt.Errorf("save books: %w", err)
	}
	s.logger.Info("book added", "id", book.ID, "url", book.URL, "source", book.Source)
	return book, nil
}

// ListQuizzes returns the quizzes matching filter in catalogue order.
func (s *Service) ListQuizzes(ctx context.Context, filter QuizFilter) ([]Quiz, error) {
	doc, err := s.quizzes.LoadQuizzes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load quizzes: %w", err)
	}
	return FilterQuizzes(doc.Quizzes, filter), nil
}

// AddQuiz validates and appends a quiz.
func (s *Service) AddQuiz(ctx context.Context, in NewQuiz) (Quiz, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Quiz{}, &ValidationError{Message: "title and questions array required"}
	}
	if err := validateQuestions(in.Questions); err != nil {
		return Quiz{}, err
	}
	grade, err := in.Grade.Parse()
	if err != nil {
		return Quiz{}, err
	}
	quiz := Quiz{
		ID:        NewID("q"),
		Title:     title,
		Grade:     grade,
		Subject:   strings.TrimSpace(in.Subject),
		Questions: in.Questions,
	}

	doc, err := s.quizzes.LoadQuizzes(ctx)
	if err != nil {
		return Quiz{}, fmt.Errorf("load quizzes: %w", err)
	}
	doc.Quizzes = append(doc.Quizzes, quiz)
	if err := s.quizzes.SaveQuizzes(ctx, doc); err != nil {
		return Quiz{}, fmt.Errorf("save quizzes: %w", err)
	}
	s.logger.Info("quiz added", "id", quiz.ID, "questions", len(quiz.Questions))
	return quiz, nil
}

func (in NewBook) toBook() (Book, error) {
	title := strings.TrimSpace(in.Title)
	u := strings.TrimSpace(in.URL)
	if title == "" || u == "" {
		return Book{}, &ValidationError{Message: "title and url required"}
	}
	grade, err := in.Grade.Parse()
	if err != nil {
		return Book{}, err
	}
	return Book{
		Title:    title,
		Grade:    grade,
		Subject:  strings.TrimSpace(in.Subject),
		Language: strings.TrimSpace(in.Language),
		Source:   strings.TrimSpace(in.Source),
		URL:      u,
	}, nil
}

// FilterBooks applies filter to books without modifying the input.
func FilterBooks(books []Book, filter BookFilter) []Book {
	q := strings.ToLower(strings.TrimSpace(filter.Query))
	subject := strings.ToLower(strings.TrimSpace(filter.Subject))
	out := make([]Book, 0, len(books))
	for _, b := range books {
		if filter.Grade != 0 && (b.Grade == nil || *b.Grade != filter.Grade) {
			continue
		}
		if subject != "" && !containsFold(b.Subject, subject) {
			continue
		}
		if q != "" && !containsFold(b.Title, q) && !containsFold(b.Subject, q) && !containsFold(b.Source, q) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// FilterQuizzes applies filter to quizzes without modifying the input.
func FilterQuizzes(quizzes []Quiz, filter QuizFilter) []Quiz {
	subject := strings.ToLower(strings.TrimSpace(filter.Subject))
	out := make([]Quiz, 0, len(quizzes))
	for _, q := range quizzes {
		if filter.Grade != 0 && (q.Grade == nil || *q.Grade != filter.Grade) {
			continue
		}
		if subject != "" && !containsFold(q.Subject, subject) {
			continue
		}
		out = append(out, q)
	}
	return out
}

// containsFold expects needle to be lower-cased already.
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), needle)
}
