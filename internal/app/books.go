package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"leafreader/internal/util"
	"leafreader/pkg/chapter"
	"leafreader/pkg/domain"
	"leafreader/pkg/store"
	"leafreader/pkg/textstore"
)

// BookDetail is a book with its chapter index and the viewer's progress.
type BookDetail struct {
	domain.Book
	OwnerUsername string           `json:"owner_username,omitempty"`
	Chapters      []domain.Chapter `json:"chapters"`
	Position      int64            `json:"position"`
	ReadingTime   int64            `json:"reading_time"`
}

// ContentWindow is one position-addressed slice of a book's text.
type ContentWindow struct {
	BookID       string `json:"book_id"`
	Position     int64  `json:"position"`
	Content      string `json:"content"`
	NextPosition int64  `json:"next_position"`
	BookLength   int64  `json:"book_length"`
	IsEnd        bool   `json:"is_end"`
}

// UploadBook ingests a plain-text book: decode, index chapters, persist
// text and metadata. The chapter index and book length are fixed here and
// never change afterwards.
func (a *App) UploadBook(ctx context.Context, ownerID, filename, title, author string, isPublic bool, r io.Reader, size int64) (domain.Book, error) {
	if size > a.maxUploadBytes {
		return domain.Book{}, ErrBookTooLarge
	}
	if strings.ToLower(filepath.Ext(filename)) != ".txt" {
		return domain.Book{}, ErrBookFormatInvalid
	}
	data, err := io.ReadAll(io.LimitReader(r, a.maxUploadBytes+1))
	if err != nil {
		return domain.Book{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > a.maxUploadBytes {
		return domain.Book{}, ErrBookTooLarge
	}
	if !utf8.Valid(data) {
		return domain.Book{}, ErrBookFormatInvalid
	}

	// Normalize line endings before indexing so chapter positions match
	// the stored text exactly.
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	if title = strings.TrimSpace(title); title == "" {
		title = titleFromFilename(filename)
	}

	now := a.now()
	book := domain.Book{
		ID:         util.NewID(),
		OwnerID:    ownerID,
		Title:      title,
		Author:     strings.TrimSpace(author),
		StorageKey: "books/" + uuid.NewString() + ".txt",
		IsPublic:   isPublic,
		Length:     int64(utf8.RuneCountInString(text)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	marks := chapter.Index(text, a.rules)
	chapters := make([]domain.Chapter, 0, len(marks))
	for i, m := range marks {
		chapters = append(chapters, domain.Chapter{
			ID:       util.NewID(),
			BookID:   book.ID,
			Title:    m.Title,
			Position: m.Position,
			Ordinal:  i,
		})
	}

	if err := a.objects.Put(ctx, book.StorageKey, strings.NewReader(text), int64(len(text)), "text/plain; charset=utf-8"); err != nil {
		return domain.Book{}, fmt.Errorf("save book text: %w", err)
	}
	initial := domain.ReadingProgress{
		ID:         util.NewID(),
		UserID:     ownerID,
		BookID:     book.ID,
		LastReadAt: now,
	}
	if err := a.store.CreateBook(book, chapters, initial); err != nil {
		_ = a.objects.Delete(ctx, book.StorageKey)
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// ListBooks returns the caller's library page with their progress.
func (a *App) ListBooks(userID string, page, limit int) ([]store.BookWithProgress, int64, error) {
	return a.store.ListBooksByOwner(userID, userID, page, limit)
}

// ListPublicBooks returns the shared shelf page.
func (a *App) ListPublicBooks(page, limit int) ([]store.PublicBook, int64, error) {
	return a.store.ListPublicBooks(page, limit)
}

// RandomPublicBooks samples up to count distinct public books.
func (a *App) RandomPublicBooks(count int) ([]store.PublicBook, error) {
	if count <= 0 {
		count = 10
	}
	all, err := a.store.ListAllPublicBooks()
	if err != nil {
		return nil, err
	}
	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if count < len(all) {
		all = all[:count]
	}
	return all, nil
}

// GetBookDetail returns the book, its chapter index, and the viewer's
// progress. Opening someone else's public book lazily creates a progress
// row so subsequent heartbeats have a record to reconcile against.
func (a *App) GetBookDetail(userID, bookID string) (BookDetail, error) {
	book, err := a.readableBook(userID, bookID)
	if err != nil {
		return BookDetail{}, err
	}
	chapters, err := a.store.ListChapters(bookID)
	if err != nil {
		return BookDetail{}, err
	}
	rec, err := a.store.EnsureProgress(userID, bookID)
	if err != nil {
		return BookDetail{}, err
	}
	detail := BookDetail{
		Book:        book,
		Chapters:    chapters,
		Position:    rec.Position,
		ReadingTime: rec.ReadingTime,
	}
	if book.OwnerID != userID {
		if owner, ok, err := a.store.GetUserByID(book.OwnerID); err == nil && ok {
			detail.OwnerUsername = owner.Username
		}
	}
	return detail, nil
}

// UpdateBook patches metadata on a book the caller owns.
func (a *App) UpdateBook(userID, bookID string, title, author *string, isPublic *bool) (domain.Book, error) {
	if _, err := a.ownedBook(userID, bookID); err != nil {
		return domain.Book{}, err
	}
	if title != nil && strings.TrimSpace(*title) == "" {
		return domain.Book{}, NewError(CodeBookFormatInvalid, "title must not be empty")
	}
	if err := a.store.UpdateBook(bookID, title, author, isPublic); err != nil {
		return domain.Book{}, err
	}
	book, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return domain.Book{}, err
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}

// DeleteBook removes a book the caller owns, its text, chapters, and every
// reader's progress.
func (a *App) DeleteBook(ctx context.Context, userID, bookID string) error {
	book, err := a.ownedBook(userID, bookID)
	if err != nil {
		return err
	}
	if err := a.store.DeleteBook(bookID); err != nil {
		return err
	}
	a.texts.Invalidate(bookID)
	if err := a.objects.Delete(ctx, book.StorageKey); err != nil {
		return fmt.Errorf("delete book text: %w", err)
	}
	return nil
}

// Content returns a window of book text starting at position. length <= 0
// selects the default window size; explicit lengths are clamped to the
// configured bounds.
func (a *App) Content(ctx context.Context, userID, bookID string, position, length int64) (ContentWindow, error) {
	book, err := a.readableBook(userID, bookID)
	if err != nil {
		return ContentWindow{}, err
	}
	if length <= 0 {
		length = a.contentDefaultLength
	}
	if length < a.contentMinLength {
		length = a.contentMinLength
	}
	if length > a.contentMaxLength {
		length = a.contentMaxLength
	}
	content, next, err := a.texts.Window(ctx, book.ID, book.StorageKey, position, length)
	if err != nil {
		if errors.Is(err, textstore.ErrOutOfRange) {
			return ContentWindow{}, ErrPositionOutOfRange
		}
		return ContentWindow{}, err
	}
	return ContentWindow{
		BookID:       book.ID,
		Position:     position,
		Content:      content,
		NextPosition: next,
		BookLength:   book.Length,
		IsEnd:        next >= book.Length,
	}, nil
}

// LocateChapter resolves a chapter's start position. The chapter must
// belong to the given book. Locating writes no progress; the client
// follows up with a heartbeat once it actually lands there.
func (a *App) LocateChapter(userID, bookID, chapterID string) (domain.Chapter, error) {
	if _, err := a.readableBook(userID, bookID); err != nil {
		return domain.Chapter{}, err
	}
	ch, ok, err := a.store.GetChapter(bookID, chapterID)
	if err != nil {
		return domain.Chapter{}, err
	}
	if !ok {
		return domain.Chapter{}, NewError(CodeBookNotFound, "chapter not found")
	}
	return ch, nil
}

// JumpToChapter returns the content window beginning at a chapter heading.
func (a *App) JumpToChapter(ctx context.Context, userID, bookID, chapterID string) (ContentWindow, error) {
	ch, err := a.LocateChapter(userID, bookID, chapterID)
	if err != nil {
		return ContentWindow{}, err
	}
	return a.Content(ctx, userID, bookID, ch.Position, 0)
}

// ListChapters returns a book's chapter index in reading order.
func (a *App) ListChapters(userID, bookID string) ([]domain.Chapter, error) {
	if _, err := a.readableBook(userID, bookID); err != nil {
		return nil, err
	}
	return a.store.ListChapters(bookID)
}

func (a *App) readableBook(userID, bookID string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return domain.Book{}, err
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	if book.OwnerID != userID && !book.IsPublic {
		return domain.Book{}, ErrBookForbidden
	}
	return book, nil
}

func (a *App) ownedBook(userID, bookID string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return domain.Book{}, err
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	if book.OwnerID != userID {
		return domain.Book{}, ErrBookForbidden
	}
	return book, nil
}

func titleFromFilename(name string) string {
	base := filepath.Base(name)
	title := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if title == "" {
		return "未命名书籍"
	}
	return title
}
