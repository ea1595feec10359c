package store

import (
	"time"

	"leafreader/pkg/domain"
	"leafreader/pkg/progress"
)

// BookWithProgress pairs a book with the caller's reading progress for
// library listings.
type BookWithProgress struct {
	domain.Book
	Position    int64      `json:"position"`
	ReadingTime int64      `json:"reading_time"`
	LastReadAt  *time.Time `json:"last_read_at,omitempty"`
}

// PublicBook is a shared-shelf listing entry.
type PublicBook struct {
	domain.Book
	OwnerUsername string `json:"owner_username"`
}

// Store defines persistence for users, books, chapters, and reading state.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUsername(username string) (bool, error)
	GetUserByUsername(username string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	ListUsers() ([]domain.User, error)
	SetUserPassword(id, passwordHash string) error
	CountBooksByOwner(ownerID string) (int64, error)

	// admin account (single row)
	GetAdmin() (domain.Admin, bool, error)
	SaveAdmin(domain.Admin) error

	// invite codes
	CreateInviteCode(domain.InviteCode) error
	GetInviteCode(code string) (domain.InviteCode, bool, error)
	ListInviteCodes() ([]domain.InviteCode, error)
	ConsumeInviteCode(code string) error

	// system settings (single row)
	GetSettings() (domain.Settings, error)
	SaveSettings(domain.Settings) error

	// books; creation persists the book, its chapter index, and the
	// uploader's initial progress row atomically
	CreateBook(book domain.Book, chapters []domain.Chapter, initial domain.ReadingProgress) error
	GetBook(id string) (domain.Book, bool, error)
	UpdateBook(id string, title, author *string, isPublic *bool) error
	DeleteBook(id string) error
	ListBooksByOwner(ownerID, viewerID string, page, limit int) ([]BookWithProgress, int64, error)
	ListPublicBooks(page, limit int) ([]PublicBook, int64, error)
	ListAllPublicBooks() ([]PublicBook, error)

	// chapters (immutable after upload)
	ListChapters(bookID string) ([]domain.Chapter, error)
	GetChapter(bookID, chapterID string) (domain.Chapter, bool, error)

	// reading progress
	GetProgress(userID, bookID string) (domain.ReadingProgress, bool, error)
	EnsureProgress(userID, bookID string) (domain.ReadingProgress, error)
	// SyncHeartbeat runs the reconciliation state machine atomically with
	// respect to other heartbeats on the same (user, book) key and rolls
	// any credited seconds into the user's aggregate reading time.
	SyncHeartbeat(userID, bookID string, hb progress.Heartbeat, now time.Time, maxInterval time.Duration) (progress.Result, error)

	// reading settings
	GetReadingSettings(userID string) (domain.ReadingSettings, bool, error)
	SaveReadingSettings(domain.ReadingSettings) error
}
