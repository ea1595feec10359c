package domain

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type User struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	PasswordHash     string    `json:"-"`
	TotalReadingTime int64     `json:"totalReadingTime"`
	CreatedAt        time.Time `json:"createdAt"`
}

type Admin struct {
	ID           string    `json:"id"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Book struct {
	ID         string `json:"id"`
	OwnerID    string `json:"ownerId"`
	Title      string `json:"title"`
	Author     string `json:"author,omitempty"`
	StorageKey string `json:"-"`
	IsPublic   bool   `json:"isPublic"`
	// Length is the total number of characters in the decoded text,
	// fixed at upload time.
	Length    int64     `json:"length"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Chapter marks where a detected heading begins inside a book's text.
// Position is a character offset; Ordinal is the rank among the book's
// chapters in ascending position order.
type Chapter struct {
	ID       string `json:"chapter_id"`
	BookID   string `json:"-"`
	Title    string `json:"title"`
	Position int64  `json:"position"`
	Ordinal  int    `json:"ordinal"`
}

// ReadingProgress is the authoritative per-(user, book) record the
// heartbeat synchronizer reconciles against. ReadingTime never decreases.
type ReadingProgress struct {
	ID           string    `json:"-"`
	UserID       string    `json:"-"`
	BookID       string    `json:"bookId"`
	Position     int64     `json:"position"`
	ReadingTime  int64     `json:"readingTime"`
	LastReadAt   time.Time `json:"lastReadAt"`
	LastDeviceID string    `json:"-"`
}

type ReadingSettings struct {
	UserID            string  `json:"-"`
	FontSize          int     `json:"font_size"`
	BackgroundColor   string  `json:"background_color"`
	TextColor         string  `json:"text_color"`
	LineHeight        float64 `json:"line_height"`
	LetterSpacing     float64 `json:"letter_spacing"`
	ParagraphSpacing  float64 `json:"paragraph_spacing"`
	ReadingWidth      int     `json:"reading_width"`
	TextIndent        float64 `json:"text_indent"`
	SimplifiedChinese bool    `json:"simplified_chinese"`
}

// DefaultReadingSettings returns the settings a user starts with.
func DefaultReadingSettings(userID string) ReadingSettings {
	return ReadingSettings{
		UserID:            userID,
		FontSize:          18,
		BackgroundColor:   "#F5F5DC",
		TextColor:         "#000000",
		LineHeight:        1.5,
		LetterSpacing:     0.05,
		ParagraphSpacing:  1.2,
		ReadingWidth:      800,
		TextIndent:        2.0,
		SimplifiedChinese: true,
	}
}

type InviteCode struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	LimitTimes  int64     `json:"limit_times"`
	UsedTimes   int64     `json:"used_times"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Settings is the single-row system configuration record.
type Settings struct {
	InviteCodeRequired bool `json:"invite_code_required"`
}
