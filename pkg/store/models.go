package store

import "time"

// GORM models used for persistence.
type UserModel struct {
	ID               string    `gorm:"primaryKey"`
	Username         string    `gorm:"uniqueIndex;not null"`
	PasswordHash     string    `gorm:"not null"`
	TotalReadingTime int64     `gorm:"not null;default:0"`
	CreatedAt        time.Time `gorm:"not null"`
}

type AdminModel struct {
	ID           string    `gorm:"primaryKey"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

type BookModel struct {
	ID         string `gorm:"primaryKey"`
	OwnerID    string `gorm:"not null;index"`
	Title      string `gorm:"not null"`
	Author     string
	StorageKey string    `gorm:"not null"`
	IsPublic   bool      `gorm:"not null;index"`
	Length     int64     `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

type ChapterModel struct {
	ID       string `gorm:"primaryKey"`
	BookID   string `gorm:"not null;index"`
	Title    string `gorm:"not null"`
	Position int64  `gorm:"not null"`
	Ordinal  int    `gorm:"not null"`
}

type ReadingProgressModel struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"not null;uniqueIndex:idx_progress_user_book"`
	BookID       string `gorm:"not null;uniqueIndex:idx_progress_user_book;index"`
	Position     int64  `gorm:"not null;default:0"`
	ReadingTime  int64  `gorm:"not null;default:0"`
	LastReadAt   time.Time
	LastDeviceID string
}

type ReadingSettingsModel struct {
	UserID            string  `gorm:"primaryKey"`
	FontSize          int     `gorm:"not null"`
	BackgroundColor   string  `gorm:"not null"`
	TextColor         string  `gorm:"not null"`
	LineHeight        float64 `gorm:"not null"`
	LetterSpacing     float64 `gorm:"not null"`
	ParagraphSpacing  float64 `gorm:"not null"`
	ReadingWidth      int     `gorm:"not null"`
	TextIndent        float64 `gorm:"not null"`
	SimplifiedChinese bool    `gorm:"not null"`
}

type InviteCodeModel struct {
	ID          string `gorm:"primaryKey"`
	Code        string `gorm:"uniqueIndex;not null"`
	LimitTimes  int64  `gorm:"not null"`
	UsedTimes   int64  `gorm:"not null;default:0"`
	Description string
	CreatedAt   time.Time `gorm:"not null"`
}

// SettingsModel is a single-row table; ID is always 1.
type SettingsModel struct {
	ID                 int  `gorm:"primaryKey"`
	InviteCodeRequired bool `gorm:"not null;default:false"`
}
