package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"leafreader/internal/util"
	"leafreader/pkg/domain"
	"leafreader/pkg/progress"
)

const migrateLockID int64 = 52120521

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent server processes migrate exactly once.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&UserModel{}, &AdminModel{}, &BookModel{}, &ChapterModel{},
			&ReadingProgressModel{}, &ReadingSettingsModel{},
			&InviteCodeModel{}, &SettingsModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "password_hash", "total_reading_time"}),
	}).Create(&model).Error
}

// HasUsername checks if a username is taken.
func (s *GormStore) HasUsername(username string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByUsername looks up a user by username.
func (s *GormStore) GetUserByUsername(username string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("username = ?", username).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsers returns all users ordered by created_at.
func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// SetUserPassword replaces a user's password hash.
func (s *GormStore) SetUserPassword(id, passwordHash string) error {
	return s.db.Model(&UserModel{}).Where("id = ?", id).
		Update("password_hash", passwordHash).Error
}

// CountBooksByOwner returns how many books a user owns.
func (s *GormStore) CountBooksByOwner(ownerID string) (int64, error) {
	var count int64
	err := s.db.Model(&BookModel{}).Where("owner_id = ?", ownerID).Count(&count).Error
	return count, err
}

// GetAdmin returns the admin account if one has been set up.
func (s *GormStore) GetAdmin() (domain.Admin, bool, error) {
	var model AdminModel
	if err := s.db.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Admin{}, false, nil
		}
		return domain.Admin{}, false, err
	}
	return domain.Admin{ID: model.ID, PasswordHash: model.PasswordHash, CreatedAt: model.CreatedAt}, true, nil
}

// SaveAdmin stores the admin account.
func (s *GormStore) SaveAdmin(a domain.Admin) error {
	model := AdminModel{ID: a.ID, PasswordHash: a.PasswordHash, CreatedAt: a.CreatedAt}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"password_hash"}),
	}).Create(&model).Error
}

// CreateInviteCode stores a new invite code.
func (s *GormStore) CreateInviteCode(c domain.InviteCode) error {
	model := inviteCodeToModel(c)
	return s.db.Create(&model).Error
}

// GetInviteCode looks up an invite code by its code string.
func (s *GormStore) GetInviteCode(code string) (domain.InviteCode, bool, error) {
	var model InviteCodeModel
	if err := s.db.Where("code = ?", code).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.InviteCode{}, false, nil
		}
		return domain.InviteCode{}, false, err
	}
	return inviteCodeFromModel(model), true, nil
}

// ListInviteCodes returns invite codes, newest first.
func (s *GormStore) ListInviteCodes() ([]domain.InviteCode, error) {
	var models []InviteCodeModel
	if err := s.db.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.InviteCode, 0, len(models))
	for _, m := range models {
		res = append(res, inviteCodeFromModel(m))
	}
	return res, nil
}

// ConsumeInviteCode increments an invite code's use counter.
func (s *GormStore) ConsumeInviteCode(code string) error {
	return s.db.Model(&InviteCodeModel{}).Where("code = ?", code).
		UpdateColumn("used_times", gorm.Expr("used_times + 1")).Error
}

// GetSettings returns the system settings row, defaulting when absent.
func (s *GormStore) GetSettings() (domain.Settings, error) {
	var model SettingsModel
	if err := s.db.First(&model, "id = ?", 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Settings{}, nil
		}
		return domain.Settings{}, err
	}
	return domain.Settings{InviteCodeRequired: model.InviteCodeRequired}, nil
}

// SaveSettings upserts the single settings row.
func (s *GormStore) SaveSettings(settings domain.Settings) error {
	model := SettingsModel{ID: 1, InviteCodeRequired: settings.InviteCodeRequired}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"invite_code_required"}),
	}).Create(&model).Error
}

// CreateBook persists the book, its chapter index, and the uploader's
// initial progress row in one transaction.
func (s *GormStore) CreateBook(book domain.Book, chapters []domain.Chapter, initial domain.ReadingProgress) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		bookModel := bookToModel(book)
		if err := tx.Create(&bookModel).Error; err != nil {
			return err
		}
		if len(chapters) > 0 {
			models := make([]ChapterModel, 0, len(chapters))
			for _, c := range chapters {
				models = append(models, chapterToModel(c))
			}
			if err := tx.CreateInBatches(&models, 200).Error; err != nil {
				return err
			}
		}
		progressModel := progressToModel(initial)
		return tx.Create(&progressModel).Error
	})
}

// GetBook retrieves a book.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// UpdateBook patches book metadata; nil fields are left untouched.
func (s *GormStore) UpdateBook(id string, title, author *string, isPublic *bool) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if title != nil {
		updates["title"] = *title
	}
	if author != nil {
		updates["author"] = *author
	}
	if isPublic != nil {
		updates["is_public"] = *isPublic
	}
	return s.db.Model(&BookModel{}).Where("id = ?", id).Updates(updates).Error
}

// DeleteBook removes the book, its chapters, and every reader's progress.
func (s *GormStore) DeleteBook(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ChapterModel{}, "book_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ReadingProgressModel{}, "book_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&BookModel{}, "id = ?", id).Error
	})
}

type bookRow struct {
	ID         string
	OwnerID    string
	Title      string
	Author     string
	StorageKey string
	IsPublic   bool
	Length     int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r bookRow) book() domain.Book {
	return domain.Book{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		Title:      r.Title,
		Author:     r.Author,
		StorageKey: r.StorageKey,
		IsPublic:   r.IsPublic,
		Length:     r.Length,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type bookProgressRow struct {
	bookRow             `gorm:"embedded"`
	ProgressPosition    *int64
	ProgressReadingTime *int64
	ProgressLastReadAt  *time.Time
}

// ListBooksByOwner returns the owner's books joined with the viewer's
// progress, most recently read first.
func (s *GormStore) ListBooksByOwner(ownerID, viewerID string, page, limit int) ([]BookWithProgress, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	var total int64
	if err := s.db.Model(&BookModel{}).Where("owner_id = ?", ownerID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []bookProgressRow
	err := s.db.Table("book_models").
		Select("book_models.*, rp.position AS progress_position, rp.reading_time AS progress_reading_time, rp.last_read_at AS progress_last_read_at").
		Joins("LEFT JOIN reading_progress_models rp ON rp.book_id = book_models.id AND rp.user_id = ?", viewerID).
		Where("book_models.owner_id = ?", ownerID).
		Order("rp.last_read_at DESC NULLS LAST, book_models.created_at DESC").
		Limit(limit).Offset((page - 1) * limit).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	res := make([]BookWithProgress, 0, len(rows))
	for _, row := range rows {
		item := BookWithProgress{Book: row.book()}
		if row.ProgressPosition != nil {
			item.Position = *row.ProgressPosition
		}
		if row.ProgressReadingTime != nil {
			item.ReadingTime = *row.ProgressReadingTime
		}
		item.LastReadAt = row.ProgressLastReadAt
		res = append(res, item)
	}
	return res, total, nil
}

type publicBookRow struct {
	bookRow       `gorm:"embedded"`
	OwnerUsername string
}

// ListPublicBooks returns the shared shelf, newest first.
func (s *GormStore) ListPublicBooks(page, limit int) ([]PublicBook, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	var total int64
	if err := s.db.Model(&BookModel{}).Where("is_public = ?", true).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []publicBookRow
	err := s.db.Table("book_models").
		Select("book_models.*, user_models.username AS owner_username").
		Joins("JOIN user_models ON user_models.id = book_models.owner_id").
		Where("book_models.is_public = ?", true).
		Order("book_models.created_at DESC").
		Limit(limit).Offset((page - 1) * limit).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return publicBooksFromRows(rows), total, nil
}

// ListAllPublicBooks returns every public book, used for random sampling.
func (s *GormStore) ListAllPublicBooks() ([]PublicBook, error) {
	var rows []publicBookRow
	err := s.db.Table("book_models").
		Select("book_models.*, user_models.username AS owner_username").
		Joins("JOIN user_models ON user_models.id = book_models.owner_id").
		Where("book_models.is_public = ?", true).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return publicBooksFromRows(rows), nil
}

func publicBooksFromRows(rows []publicBookRow) []PublicBook {
	res := make([]PublicBook, 0, len(rows))
	for _, row := range rows {
		res = append(res, PublicBook{Book: row.book(), OwnerUsername: row.OwnerUsername})
	}
	return res
}

// ListChapters returns a book's chapters in ascending position order.
func (s *GormStore) ListChapters(bookID string) ([]domain.Chapter, error) {
	var models []ChapterModel
	if err := s.db.Where("book_id = ?", bookID).Order("position ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Chapter, 0, len(models))
	for _, m := range models {
		res = append(res, chapterFromModel(m))
	}
	return res, nil
}

// GetChapter resolves a chapter that must belong to the given book.
func (s *GormStore) GetChapter(bookID, chapterID string) (domain.Chapter, bool, error) {
	var model ChapterModel
	if err := s.db.Where("id = ? AND book_id = ?", chapterID, bookID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Chapter{}, false, nil
		}
		return domain.Chapter{}, false, err
	}
	return chapterFromModel(model), true, nil
}

// GetProgress returns the stored progress for (user, book).
func (s *GormStore) GetProgress(userID, bookID string) (domain.ReadingProgress, bool, error) {
	var model ReadingProgressModel
	if err := s.db.Where("user_id = ? AND book_id = ?", userID, bookID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ReadingProgress{}, false, nil
		}
		return domain.ReadingProgress{}, false, err
	}
	return progressFromModel(model), true, nil
}

// EnsureProgress lazily creates a zero progress row, e.g. when a reader
// first opens someone else's public book.
func (s *GormStore) EnsureProgress(userID, bookID string) (domain.ReadingProgress, error) {
	model := ReadingProgressModel{
		ID:     util.NewID(),
		UserID: userID,
		BookID: bookID,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "book_id"}},
		DoNothing: true,
	}).Create(&model).Error
	if err != nil {
		return domain.ReadingProgress{}, err
	}
	rec, _, err := s.GetProgress(userID, bookID)
	return rec, err
}

// SyncHeartbeat reconciles one heartbeat under a row-level lock so that
// concurrent heartbeats on the same (user, book) key serialize and can
// never double-credit elapsed time or clobber each other's position.
func (s *GormStore) SyncHeartbeat(userID, bookID string, hb progress.Heartbeat, now time.Time, maxInterval time.Duration) (progress.Result, error) {
	var res progress.Result
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model ReadingProgressModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND book_id = ?", userID, bookID).
			First(&model).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			next, r := progress.Reconcile(nil, hb, now, maxInterval)
			next.ID = util.NewID()
			next.UserID = userID
			next.BookID = bookID
			created := progressToModel(next)
			create := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "book_id"}},
				DoNothing: true,
			}).Create(&created)
			if create.Error != nil {
				return create.Error
			}
			if create.RowsAffected > 0 {
				res = r
				return nil
			}
			// Lost the creation race; reload under lock and fall through.
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("user_id = ? AND book_id = ?", userID, bookID).
				First(&model).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		}
		prev := progressFromModel(model)
		next, r := progress.Reconcile(&prev, hb, now, maxInterval)
		res = r
		if err := tx.Model(&ReadingProgressModel{}).Where("id = ?", model.ID).Updates(map[string]any{
			"position":       next.Position,
			"reading_time":   next.ReadingTime,
			"last_read_at":   next.LastReadAt,
			"last_device_id": next.LastDeviceID,
		}).Error; err != nil {
			return err
		}
		if r.Credited > 0 {
			if err := tx.Model(&UserModel{}).Where("id = ?", userID).
				UpdateColumn("total_reading_time", gorm.Expr("total_reading_time + ?", r.Credited)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return res, err
}

// GetReadingSettings returns a user's reading settings.
func (s *GormStore) GetReadingSettings(userID string) (domain.ReadingSettings, bool, error) {
	var model ReadingSettingsModel
	if err := s.db.First(&model, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ReadingSettings{}, false, nil
		}
		return domain.ReadingSettings{}, false, err
	}
	return readingSettingsFromModel(model), true, nil
}

// SaveReadingSettings upserts a user's reading settings.
func (s *GormStore) SaveReadingSettings(settings domain.ReadingSettings) error {
	model := readingSettingsToModel(settings)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"font_size", "background_color", "text_color", "line_height",
			"letter_spacing", "paragraph_spacing", "reading_width",
			"text_indent", "simplified_chinese",
		}),
	}).Create(&model).Error
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:               u.ID,
		Username:         u.Username,
		PasswordHash:     u.PasswordHash,
		TotalReadingTime: u.TotalReadingTime,
		CreatedAt:        u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:               m.ID,
		Username:         m.Username,
		PasswordHash:     m.PasswordHash,
		TotalReadingTime: m.TotalReadingTime,
		CreatedAt:        m.CreatedAt,
	}
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:         b.ID,
		OwnerID:    b.OwnerID,
		Title:      b.Title,
		Author:     b.Author,
		StorageKey: b.StorageKey,
		IsPublic:   b.IsPublic,
		Length:     b.Length,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:         m.ID,
		OwnerID:    m.OwnerID,
		Title:      m.Title,
		Author:     m.Author,
		StorageKey: m.StorageKey,
		IsPublic:   m.IsPublic,
		Length:     m.Length,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func chapterToModel(c domain.Chapter) ChapterModel {
	return ChapterModel{
		ID:       c.ID,
		BookID:   c.BookID,
		Title:    c.Title,
		Position: c.Position,
		Ordinal:  c.Ordinal,
	}
}

func chapterFromModel(m ChapterModel) domain.Chapter {
	return domain.Chapter{
		ID:       m.ID,
		BookID:   m.BookID,
		Title:    m.Title,
		Position: m.Position,
		Ordinal:  m.Ordinal,
	}
}

func progressToModel(p domain.ReadingProgress) ReadingProgressModel {
	return ReadingProgressModel{
		ID:           p.ID,
		UserID:       p.UserID,
		BookID:       p.BookID,
		Position:     p.Position,
		ReadingTime:  p.ReadingTime,
		LastReadAt:   p.LastReadAt,
		LastDeviceID: p.LastDeviceID,
	}
}

func progressFromModel(m ReadingProgressModel) domain.ReadingProgress {
	return domain.ReadingProgress{
		ID:           m.ID,
		UserID:       m.UserID,
		BookID:       m.BookID,
		Position:     m.Position,
		ReadingTime:  m.ReadingTime,
		LastReadAt:   m.LastReadAt,
		LastDeviceID: m.LastDeviceID,
	}
}

func readingSettingsToModel(s domain.ReadingSettings) ReadingSettingsModel {
	return ReadingSettingsModel{
		UserID:            s.UserID,
		FontSize:          s.FontSize,
		BackgroundColor:   s.BackgroundColor,
		TextColor:         s.TextColor,
		LineHeight:        s.LineHeight,
		LetterSpacing:     s.LetterSpacing,
		ParagraphSpacing:  s.ParagraphSpacing,
		ReadingWidth:      s.ReadingWidth,
		TextIndent:        s.TextIndent,
		SimplifiedChinese: s.SimplifiedChinese,
	}
}

func readingSettingsFromModel(m ReadingSettingsModel) domain.ReadingSettings {
	return domain.ReadingSettings{
		UserID:            m.UserID,
		FontSize:          m.FontSize,
		BackgroundColor:   m.BackgroundColor,
		TextColor:         m.TextColor,
		LineHeight:        m.LineHeight,
		LetterSpacing:     m.LetterSpacing,
		ParagraphSpacing:  m.ParagraphSpacing,
		ReadingWidth:      m.ReadingWidth,
		TextIndent:        m.TextIndent,
		SimplifiedChinese: m.SimplifiedChinese,
	}
}

func inviteCodeToModel(c domain.InviteCode) InviteCodeModel {
	return InviteCodeModel{
		ID:          c.ID,
		Code:        c.Code,
		LimitTimes:  c.LimitTimes,
		UsedTimes:   c.UsedTimes,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
	}
}

func inviteCodeFromModel(m InviteCodeModel) domain.InviteCode {
	return domain.InviteCode{
		ID:          m.ID,
		Code:        m.Code,
		LimitTimes:  m.LimitTimes,
		UsedTimes:   m.UsedTimes,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
	}
}
