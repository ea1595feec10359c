package store

import (
	"sort"
	"sync"
	"time"

	"leafreader/internal/util"
	"leafreader/pkg/domain"
	"leafreader/pkg/progress"
)

// MemoryStore is an in-memory Store used in tests. A single mutex
// serializes every call, which also gives SyncHeartbeat the same
// one-at-a-time guarantee the SQL version gets from row locks.
type MemoryStore struct {
	mu          sync.Mutex
	users       map[string]domain.User
	admin       *domain.Admin
	books       map[string]domain.Book
	chapters    map[string][]domain.Chapter
	progressRec map[string]domain.ReadingProgress
	readingSet  map[string]domain.ReadingSettings
	inviteCodes map[string]domain.InviteCode
	settings    domain.Settings
	bookOrder   []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]domain.User),
		books:       make(map[string]domain.Book),
		chapters:    make(map[string][]domain.Chapter),
		progressRec: make(map[string]domain.ReadingProgress),
		readingSet:  make(map[string]domain.ReadingSettings),
		inviteCodes: make(map[string]domain.InviteCode),
	}
}

func progressKey(userID, bookID string) string { return userID + "/" + bookID }

func (s *MemoryStore) SaveUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) HasUsername(username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetUserByUsername(username string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) ListUsers() ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (s *MemoryStore) SetUserPassword(id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	u.PasswordHash = passwordHash
	s.users[id] = u
	return nil
}

func (s *MemoryStore) CountBooksByOwner(ownerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, b := range s.books {
		if b.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) GetAdmin() (domain.Admin, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.admin == nil {
		return domain.Admin{}, false, nil
	}
	return *s.admin, true, nil
}

func (s *MemoryStore) SaveAdmin(a domain.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admin = &a
	return nil
}

func (s *MemoryStore) CreateInviteCode(c domain.InviteCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inviteCodes[c.Code] = c
	return nil
}

func (s *MemoryStore) GetInviteCode(code string) (domain.InviteCode, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.inviteCodes[code]
	return c, ok, nil
}

func (s *MemoryStore) ListInviteCodes() ([]domain.InviteCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]domain.InviteCode, 0, len(s.inviteCodes))
	for _, c := range s.inviteCodes {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (s *MemoryStore) ConsumeInviteCode(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.inviteCodes[code]
	if !ok {
		return nil
	}
	c.UsedTimes++
	s.inviteCodes[code] = c
	return nil
}

func (s *MemoryStore) GetSettings() (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

func (s *MemoryStore) SaveSettings(settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

func (s *MemoryStore) CreateBook(book domain.Book, chapters []domain.Chapter, initial domain.ReadingProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[book.ID] = book
	s.bookOrder = append(s.bookOrder, book.ID)
	s.chapters[book.ID] = append([]domain.Chapter(nil), chapters...)
	s.progressRec[progressKey(initial.UserID, initial.BookID)] = initial
	return nil
}

func (s *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	return b, ok, nil
}

func (s *MemoryStore) UpdateBook(id string, title, author *string, isPublic *bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return nil
	}
	if title != nil {
		b.Title = *title
	}
	if author != nil {
		b.Author = *author
	}
	if isPublic != nil {
		b.IsPublic = *isPublic
	}
	b.UpdatedAt = time.Now().UTC()
	s.books[id] = b
	return nil
}

func (s *MemoryStore) DeleteBook(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.books, id)
	delete(s.chapters, id)
	for key, rec := range s.progressRec {
		if rec.BookID == id {
			delete(s.progressRec, key)
		}
	}
	for i, bid := range s.bookOrder {
		if bid == id {
			s.bookOrder = append(s.bookOrder[:i], s.bookOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) ListBooksByOwner(ownerID, viewerID string, page, limit int) ([]BookWithProgress, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	var all []BookWithProgress
	for _, id := range s.bookOrder {
		b, ok := s.books[id]
		if !ok || b.OwnerID != ownerID {
			continue
		}
		item := BookWithProgress{Book: b}
		if rec, ok := s.progressRec[progressKey(viewerID, id)]; ok {
			item.Position = rec.Position
			item.ReadingTime = rec.ReadingTime
			if !rec.LastReadAt.IsZero() {
				t := rec.LastReadAt
				item.LastReadAt = &t
			}
		}
		all = append(all, item)
	}
	sort.SliceStable(all, func(i, j int) bool {
		li, lj := all[i].LastReadAt, all[j].LastReadAt
		switch {
		case li != nil && lj != nil:
			return li.After(*lj)
		case li != nil:
			return true
		case lj != nil:
			return false
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (s *MemoryStore) ListPublicBooks(page, limit int) ([]PublicBook, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	all := s.publicBooksLocked()
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (s *MemoryStore) ListAllPublicBooks() ([]PublicBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publicBooksLocked(), nil
}

func (s *MemoryStore) publicBooksLocked() []PublicBook {
	var all []PublicBook
	for _, id := range s.bookOrder {
		b, ok := s.books[id]
		if !ok || !b.IsPublic {
			continue
		}
		owner := s.users[b.OwnerID]
		all = append(all, PublicBook{Book: b, OwnerUsername: owner.Username})
	}
	return all
}

func (s *MemoryStore) ListChapters(bookID string) ([]domain.Chapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := append([]domain.Chapter(nil), s.chapters[bookID]...)
	sort.Slice(res, func(i, j int) bool { return res[i].Position < res[j].Position })
	return res, nil
}

func (s *MemoryStore) GetChapter(bookID, chapterID string) (domain.Chapter, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.chapters[bookID] {
		if c.ID == chapterID {
			return c, true, nil
		}
	}
	return domain.Chapter{}, false, nil
}

func (s *MemoryStore) GetProgress(userID, bookID string) (domain.ReadingProgress, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.progressRec[progressKey(userID, bookID)]
	return rec, ok, nil
}

func (s *MemoryStore) EnsureProgress(userID, bookID string) (domain.ReadingProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := progressKey(userID, bookID)
	if rec, ok := s.progressRec[key]; ok {
		return rec, nil
	}
	rec := domain.ReadingProgress{ID: util.NewID(), UserID: userID, BookID: bookID}
	s.progressRec[key] = rec
	return rec, nil
}

func (s *MemoryStore) SyncHeartbeat(userID, bookID string, hb progress.Heartbeat, now time.Time, maxInterval time.Duration) (progress.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := progressKey(userID, bookID)
	var prev *domain.ReadingProgress
	if rec, ok := s.progressRec[key]; ok {
		prev = &rec
	}
	next, res := progress.Reconcile(prev, hb, now, maxInterval)
	if prev == nil {
		next.ID = util.NewID()
		next.UserID = userID
		next.BookID = bookID
	}
	s.progressRec[key] = next
	if res.Credited > 0 {
		if u, ok := s.users[userID]; ok {
			u.TotalReadingTime += res.Credited
			s.users[userID] = u
		}
	}
	return res, nil
}

func (s *MemoryStore) GetReadingSettings(userID string) (domain.ReadingSettings, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.readingSet[userID]
	return rec, ok, nil
}

func (s *MemoryStore) SaveReadingSettings(settings domain.ReadingSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readingSet[settings.UserID] = settings
	return nil
}
