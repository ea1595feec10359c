package server

import (
	"net/http"
	"strconv"

	"leafreader/internal/app"
)

func (s *Server) handleUploadBook(w http.ResponseWriter, r *http.Request, userID string) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		writeAppError(w, app.ErrBookTooLarge)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "file field required")
		return
	}
	defer file.Close()

	book, err := s.app.UploadBook(r.Context(), userID, header.Filename,
		r.FormValue("title"), r.FormValue("author"),
		r.FormValue("is_public") == "true", file, header.Size)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, book)
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request, userID string) {
	page, limit := pagination(r)
	books, total, err := s.app.ListBooks(userID, page, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, map[string]any{"books": books, "total": total, "page": page, "limit": limit})
}

func (s *Server) handleListPublicBooks(w http.ResponseWriter, r *http.Request, _ string) {
	page, limit := pagination(r)
	books, total, err := s.app.ListPublicBooks(page, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, map[string]any{"books": books, "total": total, "page": page, "limit": limit})
}

func (s *Server) handleRandomPublicBooks(w http.ResponseWriter, r *http.Request, _ string) {
	count, _ := strconv.Atoi(r.URL.Query().Get("count"))
	books, err := s.app.RandomPublicBooks(count)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, map[string]any{"books": books})
}

func (s *Server) handleBookDetail(w http.ResponseWriter, r *http.Request, userID string) {
	detail, err := s.app.GetBookDetail(userID, r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, detail)
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		Title    *string `json:"title"`
		Author   *string `json:"author"`
		IsPublic *bool   `json:"is_public"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	book, err := s.app.UpdateBook(userID, r.PathValue("id"), req.Title, req.Author, req.IsPublic)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, book)
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.app.DeleteBook(r.Context(), userID, r.PathValue("id")); err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request, userID string) {
	q := r.URL.Query()
	position, err := strconv.ParseInt(q.Get("position"), 10, 64)
	if err != nil && q.Get("position") != "" {
		writeBadRequest(w, "position must be an integer")
		return
	}
	var length int64
	if raw := q.Get("length"); raw != "" {
		length, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, "length must be an integer")
			return
		}
	}
	window, err := s.app.Content(r.Context(), userID, r.PathValue("id"), position, length)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, window)
}

func (s *Server) handleListChapters(w http.ResponseWriter, r *http.Request, userID string) {
	chapters, err := s.app.ListChapters(userID, r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, map[string]any{"chapters": chapters})
}

func (s *Server) handleJumpToChapter(w http.ResponseWriter, r *http.Request, userID string) {
	ch, err := s.app.LocateChapter(userID, r.PathValue("id"), r.URL.Query().Get("chapter_id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, ch)
}

func (s *Server) handleChapterContent(w http.ResponseWriter, r *http.Request, userID string) {
	window, err := s.app.JumpToChapter(r.Context(), userID, r.PathValue("id"), r.PathValue("chapterID"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, window)
}

func pagination(r *http.Request) (page, limit int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	limit, _ = strconv.Atoi(q.Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return page, limit
}
