package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leafreader/internal/app"
	"leafreader/pkg/storage"
	"leafreader/pkg/store"
)

const testBookText = "前言\n第一章 起点\n这是第一章的内容。\n第二章 终点\n这是第二章的内容。"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	core, err := app.New(app.Config{
		Store:                store.NewMemoryStore(),
		Objects:              storage.NewMemoryObjectStore(),
		JWTSecret:            "test-secret",
		UserTokenTTL:         time.Hour,
		AdminTokenTTL:        time.Hour,
		MaxUploadBytes:       1 << 20,
		HeartbeatMaxInterval: 30 * time.Second,
		ContentDefaultLength: 4000,
		ContentMinLength:     100,
		ContentMaxLength:     10000,
	})
	if err != nil {
		t.Fatalf("init app: %v", err)
	}
	srv := httptest.NewServer(New(Config{App: core, MaxUploadBytes: 1 << 20}).Router())
	t.Cleanup(srv.Close)
	return srv
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, body any) (int, apiResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response for %s %s: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func registerUser(t *testing.T, srv *httptest.Server, username string) string {
	t.Helper()
	status, resp := doJSON(t, srv, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"password": "password123",
	})
	if status != http.StatusOK || resp.Code != 0 {
		t.Fatalf("register %s: status=%d code=%d %s", username, status, resp.Code, resp.Message)
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode register data: %v", err)
	}
	return data.Token
}

func uploadBook(t *testing.T, srv *httptest.Server, token, filename, text string) string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(text)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/books/upload", &buf)
	if err != nil {
		t.Fatalf("new upload request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if out.Code != 0 {
		t.Fatalf("upload failed: code=%d %s", out.Code, out.Message)
	}
	var book struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(out.Data, &book); err != nil {
		t.Fatalf("decode book: %v", err)
	}
	return book.ID
}

func TestUploadIndexAndRead(t *testing.T) {
	srv := newTestServer(t)
	token := registerUser(t, srv, "alice")
	bookID := uploadBook(t, srv, token, "小说.txt", testBookText)

	// Detail carries the chapter index and zero progress.
	status, resp := doJSON(t, srv, http.MethodGet, "/api/books/"+bookID, token, nil)
	if status != http.StatusOK || resp.Code != 0 {
		t.Fatalf("detail: status=%d code=%d", status, resp.Code)
	}
	var detail struct {
		Length   int64 `json:"length"`
		Position int64 `json:"position"`
		Chapters []struct {
			ID       string `json:"chapter_id"`
			Title    string `json:"title"`
			Position int64  `json:"position"`
			Ordinal  int    `json:"ordinal"`
		} `json:"chapters"`
	}
	if err := json.Unmarshal(resp.Data, &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.Length != 36 {
		t.Fatalf("expected length 36, got %d", detail.Length)
	}
	if len(detail.Chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %+v", detail.Chapters)
	}
	if detail.Chapters[0].Position != 3 || detail.Chapters[1].Position != 20 {
		t.Fatalf("unexpected chapter positions: %+v", detail.Chapters)
	}
	if detail.Position != 0 {
		t.Fatalf("fresh book must start at position 0, got %d", detail.Position)
	}

	// Whole text in one window.
	_, resp = doJSON(t, srv, http.MethodGet, "/api/books/"+bookID+"/content?position=0", token, nil)
	var window struct {
		Content      string `json:"content"`
		NextPosition int64  `json:"next_position"`
		IsEnd        bool   `json:"is_end"`
	}
	if err := json.Unmarshal(resp.Data, &window); err != nil {
		t.Fatalf("decode window: %v", err)
	}
	if window.Content != testBookText || window.NextPosition != 36 || !window.IsEnd {
		t.Fatalf("unexpected window: next=%d end=%v", window.NextPosition, window.IsEnd)
	}

	// End-of-book sentinel.
	_, resp = doJSON(t, srv, http.MethodGet, "/api/books/"+bookID+"/content?position=36", token, nil)
	if err := json.Unmarshal(resp.Data, &window); err != nil {
		t.Fatalf("decode window: %v", err)
	}
	if window.Content != "" || window.NextPosition != 36 {
		t.Fatalf("end-of-book window must be empty with an unchanged cursor: %+v", window)
	}

	// Past the end is an error.
	status, resp = doJSON(t, srv, http.MethodGet, "/api/books/"+bookID+"/content?position=37", token, nil)
	if status != http.StatusBadRequest || resp.Code != app.CodePositionOutOfRange {
		t.Fatalf("expected position-out-of-range, got status=%d code=%d", status, resp.Code)
	}

	// Locating a chapter returns the indexed mark.
	_, resp = doJSON(t, srv, http.MethodGet,
		"/api/books/"+bookID+"/jump_to_chapter?chapter_id="+detail.Chapters[1].ID, token, nil)
	var mark struct {
		Position int64 `json:"position"`
	}
	if err := json.Unmarshal(resp.Data, &mark); err != nil {
		t.Fatalf("decode chapter mark: %v", err)
	}
	if mark.Position != 20 {
		t.Fatalf("expected chapter mark at 20, got %d", mark.Position)
	}

	// Chapter jump.
	_, resp = doJSON(t, srv, http.MethodGet,
		fmt.Sprintf("/api/books/%s/chapters/%s/content", bookID, detail.Chapters[1].ID), token, nil)
	if err := json.Unmarshal(resp.Data, &window); err != nil {
		t.Fatalf("decode chapter window: %v", err)
	}
	if len(window.Content) == 0 || window.Content[:len("第二章")] != "第二章" {
		t.Fatalf("chapter window must start at the heading: %q", window.Content)
	}
}

func TestHeartbeatAcrossDevices(t *testing.T) {
	srv := newTestServer(t)
	token := registerUser(t, srv, "alice")
	bookID := uploadBook(t, srv, token, "book.txt", testBookText)

	hb := func(device string, position int64) (int, apiResponse) {
		return doJSON(t, srv, http.MethodPost, "/api/reading/heartbeat", token,
			map[string]any{"book_id": bookID, "device_id": device, "position": position})
	}

	var res struct {
		Synced      bool  `json:"synced"`
		Position    int64 `json:"position"`
		ReadingTime int64 `json:"reading_time"`
	}

	_, resp := hb("phone", 10)
	if err := json.Unmarshal(resp.Data, &res); err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if !res.Synced || res.Position != 10 {
		t.Fatalf("phone heartbeat: %+v", res)
	}

	// A stale tablet must be told to re-anchor.
	_, resp = hb("tablet", 3)
	if err := json.Unmarshal(resp.Data, &res); err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if res.Synced {
		t.Fatal("stale tablet must not be synced")
	}
	if res.Position != 10 {
		t.Fatalf("stored position must win, got %d", res.Position)
	}

	// Re-anchored tablet continues from the synced position.
	_, resp = hb("tablet", 10)
	if err := json.Unmarshal(resp.Data, &res); err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if !res.Synced || res.Position != 10 {
		t.Fatalf("re-anchored tablet heartbeat: %+v", res)
	}

	// Reported positions beyond the book length clamp to the end.
	_, resp = hb("tablet", 9999)
	if err := json.Unmarshal(resp.Data, &res); err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if res.Position != 36 {
		t.Fatalf("position must clamp to book length, got %d", res.Position)
	}

	// Missing device id is rejected.
	status, resp := hb("", 0)
	if status != http.StatusBadRequest || resp.Code == 0 {
		t.Fatalf("expected rejection for empty device id, got status=%d code=%d", status, resp.Code)
	}
}

func TestBookSharingAndAccessControl(t *testing.T) {
	srv := newTestServer(t)
	alice := registerUser(t, srv, "alice")
	bob := registerUser(t, srv, "bob")
	bookID := uploadBook(t, srv, alice, "book.txt", testBookText)

	// Private book is invisible to others.
	status, resp := doJSON(t, srv, http.MethodGet, "/api/books/"+bookID, bob, nil)
	if status != http.StatusForbidden || resp.Code != app.CodeBookForbidden {
		t.Fatalf("expected forbidden, got status=%d code=%d", status, resp.Code)
	}

	// Owner shares it.
	isPublic := true
	_, resp = doJSON(t, srv, http.MethodPut, "/api/books/"+bookID, alice, map[string]any{"is_public": isPublic})
	if resp.Code != 0 {
		t.Fatalf("share book: code=%d %s", resp.Code, resp.Message)
	}

	// Bob can now read and gets his own progress.
	_, resp = doJSON(t, srv, http.MethodGet, "/api/books/"+bookID, bob, nil)
	if resp.Code != 0 {
		t.Fatalf("bob detail: code=%d", resp.Code)
	}
	_, resp = doJSON(t, srv, http.MethodPost, "/api/reading/heartbeat", bob,
		map[string]any{"book_id": bookID, "device_id": "bob-phone", "position": 7})
	if resp.Code != 0 {
		t.Fatalf("bob heartbeat: code=%d", resp.Code)
	}

	// Shared shelf lists it with the owner's name.
	_, resp = doJSON(t, srv, http.MethodGet, "/api/books/public", bob, nil)
	var shelf struct {
		Books []struct {
			ID            string `json:"id"`
			OwnerUsername string `json:"owner_username"`
		} `json:"books"`
		Total int64 `json:"total"`
	}
	if err := json.Unmarshal(resp.Data, &shelf); err != nil {
		t.Fatalf("decode shelf: %v", err)
	}
	if shelf.Total != 1 || shelf.Books[0].OwnerUsername != "alice" {
		t.Fatalf("unexpected shelf: %+v", shelf)
	}

	// Sharing is not ownership: bob cannot modify or delete.
	status, resp = doJSON(t, srv, http.MethodDelete, "/api/books/"+bookID, bob, nil)
	if status != http.StatusForbidden || resp.Code != app.CodeBookForbidden {
		t.Fatalf("expected forbidden delete, got status=%d code=%d", status, resp.Code)
	}

	// Owner deletes; the book and its content disappear.
	_, resp = doJSON(t, srv, http.MethodDelete, "/api/books/"+bookID, alice, nil)
	if resp.Code != 0 {
		t.Fatalf("owner delete: code=%d", resp.Code)
	}
	status, resp = doJSON(t, srv, http.MethodGet, "/api/books/"+bookID, alice, nil)
	if status != http.StatusNotFound || resp.Code != app.CodeBookNotFound {
		t.Fatalf("expected not found after delete, got status=%d code=%d", status, resp.Code)
	}
}

func TestUploadValidation(t *testing.T) {
	srv := newTestServer(t)
	token := registerUser(t, srv, "alice")

	// Wrong extension.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "book.epub")
	_, _ = fw.Write([]byte("not a txt"))
	_ = mw.Close()
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/books/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Code != app.CodeBookFormatInvalid {
		t.Fatalf("expected format error, got code=%d", out.Code)
	}
}

func TestAuthFlows(t *testing.T) {
	srv := newTestServer(t)
	registerUser(t, srv, "alice")

	// Duplicate username.
	status, resp := doJSON(t, srv, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "password": "password123",
	})
	if status != http.StatusBadRequest || resp.Code != app.CodeUsernameTaken {
		t.Fatalf("expected username-taken, got status=%d code=%d", status, resp.Code)
	}

	// Wrong password.
	status, resp = doJSON(t, srv, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice", "password": "wrong",
	})
	if status != http.StatusUnauthorized || resp.Code != app.CodeAuthFailed {
		t.Fatalf("expected auth failure, got status=%d code=%d", status, resp.Code)
	}

	// Missing token.
	status, resp = doJSON(t, srv, http.MethodGet, "/api/auth/user_info", "", nil)
	if status != http.StatusUnauthorized || resp.Code != app.CodeInvalidToken {
		t.Fatalf("expected token error, got status=%d code=%d", status, resp.Code)
	}

	// Login and inspect account info.
	_, resp = doJSON(t, srv, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice", "password": "password123",
	})
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Data, &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	uploadBook(t, srv, login.Token, "a.txt", testBookText)
	_, resp = doJSON(t, srv, http.MethodGet, "/api/auth/user_info", login.Token, nil)
	var info struct {
		Username  string `json:"username"`
		BookCount int64  `json:"book_count"`
	}
	if err := json.Unmarshal(resp.Data, &info); err != nil {
		t.Fatalf("decode user info: %v", err)
	}
	if info.Username != "alice" || info.BookCount != 1 {
		t.Fatalf("unexpected user info: %+v", info)
	}

	// Change password and log in with the new one.
	_, resp = doJSON(t, srv, http.MethodPost, "/api/auth/change_password", login.Token, map[string]string{
		"old_password": "password123", "new_password": "password456",
	})
	if resp.Code != 0 {
		t.Fatalf("change password: code=%d %s", resp.Code, resp.Message)
	}
	_, resp = doJSON(t, srv, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice", "password": "password456",
	})
	if resp.Code != 0 {
		t.Fatalf("login with new password: code=%d", resp.Code)
	}
}

func TestAdminAndInviteGating(t *testing.T) {
	srv := newTestServer(t)

	_, resp := doJSON(t, srv, http.MethodGet, "/api/admin/check_setup", "", nil)
	var setup struct {
		Initialized bool `json:"initialized"`
	}
	if err := json.Unmarshal(resp.Data, &setup); err != nil {
		t.Fatalf("decode check_setup: %v", err)
	}
	if setup.Initialized {
		t.Fatal("fresh instance must report uninitialized")
	}

	// First run: create the admin, which turns invite gating on.
	_, resp = doJSON(t, srv, http.MethodPost, "/api/auth/admin/setup", "", map[string]string{"password": "admin-secret"})
	if resp.Code != 0 {
		t.Fatalf("admin setup: code=%d %s", resp.Code, resp.Message)
	}
	var adminLogin struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Data, &adminLogin); err != nil {
		t.Fatalf("decode setup: %v", err)
	}

	// Second setup attempt is rejected.
	status, resp := doJSON(t, srv, http.MethodPost, "/api/auth/admin/setup", "", map[string]string{"password": "other"})
	if status != http.StatusBadRequest || resp.Code != app.CodeAdminAlreadySetup {
		t.Fatalf("expected already-setup, got status=%d code=%d", status, resp.Code)
	}

	// A user token is not an admin token.
	status, resp = doJSON(t, srv, http.MethodGet, "/api/admin/users", "", nil)
	if status != http.StatusForbidden || resp.Code != app.CodeAdminRequired {
		t.Fatalf("expected admin-required, got status=%d code=%d", status, resp.Code)
	}

	// Registration now requires a valid invite code.
	status, resp = doJSON(t, srv, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "carol", "password": "password123",
	})
	if status != http.StatusBadRequest || resp.Code != app.CodeInviteCodeInvalid {
		t.Fatalf("expected invite-code error, got status=%d code=%d", status, resp.Code)
	}

	_, resp = doJSON(t, srv, http.MethodGet, "/api/admin/invite_codes", adminLogin.Token, nil)
	var codes struct {
		InviteCodes []struct {
			Code string `json:"code"`
		} `json:"invite_codes"`
	}
	if err := json.Unmarshal(resp.Data, &codes); err != nil {
		t.Fatalf("decode invite codes: %v", err)
	}
	if len(codes.InviteCodes) == 0 {
		t.Fatal("setup must seed an initial invite code")
	}

	_, resp = doJSON(t, srv, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "carol", "password": "password123", "invite_code": codes.InviteCodes[0].Code,
	})
	if resp.Code != 0 {
		t.Fatalf("register with invite code: code=%d %s", resp.Code, resp.Message)
	}

	// Admin can turn the gate back off.
	_, resp = doJSON(t, srv, http.MethodPut, "/api/admin/settings", adminLogin.Token,
		map[string]bool{"invite_code_required": false})
	if resp.Code != 0 {
		t.Fatalf("update settings: code=%d", resp.Code)
	}
	_, resp = doJSON(t, srv, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "dave", "password": "password123",
	})
	if resp.Code != 0 {
		t.Fatalf("register without invite code after ungating: code=%d", resp.Code)
	}
}

func TestReadingSettings(t *testing.T) {
	srv := newTestServer(t)
	token := registerUser(t, srv, "alice")

	// Defaults come back before anything is stored.
	_, resp := doJSON(t, srv, http.MethodGet, "/api/reading/settings", token, nil)
	var settings struct {
		FontSize        int    `json:"font_size"`
		BackgroundColor string `json:"background_color"`
	}
	if err := json.Unmarshal(resp.Data, &settings); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if settings.FontSize != 18 || settings.BackgroundColor != "#F5F5DC" {
		t.Fatalf("unexpected default settings: %+v", settings)
	}

	// Save and read back.
	_, resp = doJSON(t, srv, http.MethodPut, "/api/reading/settings", token, map[string]any{
		"font_size": 22, "background_color": "#FFFFFF", "text_color": "#111111",
		"line_height": 1.8, "letter_spacing": 0.1, "paragraph_spacing": 1.0,
		"reading_width": 700, "text_indent": 2.0, "simplified_chinese": false,
	})
	if resp.Code != 0 {
		t.Fatalf("save settings: code=%d %s", resp.Code, resp.Message)
	}
	_, resp = doJSON(t, srv, http.MethodGet, "/api/reading/settings", token, nil)
	if err := json.Unmarshal(resp.Data, &settings); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if settings.FontSize != 22 {
		t.Fatalf("settings not persisted: %+v", settings)
	}
}
