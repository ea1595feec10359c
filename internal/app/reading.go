package app

import (
	"strings"

	"leafreader/pkg/domain"
	"leafreader/pkg/progress"
)

// HeartbeatInput is one periodic progress report from a device.
type HeartbeatInput struct {
	BookID   string
	DeviceID string
	Position int64
}

// HeartbeatResult is the device-facing outcome of a heartbeat.
// Synced == false tells the device it is stale and must re-anchor to
// Position before reporting again.
type HeartbeatResult struct {
	Synced      bool  `json:"synced"`
	Position    int64 `json:"position"`
	ReadingTime int64 `json:"reading_time"`
}

// Heartbeat reconciles one progress report against the authoritative
// record. The reported position is clamped into [0, book length] so a
// client bug can never store an unreadable position.
func (a *App) Heartbeat(userID string, in HeartbeatInput) (HeartbeatResult, error) {
	if strings.TrimSpace(in.DeviceID) == "" {
		return HeartbeatResult{}, NewError(CodeBookFormatInvalid, "device_id required")
	}
	book, err := a.readableBook(userID, in.BookID)
	if err != nil {
		return HeartbeatResult{}, err
	}
	if in.Position < 0 {
		in.Position = 0
	}
	if in.Position > book.Length {
		in.Position = book.Length
	}
	res, err := a.store.SyncHeartbeat(userID, in.BookID, progress.Heartbeat{
		DeviceID: in.DeviceID,
		Position: in.Position,
	}, a.now(), a.heartbeatMaxInterval)
	if err != nil {
		return HeartbeatResult{}, err
	}
	return HeartbeatResult{
		Synced:      res.Synced,
		Position:    res.Position,
		ReadingTime: res.ReadingTime,
	}, nil
}

// GetProgress returns the caller's stored progress for a book.
func (a *App) GetProgress(userID, bookID string) (domain.ReadingProgress, error) {
	if _, err := a.readableBook(userID, bookID); err != nil {
		return domain.ReadingProgress{}, err
	}
	return a.store.EnsureProgress(userID, bookID)
}

// GetReadingSettings returns the caller's reading settings, falling back
// to defaults when none are stored yet.
func (a *App) GetReadingSettings(userID string) (domain.ReadingSettings, error) {
	settings, ok, err := a.store.GetReadingSettings(userID)
	if err != nil {
		return domain.ReadingSettings{}, err
	}
	if !ok {
		return domain.DefaultReadingSettings(userID), nil
	}
	return settings, nil
}

// SaveReadingSettings stores the caller's reading settings.
func (a *App) SaveReadingSettings(userID string, settings domain.ReadingSettings) (domain.ReadingSettings, error) {
	settings.UserID = userID
	if settings.FontSize < 8 || settings.FontSize > 72 {
		return domain.ReadingSettings{}, NewError(CodeBookFormatInvalid, "font_size out of range")
	}
	if err := a.store.SaveReadingSettings(settings); err != nil {
		return domain.ReadingSettings{}, err
	}
	return settings, nil
}
