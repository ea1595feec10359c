package app

import "fmt"

// Business error codes surfaced in the response envelope. Zero means
// success; everything else maps to one stable numeric code per failure.
const (
	CodeAuthFailed         = 1001
	CodeInviteCodeInvalid  = 1002
	CodeUsernameTaken      = 1003
	CodeInvalidToken       = 1004
	CodeAdminRequired      = 1005
	CodeAdminAlreadySetup  = 1006
	CodeOldPasswordWrong   = 1007
	CodeBookNotFound       = 2001
	CodeBookForbidden      = 2002
	CodeBookFormatInvalid  = 2003
	CodeBookTooLarge       = 2004
	CodePositionOutOfRange = 2005
	CodeUserNotFound       = 3001
	CodeInternal           = 9999
)

// Error is a business failure with a stable numeric code.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// NewError builds a business error.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	ErrAuthFailed         = NewError(CodeAuthFailed, "incorrect username or password")
	ErrInviteCodeInvalid  = NewError(CodeInviteCodeInvalid, "invalid or exhausted invite code")
	ErrUsernameTaken      = NewError(CodeUsernameTaken, "username already taken")
	ErrInvalidToken       = NewError(CodeInvalidToken, "invalid or expired token")
	ErrAdminRequired      = NewError(CodeAdminRequired, "admin privileges required")
	ErrAdminAlreadySetup  = NewError(CodeAdminAlreadySetup, "admin account already set up")
	ErrOldPasswordWrong   = NewError(CodeOldPasswordWrong, "old password incorrect")
	ErrBookNotFound       = NewError(CodeBookNotFound, "book not found")
	ErrBookForbidden      = NewError(CodeBookForbidden, "no access to this book")
	ErrBookFormatInvalid  = NewError(CodeBookFormatInvalid, "unsupported book format")
	ErrBookTooLarge       = NewError(CodeBookTooLarge, "book file too large")
	ErrPositionOutOfRange = NewError(CodePositionOutOfRange, "position out of range")
	ErrUserNotFound       = NewError(CodeUserNotFound, "user not found")
)
