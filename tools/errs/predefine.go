package errs

import "net/http"

const (
	ServerInternalError = 500

	ArgsError           = 1001
	RecordNotFoundError = 1004
	DuplicateKeyError   = 1009
	StoreError          = 1500

	UnauthorizedError = 1401
	TokenExpiredError = 1402
	TokenInvalidError = 1403
	TokenKickedError  = 1404
)

var (
	ErrInternalServer = NewCodeError(ServerInternalError, "ServerInternalError")
	ErrArgs           = NewCodeError(ArgsError, "ArgsError")
	ErrRecordNotFound = NewCodeError(RecordNotFoundError, "RecordNotFoundError")
	ErrDuplicateKey   = NewCodeError(DuplicateKeyError, "DuplicateKeyError")
	ErrStore          = NewCodeError(StoreError, "StoreError")

	ErrUnauthorized = NewCodeError(UnauthorizedError, "Unauthorized")
	ErrTokenExpired = NewCodeError(TokenExpiredError, "TokenExpiredError")
	ErrTokenInvalid = NewCodeError(TokenInvalidError, "TokenInvalidError")
	ErrTokenKicked  = NewCodeError(TokenKickedError, "TokenKickedError")
)

func init() {
	_ = DefaultCodeRelation.Add(UnauthorizedError, TokenExpiredError)
	_ = DefaultCodeRelation.Add(UnauthorizedError, TokenInvalidError)
	_ = DefaultCodeRelation.Add(UnauthorizedError, TokenKickedError)
}

var httpStatus = map[int]int{
	ArgsError:           http.StatusBadRequest,
	RecordNotFoundError: http.StatusNotFound,
	DuplicateKeyError:   http.StatusConflict,
	UnauthorizedError:   http.StatusUnauthorized,
	TokenExpiredError:   http.StatusUnauthorized,
	TokenInvalidError:   http.StatusUnauthorized,
	TokenKickedError:    http.StatusUnauthorized,
	StoreError:          http.StatusInternalServerError,
	ServerInternalError: http.StatusInternalServerError,
}

// HTTPStatus maps err to the status code a request handler should answer with.
func HTTPStatus(err error) int {
	codeErr, ok := AsCodeError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if s, ok := httpStatus[codeErr.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Message is the caller-visible text for err: the detail when present, else the code name.
func Message(err error) string {
	codeErr, ok := AsCodeError(err)
	if !ok {
		return err.Error()
	}
	if codeErr.Detail != "" {
		return codeErr.Detail
	}
	return codeErr.Msg
}
