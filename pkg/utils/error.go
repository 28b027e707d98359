package utils

import (
	"context"
	"encoding/json"
	"net/http"
)

// 컨텍스트 키 타입 정의
type contextKey string

// 에러 컨텍스트 키
const (
	ErrorContextKey contextKey = "error"
)

// ErrorContext는 에러 정보를 저장하는 구조체
type ErrorContext struct {
	Error     error
	Message   string
	Code      int
	RequestID string
	Path      string
	Method    string
}

// errorBody는 클라이언트에 전송되는 에러 응답입니다.
type errorBody struct {
	Error     string `json:"error"`
	Code      int    `json:"code"`
	Path      string `json:"path"`
	Method    string `json:"method"`
	RequestID string `json:"request_id,omitempty"`
}

// withErrorSlot은 핸들러가 채울 빈 에러 컨텍스트를 요청에 추가합니다.
// 미들웨어는 같은 포인터를 통해 핸들러가 기록한 에러를 확인합니다.
func withErrorSlot(r *http.Request) *http.Request {
	if GetErrorContext(r.Context()) != nil {
		return r
	}
	ctx := context.WithValue(r.Context(), ErrorContextKey, &ErrorContext{})
	return r.WithContext(ctx)
}

// WithError는 HTTP 요청 컨텍스트에 에러 정보를 저장합니다.
func WithError(r *http.Request, err error) *http.Request {
	return WithErrorAndCodeAndMessage(r, err, http.StatusInternalServerError, err.Error())
}

// WithErrorAndCode는 HTTP 요청 컨텍스트에 에러 정보와 상태 코드를 저장합니다.
func WithErrorAndCode(r *http.Request, err error, code int) *http.Request {
	return WithErrorAndCodeAndMessage(r, err, code, err.Error())
}

// WithErrorAndCodeAndMessage는 HTTP 요청 컨텍스트에 에러 정보, 상태 코드, 사용자 정의 메시지를 저장합니다.
func WithErrorAndCodeAndMessage(r *http.Request, err error, code int, message string) *http.Request {
	if r == nil {
		return nil
	}

	r = withErrorSlot(r)
	errCtx := GetErrorContext(r.Context())
	errCtx.Error = err
	errCtx.Code = code
	errCtx.Message = message
	errCtx.Path = r.URL.Path
	errCtx.Method = r.Method

	// 요청 ID가 있으면 설정
	errCtx.RequestID = RequestIDFromContext(r.Context())
	if errCtx.RequestID == "" {
		errCtx.RequestID = r.Header.Get(RequestIDHeader)
	}

	return r
}

// GetErrorContext는 컨텍스트에서 에러 정보를 가져옵니다.
func GetErrorContext(ctx context.Context) *ErrorContext {
	if ctx == nil {
		return nil
	}

	if errCtx, ok := ctx.Value(ErrorContextKey).(*ErrorContext); ok {
		return errCtx
	}

	return nil
}

// HasError는 컨텍스트에 에러가 있는지 확인합니다.
func HasError(ctx context.Context) bool {
	errCtx := GetErrorContext(ctx)
	return errCtx != nil && errCtx.Error != nil
}

// WriteError는 에러 응답을 클라이언트에 전송합니다.
func WriteError(w http.ResponseWriter, r *http.Request) {
	errCtx := GetErrorContext(r.Context())
	if errCtx == nil || errCtx.Error == nil {
		// 에러 컨텍스트가 없으면 기본 에러 응답
		errCtx = &ErrorContext{
			Code:    http.StatusInternalServerError,
			Message: http.StatusText(http.StatusInternalServerError),
			Path:    r.URL.Path,
			Method:  r.Method,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errCtx.Code)
	json.NewEncoder(w).Encode(errorBody{
		Error:     errCtx.Message,
		Code:      errCtx.Code,
		Path:      errCtx.Path,
		Method:    errCtx.Method,
		RequestID: errCtx.RequestID,
	})
}
