package utils

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

// RequestIDHeader는 요청 ID를 전달하는 헤더입니다.
const RequestIDHeader = "X-Request-ID"

const requestIDContextKey contextKey = "request_id"

// RequestIDGenerator는 snowflake 기반의 고유한 요청 ID를 생성합니다.
type RequestIDGenerator struct {
	node *snowflake.Node
}

// NewRequestIDGenerator는 nodeID(0-1023)를 사용하는 생성기를 만듭니다.
func NewRequestIDGenerator(nodeID int64) (*RequestIDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node: %w", err)
	}
	return &RequestIDGenerator{node: node}, nil
}

// Generate는 새 요청 ID를 반환합니다.
func (g *RequestIDGenerator) Generate() string {
	return g.node.Generate().String()
}

// RequestIDMiddleware는 요청 ID를 생성하는 미들웨어입니다.
func RequestIDMiddleware(gen *RequestIDGenerator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 요청 ID 확인
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = gen.Generate()
				r.Header.Set(RequestIDHeader, requestID)
			}

			// 응답 헤더에 요청 ID 설정
			w.Header().Set(RequestIDHeader, requestID)

			ctx := context.WithValue(r.Context(), requestIDContextKey, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext는 컨텍스트에 저장된 요청 ID를 반환합니다.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDContextKey).(string); ok {
		return id
	}
	return ""
}

// ErrorHandlerMiddleware는 에러를 처리하는 미들웨어입니다.
// 핸들러가 기록한 에러를 로깅하고, 패닉이 발생하면 500 응답을 보냅니다.
func ErrorHandlerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 핸들러가 채울 에러 컨텍스트
			r = withErrorSlot(r)

			// 패닉 복구
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("HTTP handler panic",
						zap.Any("error", rec),
						zap.String("stack", string(debug.Stack())),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.String("ip", r.RemoteAddr),
						zap.String("userAgent", r.UserAgent()),
					)

					r = WithErrorAndCodeAndMessage(r, fmt.Errorf("panic: %v", rec),
						http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
					WriteError(w, r)
				}
			}()

			next.ServeHTTP(w, r)

			errCtx := GetErrorContext(r.Context())
			if errCtx == nil || errCtx.Error == nil {
				return
			}

			level := zap.DebugLevel
			if errCtx.Code >= http.StatusInternalServerError {
				level = zap.ErrorLevel
			}
			if ce := logger.Check(level, "Request error"); ce != nil {
				ce.Write(
					zap.Error(errCtx.Error),
					zap.String("message", errCtx.Message),
					zap.Int("code", errCtx.Code),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("requestID", errCtx.RequestID),
				)
			}
		})
	}
}
