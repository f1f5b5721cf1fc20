package model

import "fmt"

// APIError はAPIエラーレスポンスの統一フォーマットを表す。
// レスポンスボディは {title, status, detail} の形式で返す。
type APIError struct {
	Status int    // HTTPステータスコード
	Title  string // エラーの概要
	Detail string // 詳細（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("[%d] %s", e.Status, e.Title)
	}
	return fmt.Sprintf("[%d] %s: %s", e.Status, e.Title, e.Detail)
}

// NewCSRFValidationError はCSRF検証失敗エラーを生成する。
func NewCSRFValidationError() *APIError {
	return &APIError{
		Status: 403,
		Title:  "CSRF validation failed",
	}
}

// NewInvalidRequestBodyError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestBodyError(detail string) *APIError {
	return &APIError{
		Status: 400,
		Title:  "Invalid request body",
		Detail: detail,
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Status: 401,
		Title:  "Unauthorized",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには返さない。
func NewInternalError() *APIError {
	return &APIError{
		Status: 500,
		Title:  "An unexpected error occurred",
	}
}
