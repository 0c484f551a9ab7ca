package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, barbershop, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeBarbershopNotFound = "BARBERSHOP_NOT_FOUND"
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeStore              = "STORE_ERROR"
	ErrCodeConfiguration      = "CONFIGURATION_ERROR"
	ErrCodeInvalidAPIKey      = "INVALID_API_KEY"
)

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "User not authenticated",
		Category: "auth",
		Action:   "Sign in and try again.",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワード不一致のエラーを生成する。
// どちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid login credentials",
		Category: "auth",
		Action:   "Check your email and password.",
	}
}

// NewBarbershopNotFoundError は店舗が見つからない場合のエラーを生成する。
// 他ユーザー所有の店舗に対しても同一のエラーを返し、存在を漏らさない。
func NewBarbershopNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeBarbershopNotFound,
		Message:  "Barbershop not found",
		Category: "barbershop",
		Action:   "Go back to the barbershop list and pick an existing entry.",
	}
}

// NewValidationError は入力検証エラーを生成する。
// 複数の違反は "; " で連結してMessageに格納する。
func NewValidationError(violations []string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  strings.Join(violations, "; "),
		Category: "validation",
		Action:   "Fix the highlighted fields and submit again.",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Request body could not be parsed",
		Category: "validation",
		Action:   "Send a valid JSON body.",
	}
}

// NewStoreError はデータストア障害のエラーを生成する。
// 詳細はログのみに記録し、利用者には一般的なメッセージを返す。
func NewStoreError() *APIError {
	return &APIError{
		Code:     ErrCodeStore,
		Message:  "The data store is unavailable",
		Category: "system",
		Action:   "Wait a moment and try again.",
	}
}

// NewInvalidAPIKeyError はapikeyヘッダーが不正な場合のエラーを生成する。
func NewInvalidAPIKeyError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAPIKey,
		Message:  "Invalid API key",
		Category: "auth",
		Action:   "Send the public store key in the apikey header.",
	}
}

// ConfigurationError は起動時の設定不備を表す。
// 起動処理を中断させる致命的エラーとして扱う。
type ConfigurationError struct {
	Missing []string
	Reason  string
}

// Error はerrorインターフェースを実装する。
func (e *ConfigurationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("configuration error: required environment variables are not set: %v", e.Missing)
	}
	return fmt.Sprintf("configuration error: %s", e.Reason)
}
