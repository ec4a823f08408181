package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// Kind is the user-facing category of an interactive grant failure.
type Kind string

const (
	KindOriginMismatch Kind = "origin_mismatch"
	KindCancelled      Kind = "cancelled"
	KindAccessDenied   Kind = "access_denied"
	KindUnknown        Kind = "unknown"
)

// AuthError is returned by Connect so callers can show category-specific guidance.
type AuthError struct {
	Kind Kind
	Code string // raw provider error code, if any
	Err  error
}

func (e *AuthError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("drive authorization failed (%s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("drive authorization failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Benign reports whether the failure needs no user-visible message.
func (e *AuthError) Benign() bool { return e.Kind == KindCancelled }

// Guidance returns the remediation text for the failure category.
func (e *AuthError) Guidance() string { return Guidance(e.Kind) }

// CallbackError carries the error code delivered to the redirect endpoint.
type CallbackError struct {
	Code        string
	Description string
}

func (e *CallbackError) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}

// KindForCode maps a provider error code to its category.
func KindForCode(code string) Kind {
	switch code {
	case "origin_mismatch", "redirect_uri_mismatch":
		return KindOriginMismatch
	case "popup_closed_by_user", "popup_closed":
		return KindCancelled
	case "access_denied":
		return KindAccessDenied
	default:
		return KindUnknown
	}
}

// Classify wraps err into an *AuthError. Context cancellation and timeouts are
// treated like the user closing the consent window.
func Classify(err error) *AuthError {
	if err == nil {
		return nil
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &AuthError{Kind: KindCancelled, Err: err}
	}
	var cb *CallbackError
	if errors.As(err, &cb) {
		return &AuthError{Kind: KindForCode(cb.Code), Code: cb.Code, Err: err}
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return &AuthError{Kind: KindForCode(re.ErrorCode), Code: re.ErrorCode, Err: err}
	}
	return &AuthError{Kind: KindUnknown, Err: err}
}

// Guidance texts shown to the user after a failed connect.
const (
	guidanceOriginMismatch = "LỖI CẤU HÌNH (Origin Mismatch):\n" +
		"Hãy vào Google Cloud Console > Credentials > OAuth 2.0 Client ID.\n" +
		"Tại mục 'Authorized redirect URIs', thêm địa chỉ callback của ứng dụng (không có dấu / ở cuối)."
	guidanceAccessDenied = "TỪ CHỐI TRUY CẬP (Access Denied):\n" +
		"Có thể bạn chưa thêm email vào danh sách 'Test Users' trên Google Cloud.\n" +
		"Hãy xem hướng dẫn trong phần Cài đặt."
	guidanceUnknown = "Đăng nhập thất bại. Nếu thấy lỗi 'redirect_uri_mismatch' hoặc 'access_denied', " +
		"hãy kiểm tra mục Cài đặt > Hướng dẫn sửa lỗi."
)

func Guidance(k Kind) string {
	switch k {
	case KindOriginMismatch:
		return guidanceOriginMismatch
	case KindAccessDenied:
		return guidanceAccessDenied
	case KindCancelled:
		return ""
	default:
		return guidanceUnknown
	}
}
