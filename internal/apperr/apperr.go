package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"gorm.io/gorm"
)

// Kind 错误分类，决定 HTTP 状态码与是否可重试
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindAuthorization
	KindUnauthenticated
	KindRateLimited
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

// Error 业务错误，Code 供客户端区分具体原因
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	RetryAfter time.Duration // 仅 KindRateLimited
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is 按 Code 比较，Wrap/Withf 产生的副本仍能与哨兵错误匹配
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap 返回带原因的副本
func (e *Error) Wrap(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

func (e *Error) Withf(format string, args ...any) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

// 参数校验
var (
	ErrSelfTarget        = New(KindValidation, "self_target", "cannot target yourself")
	ErrInvalidAction     = New(KindValidation, "invalid_action", "action must be approve or deny")
	ErrInvalidHashFormat = New(KindValidation, "invalid_hash_format", "hashed identifier must be 64 hex characters with type email or phone")
	ErrEmptyIdentifier   = New(KindValidation, "empty_identifier", "identifier is empty after normalization")
	ErrBatchTooLarge     = New(KindValidation, "batch_too_large", "too many identifiers in one batch")
	ErrInvalidArgument   = New(KindValidation, "invalid_argument", "invalid argument")
)

// 冲突
var (
	ErrDuplicateRequest = New(KindConflict, "duplicate_request", "a follow request is already pending")
	ErrAlreadyResolved  = New(KindConflict, "already_resolved", "request has already been resolved")
	ErrAlreadyExists    = New(KindConflict, "already_exists", "resource already exists")
)

// 不存在
var (
	ErrRequestNotFound  = New(KindNotFound, "request_not_found", "follow request not found")
	ErrNoPendingRequest = New(KindNotFound, "no_pending_request", "no pending follow request to cancel")
	ErrNotFollowing     = New(KindNotFound, "not_following", "not following this user")
	ErrProfileNotFound  = New(KindNotFound, "profile_not_found", "profile not found")
	ErrNotFound         = New(KindNotFound, "not_found", "resource not found")
)

// 认证与授权
var (
	ErrNotAuthorized   = New(KindAuthorization, "not_authorized", "only the requestee can respond to this request")
	ErrUnauthenticated = New(KindUnauthenticated, "unauthenticated", "authentication required")
)

// 限流与基础设施
var (
	ErrRateLimitExceeded = New(KindRateLimited, "rate_limit_exceeded", "too many requests")
	ErrTransient         = New(KindTransient, "store_unavailable", "store temporarily unavailable, retry with backoff")
	ErrInternal          = New(KindInternal, "internal", "internal error")
)

func RateLimited(retryAfter time.Duration) *Error {
	c := *ErrRateLimitExceeded
	c.RetryAfter = retryAfter
	return &c
}

// KindOf 非 *Error 一律视为内部错误
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// IsRetryable 调用方可退避重试
func IsRetryable(err error) bool {
	return IsKind(err, KindTransient)
}

// FromStore 归类 gorm 返回的错误，已是 *Error 的原样返回
func FromStore(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrAlreadyExists.Wrap(err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound.Wrap(err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrTransient.Wrap(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrTransient.Wrap(err)
	}
	return ErrInternal.Wrap(err)
}
