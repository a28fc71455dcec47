package response

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/village/internal/apperr"
	"github.com/d60-Lab/village/pkg/logger"
)

// Response 统一响应结构
type Response struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

const codeOK = "ok"

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: codeOK, Message: "success", Data: data})
}

// Created 创建成功
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Code: codeOK, Message: "created", Data: data})
}

// BadRequest 请求参数错误
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Code: "invalid_request", Message: message})
}

// Unauthorized 未认证
func Unauthorized(c *gin.Context) {
	writeError(c, apperr.ErrUnauthenticated)
}

// InternalError 服务器内部错误
func InternalError(c *gin.Context, err error) {
	writeError(c, apperr.ErrInternal.Wrap(err))
}

// Error 按错误类型映射 HTTP 状态码
func Error(c *gin.Context, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		e = apperr.ErrInternal.Wrap(err)
	}
	writeError(c, e)
}

// StatusFor 错误类型对应的 HTTP 状态码
func StatusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, e *apperr.Error) {
	status := StatusFor(e.Kind)
	msg := e.Message
	switch e.Kind {
	case apperr.KindRateLimited:
		secs := int(e.RetryAfter.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
	case apperr.KindInternal:
		// 内部细节只进日志和 Sentry
		logger.Error("internal error",
			zap.String("path", c.FullPath()),
			zap.Error(e))
		if hub := sentry.GetHubFromContext(c.Request.Context()); hub != nil {
			hub.CaptureException(e)
		} else {
			sentry.CaptureException(e)
		}
		msg = apperr.ErrInternal.Message
	case apperr.KindTransient:
		logger.Warn("store unavailable", zap.String("path", c.FullPath()), zap.Error(e))
	}
	c.AbortWithStatusJSON(status, Response{Code: e.Code, Message: msg})
}
