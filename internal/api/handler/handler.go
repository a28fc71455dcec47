package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/village/internal/api/middleware"
	"github.com/d60-Lab/village/internal/service"
)

// Handler HTTP 处理器集合
type Handler struct {
	connService    service.ConnectionService
	contactService service.ContactService
	suggestService service.SuggestionService
}

func NewHandler(conn service.ConnectionService, contacts service.ContactService, suggest service.SuggestionService) *Handler {
	return &Handler{
		connService:    conn,
		contactService: contacts,
		suggestService: suggest,
	}
}

// actor 从认证中间件写入的上下文构造调用方身份
func actor(c *gin.Context) service.Actor {
	return service.Actor{
		UserID: c.GetString(middleware.ContextUserID),
		Origin: c.GetString(middleware.ContextOrigin),
	}
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	return page, pageSize
}
