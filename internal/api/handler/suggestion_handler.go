package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/village/pkg/response"
)

// Suggestions 关注推荐
// @Summary 推荐关注
// @Tags 推荐
// @Produce json
// @Security BearerAuth
// @Param limit query int false "数量" default(10)
// @Success 200 {object} response.Response{data=[]model.SuggestionCandidate}
// @Failure 429 {object} response.Response
// @Router /api/v1/suggestions [get]
func (h *Handler) Suggestions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil {
		response.BadRequest(c, "limit must be an integer")
		return
	}
	items, err := h.suggestService.Suggest(c.Request.Context(), actor(c), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"suggestions": items})
}
