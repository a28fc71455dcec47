package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/d60-Lab/village/internal/apperr"
	"github.com/d60-Lab/village/internal/model"
	"github.com/d60-Lab/village/internal/service"
	"github.com/d60-Lab/village/pkg/response"
)

type hashedIdentifierBody struct {
	Hash string               `json:"hash" binding:"required,sha256hex"`
	Type model.IdentifierType `json:"type" binding:"required,oneof=email phone"`
}

type matchContactsBody struct {
	Identifiers []hashedIdentifierBody `json:"identifiers" binding:"dive"`
}

// MatchContacts 通讯录匹配：客户端只上传摘要
// @Summary 匹配通讯录
// @Tags 通讯录
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body matchContactsBody true "已哈希的联系方式"
// @Success 200 {object} response.Response{data=[]service.ContactMatch}
// @Failure 400 {object} response.Response
// @Failure 429 {object} response.Response
// @Router /api/v1/contacts/match [post]
func (h *Handler) MatchContacts(c *gin.Context) {
	var req matchContactsBody
	if err := c.ShouldBindJSON(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			// 字段校验失败即摘要或类型格式错误
			response.Error(c, apperr.ErrInvalidHashFormat.Wrap(err))
			return
		}
		response.BadRequest(c, err.Error())
		return
	}
	ids := make([]service.SubmittedIdentifier, len(req.Identifiers))
	for i, id := range req.Identifiers {
		ids[i] = service.SubmittedIdentifier{Hash: id.Hash, Type: id.Type}
	}
	matches, err := h.contactService.MatchContacts(c.Request.Context(), actor(c), ids)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"matches": matches})
}
