package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/village/internal/service"
	"github.com/d60-Lab/village/pkg/response"
)

type followRequestBody struct {
	TargetID string `json:"target_id" binding:"required,max=64"`
}

type followBackBody struct {
	RequesterID string `json:"requester_id" binding:"required,max=64"`
}

type respondBody struct {
	Action service.ResponseAction `json:"action" binding:"required,oneof=approve deny"`
}

// RequestFollow 发起关注：公开账号直接关注，私密账号创建待审批申请
// @Summary 发起关注
// @Tags 关系链
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body followRequestBody true "被关注者"
// @Success 200 {object} response.Response{data=service.FollowResult}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 429 {object} response.Response
// @Router /api/v1/connections/requests [post]
func (h *Handler) RequestFollow(c *gin.Context) {
	var req followRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.connService.RequestFollow(c.Request.Context(), actor(c), req.TargetID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// FollowBack 回关
// @Summary 回关申请人
// @Tags 关系链
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body followBackBody true "原申请人"
// @Success 200 {object} response.Response{data=service.FollowResult}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/connections/follow-back [post]
func (h *Handler) FollowBack(c *gin.Context) {
	var req followBackBody
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.connService.FollowBack(c.Request.Context(), actor(c), req.RequesterID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// RespondToRequest 审批关注申请
// @Summary 通过或拒绝关注申请
// @Tags 关系链
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "申请ID"
// @Param request body respondBody true "approve | deny"
// @Success 200 {object} response.Response{data=service.RespondResult}
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/connections/requests/{id}/respond [post]
func (h *Handler) RespondToRequest(c *gin.Context) {
	var req respondBody
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.connService.RespondToRequest(c.Request.Context(), actor(c), c.Param("id"), req.Action)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// CancelRequest 撤回待处理的申请
// @Summary 撤回关注申请
// @Tags 关系链
// @Security BearerAuth
// @Param target_id path string true "被申请者ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/connections/requests/{target_id} [delete]
func (h *Handler) CancelRequest(c *gin.Context) {
	if err := h.connService.CancelRequest(c.Request.Context(), actor(c), c.Param("target_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Unfollow 取消关注
// @Summary 取消关注
// @Tags 关系链
// @Security BearerAuth
// @Param target_id path string true "被关注者ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/connections/following/{target_id} [delete]
func (h *Handler) Unfollow(c *gin.Context) {
	if err := h.connService.Unfollow(c.Request.Context(), actor(c), c.Param("target_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Status 当前用户与目标用户的关系状态
// @Summary 查询关系状态
// @Tags 关系链
// @Security BearerAuth
// @Param target_id path string true "目标用户ID"
// @Success 200 {object} response.Response{data=map[string]string}
// @Router /api/v1/connections/status/{target_id} [get]
func (h *Handler) Status(c *gin.Context) {
	st, err := h.connService.Status(c.Request.Context(), actor(c), c.Param("target_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"status": st})
}

// ListIncoming 收到的待处理申请
// @Summary 待处理的关注申请
// @Tags 关系链
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/connections/requests/incoming [get]
func (h *Handler) ListIncoming(c *gin.Context) {
	page, pageSize := pageParams(c)
	list, err := h.connService.ListIncoming(c.Request.Context(), actor(c), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}

// ListFollowing 查询某用户关注的人
// @Summary 查询关注列表
// @Tags 关系链
// @Security BearerAuth
// @Param user_id path string true "用户ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/relations/{user_id}/following [get]
func (h *Handler) ListFollowing(c *gin.Context) {
	page, pageSize := pageParams(c)
	list, err := h.connService.ListFollowing(c.Request.Context(), c.Param("user_id"), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}

// ListFollowers 查询某用户的粉丝
// @Summary 查询粉丝列表
// @Tags 关系链
// @Security BearerAuth
// @Param user_id path string true "用户ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/relations/{user_id}/followers [get]
func (h *Handler) ListFollowers(c *gin.Context) {
	page, pageSize := pageParams(c)
	list, err := h.connService.ListFollowers(c.Request.Context(), c.Param("user_id"), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}
