package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"flock-messaging/internal/services"
	"flock-messaging/internal/transport/httpdto"
)

type LedgerHandler struct {
	service *services.LedgerService
}

func NewLedgerHandler(service *services.LedgerService) *LedgerHandler {
	return &LedgerHandler{service: service}
}

func (h *LedgerHandler) GetReactions(c *gin.Context) {
	messageID, userID, ok := h.messageAndUser(c)
	if !ok {
		return
	}

	summary, err := h.service.GetReactions(c.Request.Context(), messageID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(summary))
}

func (h *LedgerHandler) SetReaction(c *gin.Context) {
	messageID, userID, ok := h.messageAndUser(c)
	if !ok {
		return
	}

	var req httpdto.SetReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	reaction, err := h.service.SetReaction(c.Request.Context(), messageID, userID, req.Emoji)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(reaction))
}

func (h *LedgerHandler) ClearReaction(c *gin.Context) {
	messageID, userID, ok := h.messageAndUser(c)
	if !ok {
		return
	}

	if err := h.service.ClearReaction(c.Request.Context(), messageID, userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *LedgerHandler) GetLikes(c *gin.Context) {
	messageID, userID, ok := h.messageAndUser(c)
	if !ok {
		return
	}

	summary, err := h.service.GetLikes(c.Request.Context(), messageID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(summary))
}

func (h *LedgerHandler) Like(c *gin.Context) {
	messageID, userID, ok := h.messageAndUser(c)
	if !ok {
		return
	}

	if err := h.service.Like(c.Request.Context(), messageID, userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *LedgerHandler) Unlike(c *gin.Context) {
	messageID, userID, ok := h.messageAndUser(c)
	if !ok {
		return
	}

	if err := h.service.Unlike(c.Request.Context(), messageID, userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *LedgerHandler) ListComments(c *gin.Context) {
	messageID, userID, ok := h.messageAndUser(c)
	if !ok {
		return
	}

	comments, err := h.service.ListComments(c.Request.Context(), messageID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"comments": comments}))
}

func (h *LedgerHandler) AddComment(c *gin.Context) {
	messageID, userID, ok := h.messageAndUser(c)
	if !ok {
		return
	}

	var req httpdto.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	comment, err := h.service.AddComment(c.Request.Context(), messageID, userID, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(comment))
}

func (h *LedgerHandler) messageAndUser(c *gin.Context) (messageID, userID uuid.UUID, ok bool) {
	id, err := parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid message id", "INVALID_REQUEST"))
		return
	}

	uid, found := services.UserIDFromContext(c.Request.Context())
	if !found {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	return id, uid, true
}
