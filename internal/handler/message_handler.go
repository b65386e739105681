package handler

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"flock-messaging/internal/services"
	"flock-messaging/internal/transport/httpdto"
)

// HTTP read ceiling; live clients fetching snapshots go through the
// service directly and may ask for more.
const maxListLimit = 50

type MessageHandler struct {
	service       *services.MessageService
	conversations *services.ConversationService
}

func NewMessageHandler(service *services.MessageService, conversations *services.ConversationService) *MessageHandler {
	return &MessageHandler{service: service, conversations: conversations}
}

func (h *MessageHandler) List(c *gin.Context) {
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation id", "INVALID_REQUEST"))
		return
	}

	limit, err := parseInt(c.Query("limit"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid limit", "INVALID_REQUEST"))
		return
	}
	if limit == 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	messages, err := h.service.ListMessages(c.Request.Context(), conversationID, userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	other, err := h.conversations.OtherParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"messages": messages, "other": other}))
}

// Send accepts either a JSON body with text or a multipart form with a
// file part. Audio files become voice messages, image and video files
// become media messages.
func (h *MessageHandler) Send(c *gin.Context) {
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation id", "INVALID_REQUEST"))
		return
	}

	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		h.sendUpload(c, conversationID, userID)
		return
	}

	var req httpdto.SendTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	m, err := h.service.SendText(c.Request.Context(), conversationID, userID, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(m))
}

func (h *MessageHandler) sendUpload(c *gin.Context, conversationID, userID uuid.UUID) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("file part is required", "INVALID_REQUEST"))
		return
	}

	data, contentType, err := readFilePart(header)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("unreadable file part", "INVALID_REQUEST"))
		return
	}

	if strings.HasPrefix(contentType, "audio/") {
		durationMs, err := parseInt(c.PostForm("duration_ms"))
		if err != nil || durationMs < 0 {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid duration_ms", "INVALID_REQUEST"))
			return
		}

		m, err := h.service.SendVoice(c.Request.Context(), conversationID, userID, services.VoiceUpload{
			Filename:    header.Filename,
			ContentType: contentType,
			Data:        data,
			DurationMs:  int64(durationMs),
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(m))
		return
	}

	m, err := h.service.SendMedia(c.Request.Context(), conversationID, userID, services.MediaUpload{
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(m))
}

func (h *MessageHandler) Delete(c *gin.Context) {
	messageID, err := parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid message id", "INVALID_REQUEST"))
		return
	}

	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	scope := services.DeleteScope(c.DefaultQuery("scope", string(services.DeleteForMe)))
	if scope != services.DeleteForMe && scope != services.DeleteForAll {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid scope", "INVALID_REQUEST"))
		return
	}

	if err := h.service.DeleteMessage(c.Request.Context(), messageID, userID, scope); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func readFilePart(header *multipart.FileHeader) ([]byte, string, error) {
	file, err := header.Open()
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}
