package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hearthhq/hearth/internal/domain"
	"github.com/hearthhq/hearth/internal/store"
)

type Handlers struct {
	Store        store.Store
	HistoryLimit int
}

func (h *Handlers) ListMembers(c *gin.Context) {
	roomID := domain.RoomID(c.Param("roomId"))
	members, err := h.Store.ListProfiles(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to fetch members"})
		return
	}
	c.JSON(http.StatusOK, members)
}

func (h *Handlers) GetMember(c *gin.Context) {
	member, err := h.Store.GetProfile(c.Request.Context(), domain.ProfileID(c.Param("id")))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "member not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to fetch member"})
		return
	}
	c.JSON(http.StatusOK, member)
}

func (h *Handlers) ListMessages(c *gin.Context) {
	roomID := domain.RoomID(c.Param("roomId"))
	convID := domain.ConversationID(c.Query("conversationId"))
	msgs, err := h.Store.ReadMessages(c.Request.Context(), roomID, convID, h.HistoryLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to fetch messages"})
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

type editMessageRequest struct {
	Content string `json:"content"`
}

func (h *Handlers) EditMessage(c *gin.Context) {
	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing or invalid content"})
		return
	}
	msg, err := h.Store.UpdateMessage(c.Request.Context(),
		domain.RoomID(c.Param("roomId")), domain.MessageID(c.Param("id")), req.Content)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "message not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to edit message"})
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handlers) DeleteMessage(c *gin.Context) {
	err := h.Store.DeleteMessage(c.Request.Context(),
		domain.RoomID(c.Param("roomId")), domain.MessageID(c.Param("id")))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "message not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to delete message"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) PinMessage(c *gin.Context) {
	pinned, err := h.Store.PinMessage(c.Request.Context(),
		domain.RoomID(c.Param("roomId")), domain.MessageID(c.Param("id")))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "message not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to pin message"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"isPinned": pinned})
}

func (h *Handlers) ListConversations(c *gin.Context) {
	convs, err := h.Store.ListConversations(c.Request.Context(), domain.RoomID(c.Param("roomId")))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to fetch conversations"})
		return
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	c.JSON(http.StatusOK, convs)
}

type createConversationRequest struct {
	Title     string `json:"title"`
	CreatedBy string `json:"createdBy"`
}

func (h *Handlers) CreateConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing or invalid title"})
		return
	}
	conv := domain.NewConversation(domain.RoomID(c.Param("roomId")), req.Title, domain.ProfileID(req.CreatedBy))
	if err := h.Store.CreateConversation(c.Request.Context(), *conv); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to create conversation"})
		return
	}
	c.JSON(http.StatusCreated, conv)
}
