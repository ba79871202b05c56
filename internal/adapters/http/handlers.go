package http

import (
	"net/http"
	"strconv"

	"github.com/dkeye/Talkie/internal/adapters/auth"
	"github.com/dkeye/Talkie/internal/app/orch"
	"github.com/dkeye/Talkie/internal/domain"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Orch        *orch.Orchestrator
	Auth        *auth.Manager // nil disables token checks
	StoreDriver string
}

type SendMessageRequest struct {
	BookingCode string `json:"booking_code"`
	Sender      string `json:"sender"`
	Message     string `json:"message"`
	MessageType string `json:"message_type"`
}

type MakeCallRequest struct {
	BookingCode string `json:"booking_code"`
	CallerType  string `json:"caller_type"`
	CallType    string `json:"call_type"`
	Action      string `json:"action"`
	Duration    *int   `json:"duration"`
}

func (h *Handlers) authorize(c *gin.Context, key domain.ConversationKey, role domain.Role) bool {
	if h.Auth == nil {
		return true
	}
	token := auth.FromRequest(c.Request)
	var err error
	if role == "" {
		err = h.Auth.AuthorizeKey(token, key)
	} else {
		err = h.Auth.Authorize(token, key, role)
	}
	if err != nil {
		abortWithError(c, err)
		return false
	}
	return true
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"store":  h.StoreDriver,
		"stats":  h.Orch.Stats(),
	})
}

func (h *Handlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, domain.InvalidArgument("body", "bad json"))
		return
	}
	if req.MessageType != "" && req.MessageType != string(domain.KindText) {
		abortWithError(c, domain.InvalidArgument("message_type", "only text can be sent"))
		return
	}
	role, err := domain.ParseRole(req.Sender)
	if err != nil {
		abortWithError(c, domain.InvalidArgument("sender", "must be driver or passenger"))
		return
	}
	key := domain.ConversationKey(req.BookingCode)
	if !h.authorize(c, key, role) {
		return
	}
	msg, err := h.Orch.SendMessage(c.Request.Context(), key, role, req.Message)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *Handlers) MakeCall(c *gin.Context) {
	var req MakeCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, domain.InvalidArgument("body", "bad json"))
		return
	}
	role, err := domain.ParseRole(req.CallerType)
	if err != nil {
		abortWithError(c, domain.InvalidArgument("caller_type", "must be driver or passenger"))
		return
	}
	action, err := domain.ParseCallAction(req.Action)
	if err != nil {
		abortWithError(c, err)
		return
	}
	kind, err := domain.ParseCallKind(req.CallType)
	if err != nil {
		abortWithError(c, err)
		return
	}
	key := domain.ConversationKey(req.BookingCode)
	if !h.authorize(c, key, role) {
		return
	}
	session, err := h.Orch.CallAction(c.Request.Context(), orch.CallRequest{
		Key:      key,
		Role:     role,
		Action:   action,
		Kind:     kind,
		Duration: req.Duration,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *Handlers) GetMessages(c *gin.Context) {
	key := domain.ConversationKey(c.Param("booking_code"))
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			abortWithError(c, domain.InvalidArgument("limit", "not a number"))
			return
		}
		limit = n
	}
	if !h.authorize(c, key, "") {
		return
	}
	page, err := h.Orch.History(c.Request.Context(), key, limit, c.Query("cursor"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handlers) GetCall(c *gin.Context) {
	key := domain.ConversationKey(c.Param("booking_code"))
	if !h.authorize(c, key, "") {
		return
	}
	session, err := h.Orch.ActiveCall(key)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *Handlers) GetConnections(c *gin.Context) {
	key := domain.ConversationKey(c.Param("booking_code"))
	if !h.authorize(c, key, "") {
		return
	}
	conns, err := h.Orch.Connections(key)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking_code": key, "connections": conns})
}
