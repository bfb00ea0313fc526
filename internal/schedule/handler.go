package schedule

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"liyaqa/internal/tenant"
)

type Handler struct {
	service *Service
}

func NewHandler(db *sqlx.DB) *Handler {
	return &Handler{service: NewService(NewRepository(db))}
}

// CreateClass godoc
// @Summary      Create class
// @Description  Defines a class offering. Staff only.
// @Tags         schedule
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      CreateClassRequest  true  "Class details"
// @Success      201      {object}  GymClass
// @Failure      400      {object}  api.ErrorResponse
// @Router       /admin/classes [post]
func (h *Handler) CreateClass(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req CreateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	class, err := h.service.CreateClass(c.Request.Context(), scope, req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create class"})
		return
	}

	c.JSON(http.StatusCreated, class)
}

// ListClasses godoc
// @Summary      List classes
// @Tags         schedule
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  GymClass
// @Router       /classes [get]
func (h *Handler) ListClasses(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	classes, err := h.service.ListClasses(c.Request.Context(), scope)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list classes"})
		return
	}

	c.JSON(http.StatusOK, classes)
}

// CreateSession godoc
// @Summary      Schedule session
// @Description  Schedules one occurrence of a class with a seat capacity.
// @Tags         schedule
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      CreateSessionRequest  true  "Session details"
// @Success      201      {object}  ClassSession
// @Failure      400      {object}  api.ErrorResponse
// @Router       /admin/sessions [post]
func (h *Handler) CreateSession(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.service.CreateSession(c.Request.Context(), scope, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSessionWindow):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Session must end after it starts"})
		case errors.Is(err, ErrClassNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		}
		return
	}

	c.JSON(http.StatusCreated, session)
}

// ListUpcomingSessions godoc
// @Summary      List upcoming sessions
// @Description  Returns scheduled sessions with remaining seat counts.
// @Tags         schedule
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  SessionDetail
// @Router       /sessions [get]
func (h *Handler) ListUpcomingSessions(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	sessions, err := h.service.ListUpcomingSessions(c.Request.Context(), scope)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sessions"})
		return
	}

	c.JSON(http.StatusOK, sessions)
}

// GetSession godoc
// @Summary      Get session
// @Tags         schedule
// @Security     BearerAuth
// @Produce      json
// @Param        sessionID  path      int  true  "Session ID"
// @Success      200        {object}  SessionDetail
// @Failure      404        {object}  api.ErrorResponse
// @Router       /sessions/{sessionID} [get]
func (h *Handler) GetSession(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	id, err := strconv.Atoi(c.Param("sessionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	detail, err := h.service.GetSessionDetail(c.Request.Context(), scope, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, detail)
}

// CancelSession godoc
// @Summary      Cancel session
// @Description  Cancels a scheduled session. Staff only.
// @Tags         schedule
// @Security     BearerAuth
// @Produce      json
// @Param        sessionID  path      int  true  "Session ID"
// @Success      200        {object}  api.MessageResponse
// @Failure      404        {object}  api.ErrorResponse
// @Router       /admin/sessions/{sessionID}/cancel [post]
func (h *Handler) CancelSession(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	id, err := strconv.Atoi(c.Param("sessionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	if err := h.service.CancelSession(c.Request.Context(), scope, id); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found or already cancelled"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session cancelled"})
}
