package member

import (
	"errors"
	"net/http"
	"strconv"

	"liyaqa/internal/tenant"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

type Handler struct {
	repo Repository
}

func NewHandler(db *sqlx.DB) *Handler {
	return &Handler{repo: NewRepository(db)}
}

// CreateMember godoc
// @Summary      Create member
// @Description  Registers a new club member. Staff only.
// @Tags         members
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      CreateMemberRequest  true  "Member details"
// @Success      201      {object}  Member
// @Failure      400      {object}  api.ErrorResponse
// @Router       /admin/members [post]
func (h *Handler) CreateMember(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := h.repo.Create(c.Request.Context(), scope, req.Name, req.Email, req.Phone)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create member"})
		return
	}

	c.JSON(http.StatusCreated, m)
}

// GetMember godoc
// @Summary      Get member
// @Tags         members
// @Security     BearerAuth
// @Produce      json
// @Param        memberID  path      int  true  "Member ID"
// @Success      200       {object}  Member
// @Failure      404       {object}  api.ErrorResponse
// @Router       /admin/members/{memberID} [get]
func (h *Handler) GetMember(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	id, err := strconv.Atoi(c.Param("memberID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid member ID"})
		return
	}

	m, err := h.repo.GetByID(c.Request.Context(), scope, id)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load member"})
		return
	}

	c.JSON(http.StatusOK, m)
}

// ListMembers godoc
// @Summary      List members
// @Tags         members
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  Member
// @Router       /admin/members [get]
func (h *Handler) ListMembers(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	members, err := h.repo.List(c.Request.Context(), scope, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load members"})
		return
	}

	c.JSON(http.StatusOK, members)
}
