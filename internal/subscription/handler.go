package subscription

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

// Purchase godoc
// @Summary      Purchase subscription
// @Description  Creates a subscription in pending_payment for a member.
// @Tags         subscriptions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      CreateSubscriptionRequest  true  "Subscription details"
// @Success      201      {object}  Subscription
// @Failure      400      {object}  api.ErrorResponse
// @Router       /admin/subscriptions [post]
func (h *Handler) Purchase(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.service.Purchase(c.Request.Context(), scope, req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create subscription"})
		return
	}

	c.JSON(http.StatusCreated, sub)
}

// Activate godoc
// @Summary      Activate subscription
// @Description  Confirms payment and moves the subscription to active.
// @Tags         subscriptions
// @Security     BearerAuth
// @Produce      json
// @Param        subscriptionID  path      int  true  "Subscription ID"
// @Success      200             {object}  Subscription
// @Failure      409             {object}  api.ErrorResponse
// @Router       /admin/subscriptions/{subscriptionID}/activate [post]
func (h *Handler) Activate(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	id, err := strconv.Atoi(c.Param("subscriptionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subscription ID"})
		return
	}

	sub, err := h.service.Activate(c.Request.Context(), scope, id)
	if err != nil {
		h.writeLifecycleError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// Freeze godoc
// @Summary      Freeze subscription
// @Description  Suspends an active subscription for a number of days.
// @Tags         subscriptions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        subscriptionID  path      int            true  "Subscription ID"
// @Param        request         body      FreezeRequest  true  "Freeze duration"
// @Success      200             {object}  Subscription
// @Failure      409             {object}  api.ErrorResponse
// @Router       /subscriptions/{subscriptionID}/freeze [post]
func (h *Handler) Freeze(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	id, err := strconv.Atoi(c.Param("subscriptionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subscription ID"})
		return
	}

	var req FreezeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.service.Freeze(c.Request.Context(), scope, id, req.Days)
	if err != nil {
		h.writeLifecycleError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// Unfreeze godoc
// @Summary      Unfreeze subscription
// @Description  Reactivates a frozen subscription. The end date shifts by the days actually spent frozen.
// @Tags         subscriptions
// @Security     BearerAuth
// @Produce      json
// @Param        subscriptionID  path      int  true  "Subscription ID"
// @Success      200             {object}  Subscription
// @Failure      409             {object}  api.ErrorResponse
// @Router       /subscriptions/{subscriptionID}/unfreeze [post]
func (h *Handler) Unfreeze(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	id, err := strconv.Atoi(c.Param("subscriptionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subscription ID"})
		return
	}

	sub, err := h.service.Unfreeze(c.Request.Context(), scope, id)
	if err != nil {
		h.writeLifecycleError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// Renew godoc
// @Summary      Renew subscription
// @Description  Starts a new paid period on an active or expired subscription.
// @Tags         subscriptions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        subscriptionID  path      int           true  "Subscription ID"
// @Param        request         body      RenewRequest  true  "New period details"
// @Success      200             {object}  Subscription
// @Failure      409             {object}  api.ErrorResponse
// @Router       /admin/subscriptions/{subscriptionID}/renew [post]
func (h *Handler) Renew(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	id, err := strconv.Atoi(c.Param("subscriptionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subscription ID"})
		return
	}

	var req RenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.service.Renew(c.Request.Context(), scope, id, req)
	if err != nil {
		h.writeLifecycleError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// Cancel godoc
// @Summary      Cancel subscription
// @Tags         subscriptions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        subscriptionID  path      int            true  "Subscription ID"
// @Param        request         body      CancelRequest  false  "Cancellation reason"
// @Success      200             {object}  api.MessageResponse
// @Failure      409             {object}  api.ErrorResponse
// @Router       /subscriptions/{subscriptionID}/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	id, err := strconv.Atoi(c.Param("subscriptionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subscription ID"})
		return
	}

	var req CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if err := h.service.Cancel(c.Request.Context(), scope, id, req.Reason); err != nil {
		h.writeLifecycleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Subscription cancelled"})
}

// GetSubscription godoc
// @Summary      Get subscription
// @Tags         subscriptions
// @Security     BearerAuth
// @Produce      json
// @Param        subscriptionID  path      int  true  "Subscription ID"
// @Success      200             {object}  Subscription
// @Failure      404             {object}  api.ErrorResponse
// @Router       /subscriptions/{subscriptionID} [get]
func (h *Handler) GetSubscription(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	id, err := strconv.Atoi(c.Param("subscriptionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subscription ID"})
		return
	}

	sub, err := h.service.GetByID(c.Request.Context(), scope, id)
	if err != nil {
		h.writeLifecycleError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// ListMemberSubscriptions godoc
// @Summary      List member subscriptions
// @Tags         subscriptions
// @Security     BearerAuth
// @Produce      json
// @Param        memberID  path      int  true  "Member ID"
// @Success      200       {array}   Subscription
// @Router       /admin/members/{memberID}/subscriptions [get]
func (h *Handler) ListMemberSubscriptions(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	memberID, err := strconv.Atoi(c.Param("memberID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid member ID"})
		return
	}

	subs, err := h.service.ListForMember(c.Request.Context(), scope, memberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list subscriptions"})
		return
	}

	c.JSON(http.StatusOK, subs)
}

func (h *Handler) writeLifecycleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrSubscriptionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
	case errors.Is(err, ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "Subscription is not in a valid state for this operation"})
	case errors.Is(err, ErrInsufficientFreezeDays):
		c.JSON(http.StatusConflict, gin.H{"error": "Not enough freeze days remaining"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
