package booking

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"liyaqa/internal/auth"
	"liyaqa/internal/ledger"
	"liyaqa/internal/member"
	"liyaqa/internal/schedule"
	"liyaqa/internal/tenant"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Book godoc
// @Summary      Book a session
// @Description  Reserves a seat and charges the member's best entitlement source.
// @Tags         bookings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      BookRequest  true  "Session and idempotency key"
// @Success      201      {object}  Booking
// @Failure      402      {object}  api.ErrorResponse
// @Failure      409      {object}  api.ErrorResponse
// @Router       /bookings [post]
func (h *Handler) Book(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	memberID, ok := auth.GetMemberID(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "No member profile linked to this account"})
		return
	}

	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	booking, err := h.service.Book(c.Request.Context(), scope, memberID, req)
	if err != nil {
		h.writeBookingError(c, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// Preview godoc
// @Summary      Preview booking options
// @Description  Shows which entitlement sources could cover a session and at what price.
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        sessionID  path      int  true  "Session ID"
// @Success      200        {object}  BookingOptionsResponse
// @Router       /sessions/{sessionID}/booking-options [get]
func (h *Handler) Preview(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	memberID, ok := auth.GetMemberID(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "No member profile linked to this account"})
		return
	}

	sessionID, err := strconv.Atoi(c.Param("sessionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	resp, err := h.service.Preview(c.Request.Context(), scope, memberID, sessionID)
	if err != nil {
		h.writeBookingError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Cancel godoc
// @Summary      Cancel booking
// @Description  Frees the seat and refunds the charge if outside the late-cancel cutoff.
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        bookingID  path      int  true  "Booking ID"
// @Success      200        {object}  api.MessageResponse
// @Failure      409        {object}  api.ErrorResponse
// @Router       /bookings/{bookingID} [delete]
func (h *Handler) Cancel(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	memberID, _ := auth.GetMemberID(c)

	bookingID, err := strconv.Atoi(c.Param("bookingID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return
	}

	refunded, err := h.service.Cancel(c.Request.Context(), scope, memberID, bookingID)
	if err != nil {
		h.writeBookingError(c, err)
		return
	}

	msg := "Booking cancelled, charge refunded"
	if !refunded {
		msg = "Booking cancelled, charge forfeited"
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// CheckIn godoc
// @Summary      Check in
// @Description  Marks attendance during the check-in window. Staff only.
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        bookingID  path      int  true  "Booking ID"
// @Success      200        {object}  api.MessageResponse
// @Failure      409        {object}  api.ErrorResponse
// @Router       /admin/bookings/{bookingID}/checkin [post]
func (h *Handler) CheckIn(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	bookingID, err := strconv.Atoi(c.Param("bookingID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return
	}

	alreadyCheckedIn, err := h.service.CheckIn(c.Request.Context(), scope, bookingID)
	if err != nil {
		h.writeBookingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":            "Checked in",
		"already_checked_in": alreadyCheckedIn,
	})
}

// JoinWaitlist godoc
// @Summary      Join waitlist
// @Description  Queues the member for a full session, FIFO.
// @Tags         bookings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      JoinWaitlistRequest  true  "Session"
// @Success      201      {object}  schedule.WaitlistEntry
// @Failure      409      {object}  api.ErrorResponse
// @Router       /waitlist [post]
func (h *Handler) JoinWaitlist(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	memberID, ok := auth.GetMemberID(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "No member profile linked to this account"})
		return
	}

	var req JoinWaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.service.JoinWaitlist(c.Request.Context(), scope, memberID, req.SessionID)
	if err != nil {
		h.writeBookingError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// LeaveWaitlist godoc
// @Summary      Leave waitlist
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        sessionID  path      int  true  "Session ID"
// @Success      200        {object}  api.MessageResponse
// @Router       /waitlist/{sessionID} [delete]
func (h *Handler) LeaveWaitlist(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	memberID, ok := auth.GetMemberID(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "No member profile linked to this account"})
		return
	}

	sessionID, err := strconv.Atoi(c.Param("sessionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	if err := h.service.LeaveWaitlist(c.Request.Context(), scope, memberID, sessionID); err != nil {
		h.writeBookingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Removed from waitlist"})
}

// ListMyBookings godoc
// @Summary      List my bookings
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  BookingDetail
// @Router       /bookings [get]
func (h *Handler) ListMyBookings(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	memberID, ok := auth.GetMemberID(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "No member profile linked to this account"})
		return
	}

	bookings, err := h.service.ListForMember(c.Request.Context(), scope, memberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list bookings"})
		return
	}

	c.JSON(http.StatusOK, bookings)
}

// ClassReport godoc
// @Summary      Booking report per class
// @Description  Aggregates booking outcomes per class over a period. Defaults to the last 30 days.
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        from  query     string  false  "Period start (YYYY-MM-DD)"
// @Param        to    query     string  false  "Period end, exclusive (YYYY-MM-DD)"
// @Success      200   {array}   ClassBookingStats
// @Failure      400   {object}  api.ErrorResponse
// @Router       /admin/reports/bookings [get]
func (h *Handler) ClassReport(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)

	if v := c.Query("from"); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from date, expected YYYY-MM-DD"})
			return
		}
		from = parsed
	}
	if v := c.Query("to"); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to date, expected YYYY-MM-DD"})
			return
		}
		to = parsed
	}

	stats, err := h.service.ClassReport(c.Request.Context(), scope, from, to)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) writeBookingError(c *gin.Context, err error) {
	var rejection *Rejection
	switch {
	case errors.As(err, &rejection):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":   "No entitlement source can cover this booking",
			"reasons": rejection.Reasons,
		})
	case errors.Is(err, ledger.ErrInsufficientEntitlement), errors.Is(err, ledger.ErrCurrencyMismatch),
		errors.Is(err, ledger.ErrWalletNotFound):
		// The resolved source was drained (or its wallet changed) between
		// resolve and settle.
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "Entitlement source can no longer cover this booking"})
	case errors.Is(err, schedule.ErrSessionFull):
		c.JSON(http.StatusConflict, gin.H{"error": "Session is full"})
	case errors.Is(err, schedule.ErrSessionNotFound), errors.Is(err, ErrBookingNotFound),
		errors.Is(err, member.ErrMemberNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, schedule.ErrSessionNotBookable):
		c.JSON(http.StatusConflict, gin.H{"error": "Session is not open for booking"})
	case errors.Is(err, ErrAlreadyBooked):
		c.JSON(http.StatusConflict, gin.H{"error": "Already booked for this session"})
	case errors.Is(err, ErrSessionStarted):
		c.JSON(http.StatusConflict, gin.H{"error": "Session has already started"})
	case errors.Is(err, ErrSessionNotFull):
		c.JSON(http.StatusConflict, gin.H{"error": "Session still has open seats, book directly"})
	case errors.Is(err, ErrMemberInactive):
		c.JSON(http.StatusForbidden, gin.H{"error": "Member account is not active"})
	case errors.Is(err, ErrCheckInClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "Check-in window is closed"})
	case errors.Is(err, ErrBookingNotCancellable):
		c.JSON(http.StatusConflict, gin.H{"error": "Booking is not cancellable"})
	case errors.Is(err, ErrBookingNotCheckable):
		c.JSON(http.StatusConflict, gin.H{"error": "Booking cannot be checked in"})
	case errors.Is(err, schedule.ErrAlreadyWaitlisted):
		c.JSON(http.StatusConflict, gin.H{"error": "Already on the waitlist"})
	case errors.Is(err, schedule.ErrWaitlistFull):
		c.JSON(http.StatusConflict, gin.H{"error": "Waitlist is full"})
	case errors.Is(err, schedule.ErrNotOnWaitlist):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not on the waitlist"})
	case errors.Is(err, ledger.ErrReceiptConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Idempotency key already used for a different charge"})
	case errors.Is(err, ErrBookingConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Booking could not be settled, please retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
