package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"liyaqa/internal/money"
	"liyaqa/internal/tenant"
)

type Handler struct {
	service *Service
}

func NewHandler(db *sqlx.DB) *Handler {
	return &Handler{service: NewService(NewRepository(db))}
}

// TopUpWallet godoc
// @Summary      Top up wallet
// @Description  Adds funds to a member's wallet, creating it on first use.
// @Tags         wallet
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        memberID  path      int           true  "Member ID"
// @Param        request   body      TopUpRequest  true  "Amount"
// @Success      200       {object}  Wallet
// @Failure      400       {object}  api.ErrorResponse
// @Router       /members/{memberID}/wallet/topup [post]
func (h *Handler) TopUpWallet(c *gin.Context) {
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

	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wallet, err := h.service.TopUp(c.Request.Context(), scope, memberID, money.New(req.AmountCents, req.Currency))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to top up wallet"})
		return
	}

	c.JSON(http.StatusOK, wallet)
}

// GetWallet godoc
// @Summary      Get wallet
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Param        memberID  path      int  true  "Member ID"
// @Success      200       {object}  Wallet
// @Failure      404       {object}  api.ErrorResponse
// @Router       /members/{memberID}/wallet [get]
func (h *Handler) GetWallet(c *gin.Context) {
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

	wallet, err := h.service.GetWallet(c.Request.Context(), scope, memberID)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Wallet not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, wallet)
}

// ReconcileWallet godoc
// @Summary      Reconcile wallet
// @Description  Compares the cached balance against the transaction journal.
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Param        memberID  path      int  true  "Member ID"
// @Success      200       {object}  WalletReconciliation
// @Failure      404       {object}  api.ErrorResponse
// @Router       /members/{memberID}/wallet/reconciliation [get]
func (h *Handler) ReconcileWallet(c *gin.Context) {
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

	rec, err := h.service.ReconcileWallet(c.Request.Context(), scope, memberID)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Wallet not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// ListWalletTransactions godoc
// @Summary      List wallet transactions
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Param        memberID  path      int  true   "Member ID"
// @Param        limit     query     int  false  "Max entries"
// @Success      200       {array}   WalletTransaction
// @Router       /members/{memberID}/wallet/transactions [get]
func (h *Handler) ListWalletTransactions(c *gin.Context) {
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

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	txs, err := h.service.ListWalletTransactions(c.Request.Context(), scope, memberID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list transactions"})
		return
	}

	c.JSON(http.StatusOK, txs)
}

// GrantPack godoc
// @Summary      Grant class pack
// @Description  Sells a class pack to a member. Staff only.
// @Tags         packs
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      GrantPackRequest  true  "Pack details"
// @Success      201      {object}  ClassPack
// @Failure      400      {object}  api.ErrorResponse
// @Router       /admin/packs [post]
func (h *Handler) GrantPack(c *gin.Context) {
	scope, ok := tenant.FromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req GrantPackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pack, err := h.service.GrantPack(c.Request.Context(), scope, req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to grant pack"})
		return
	}

	c.JSON(http.StatusCreated, pack)
}

// ListPacks godoc
// @Summary      List member class packs
// @Tags         packs
// @Security     BearerAuth
// @Produce      json
// @Param        memberID  path      int  true  "Member ID"
// @Success      200       {array}   ClassPack
// @Router       /members/{memberID}/packs [get]
func (h *Handler) ListPacks(c *gin.Context) {
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

	packs, err := h.service.ListPacks(c.Request.Context(), scope, memberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list packs"})
		return
	}

	c.JSON(http.StatusOK, packs)
}
