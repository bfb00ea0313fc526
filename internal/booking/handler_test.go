package booking

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"liyaqa/internal/ledger"
	"liyaqa/internal/schedule"
)

func TestBookingErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handler{}

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"drained entitlement source", ledger.ErrInsufficientEntitlement, http.StatusPaymentRequired},
		{"currency mismatch", ledger.ErrCurrencyMismatch, http.StatusPaymentRequired},
		{"wallet disappeared", ledger.ErrWalletNotFound, http.StatusPaymentRequired},
		{"session full", schedule.ErrSessionFull, http.StatusConflict},
		{"booking missing", ErrBookingNotFound, http.StatusNotFound},
		{"unexpected failure", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			h.writeBookingError(c, tc.err)

			assert.Equal(t, tc.status, w.Code)
		})
	}
}
