package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"coinwall/pkg/errutil"
	"coinwall/pkg/health"
	"coinwall/pkg/userkey"
	"coinwall/services/callback"
	"coinwall/services/checkin"
	"coinwall/services/ledger"
	"coinwall/services/stats"
)

// Handler binds the HTTP surface to the coin services. Partner-facing
// endpoints keep the legacy response envelope so existing reward apps keep
// working unchanged.
type Handler struct {
	callbacks *callback.Ingestor
	checkins  *checkin.Engine
	coins     *ledger.Store
	stats     *stats.Reader
	resolver  userkey.Resolver
	health    health.HealthService
}

func NewHandler(
	callbacks *callback.Ingestor,
	checkins *checkin.Engine,
	coins *ledger.Store,
	statsReader *stats.Reader,
	resolver userkey.Resolver,
	healthSvc health.HealthService,
) *Handler {
	return &Handler{
		callbacks: callbacks,
		checkins:  checkins,
		coins:     coins,
		stats:     statsReader,
		resolver:  resolver,
		health:    healthSvc,
	}
}

func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health.Liveness)
	r.GET("/readyz", h.health.Readiness)

	api := r.Group("/api")
	{
		api.POST("/task/callback", h.TaskCallback)

		api.GET("/checkin/status", h.CheckinStatus)
		api.POST("/checkin", h.Checkin)

		api.GET("/coins", h.Balance)
		api.GET("/coins/records", h.Records)

		admin := api.Group("/admin")
		admin.POST("/coins/adjust", h.AdjustCoins)
		admin.GET("/coins/statistics", h.Statistics)
	}
}

// callbackEnvelope is the partner wire contract. Failures still return it
// (with success=false) so reward apps never have to parse two shapes.
type callbackEnvelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type callbackData struct {
	UserID     string `json:"userId"`
	OrderID    string `json:"orderId"`
	Coins      int64  `json:"coins"`
	NewBalance int64  `json:"newBalance"`
	Duplicate  bool   `json:"duplicate"`
}

func (h *Handler) TaskCallback(c *gin.Context) {
	var req callback.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, callbackEnvelope{
			Success: false,
			Message: "invalid request body",
		})
		return
	}

	out, err := h.callbacks.ProcessCallback(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		msg := "callback processing failed"
		var base errutil.BaseError
		if errors.As(err, &base) {
			status = base.Status().HTTPStatus()
			msg = base.Message
		}
		c.JSON(status, callbackEnvelope{Success: false, Message: msg})
		return
	}

	msg := "reward credited"
	if out.Duplicate {
		msg = "order already processed"
	}
	c.JSON(http.StatusOK, callbackEnvelope{
		Success: true,
		Message: msg,
		Data: callbackData{
			UserID:     out.UserKey,
			OrderID:    out.OrderID,
			Coins:      out.Coins,
			NewBalance: out.NewBalance,
			Duplicate:  out.Duplicate,
		},
	})
}

type checkinStatusResponse struct {
	UserID          string `json:"userId"`
	Checked         bool   `json:"checked"`
	LastCheckinDate string `json:"lastCheckinDate,omitempty"`
	ContinuousDays  int    `json:"continuousDays"`
}

func (h *Handler) CheckinStatus(c *gin.Context) {
	userKey, ok := h.userKeyFromQuery(c)
	if !ok {
		return
	}

	st, err := h.checkins.Status(c.Request.Context(), userKey)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, checkinStatusResponse{
		UserID:          userKey,
		Checked:         st.Checked,
		LastCheckinDate: st.LastCheckinDate,
		ContinuousDays:  st.ContinuousDays,
	})
}

type checkinRequest struct {
	UserID string `json:"userId"`
}

type checkinResponse struct {
	UserID         string `json:"userId"`
	CoinBalance    int64  `json:"coinBalance"`
	RewardCoins    int64  `json:"rewardCoins"`
	ContinuousDays int    `json:"continuousDays"`
	Message        string `json:"message"`
}

func (h *Handler) Checkin(c *gin.Context) {
	var req checkinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	userKey, err := h.resolver.Resolve(req.UserID)
	if err != nil {
		c.Error(err)
		return
	}

	res, err := h.checkins.Checkin(c.Request.Context(), userKey)
	if err != nil {
		if errors.Is(err, checkin.ErrAlreadyCheckedIn) {
			// no mutation happened; report the current state instead of
			// failing the request
			bal, balErr := h.coins.GetBalance(c.Request.Context(), userKey)
			if balErr != nil {
				c.Error(balErr)
				return
			}
			c.JSON(http.StatusOK, checkinResponse{
				UserID:         userKey,
				CoinBalance:    bal.CoinBalance,
				RewardCoins:    0,
				ContinuousDays: bal.ContinuousDays,
				Message:        "already checked in today",
			})
			return
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, checkinResponse{
		UserID:         userKey,
		CoinBalance:    res.CoinBalance,
		RewardCoins:    res.RewardCoins,
		ContinuousDays: res.ContinuousDays,
		Message:        "check-in successful",
	})
}

type balanceResponse struct {
	UserID          string `json:"userId"`
	CoinBalance     int64  `json:"coinBalance"`
	TotalEarned     int64  `json:"totalEarned"`
	ContinuousDays  int    `json:"continuousDays"`
	LastCheckinDate string `json:"lastCheckinDate,omitempty"`
}

func (h *Handler) Balance(c *gin.Context) {
	userKey, ok := h.userKeyFromQuery(c)
	if !ok {
		return
	}

	bal, err := h.coins.GetBalance(c.Request.Context(), userKey)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, balanceResponse{
		UserID:          userKey,
		CoinBalance:     bal.CoinBalance,
		TotalEarned:     bal.TotalEarned,
		ContinuousDays:  bal.ContinuousDays,
		LastCheckinDate: bal.LastCheckinDate,
	})
}

type recordItem struct {
	ID           string    `json:"id"`
	CoinChange   int64     `json:"coinChange"`
	ChangeType   string    `json:"changeType"`
	ChangeReason string    `json:"changeReason"`
	BalanceAfter int64     `json:"balanceAfter"`
	CreatedAt    time.Time `json:"createdAt"`
}

type recordsResponse struct {
	UserID  string       `json:"userId"`
	Records []recordItem `json:"records"`
}

func (h *Handler) Records(c *gin.Context) {
	userKey, ok := h.userKeyFromQuery(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.coins.ListRecords(c.Request.Context(), userKey, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	items := make([]recordItem, 0, len(records))
	for _, rec := range records {
		items = append(items, recordItem{
			ID:           rec.ID,
			CoinChange:   rec.CoinChange,
			ChangeType:   string(rec.ChangeType),
			ChangeReason: rec.ChangeReason,
			BalanceAfter: rec.BalanceAfter,
			CreatedAt:    rec.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, recordsResponse{UserID: userKey, Records: items})
}

type adjustRequest struct {
	UserID         string `json:"userId"`
	Coins          int64  `json:"coins"`
	ChangeType     string `json:"changeType"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type adjustResponse struct {
	UserID     string `json:"userId"`
	CoinChange int64  `json:"coinChange"`
	NewBalance int64  `json:"newBalance"`
	Duplicate  bool   `json:"duplicate"`
}

// AdjustCoins applies a manual reward or consume against a user balance.
// Callers supply the idempotency key so retried requests stay single-shot.
func (h *Handler) AdjustCoins(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	if req.Coins <= 0 {
		c.Error(errutil.BadRequest("coins must be positive", nil))
		return
	}
	if req.IdempotencyKey == "" {
		c.Error(errutil.BadRequest("idempotencyKey is required", nil))
		return
	}

	changeType := ledger.ChangeType(req.ChangeType)
	var delta int64
	switch changeType {
	case ledger.ChangeReward:
		delta = req.Coins
	case ledger.ChangeConsume:
		delta = -req.Coins
	default:
		c.Error(errutil.BadRequest("changeType must be reward or consume", nil))
		return
	}

	userKey, err := h.resolver.Resolve(req.UserID)
	if err != nil {
		c.Error(err)
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "manual adjustment"
	}

	res, err := h.coins.CreditIdempotent(c.Request.Context(), userKey, req.IdempotencyKey, delta, changeType, reason)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			c.Error(errutil.BadRequest("insufficient balance", err))
			return
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, adjustResponse{
		UserID:     userKey,
		CoinChange: delta,
		NewBalance: res.NewBalance,
		Duplicate:  res.Duplicate,
	})
}

func (h *Handler) Statistics(c *gin.Context) {
	overview, err := h.stats.Overview(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (h *Handler) userKeyFromQuery(c *gin.Context) (string, bool) {
	userKey, err := h.resolver.Resolve(c.Query("userId"))
	if err != nil {
		c.Error(err)
		return "", false
	}
	return userKey, true
}
