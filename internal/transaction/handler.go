package transaction

import (
	"context"
	"net/http"

	"tripledger/internal/api"
	"tripledger/internal/domain"
	"tripledger/internal/effect"

	"github.com/gin-gonic/gin"
)

type Service interface {
	Create(ctx context.Context, in domain.TransactionInput, opts domain.Options) (*domain.Transaction, error)
	Get(ctx context.Context, id int64) (*domain.Transaction, error)
	List(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error)
	Amend(ctx context.Context, id int64, in domain.TransactionInput, opts domain.Options) (*domain.Transaction, error)
	Reverse(ctx context.Context, id int64, opts domain.Options) (*domain.Transaction, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
	}
}

// override is set by the body flag or ?override=true.
func override(c *gin.Context, body bool) domain.Options {
	return domain.Options{Override: body || api.Query(c).Bool("override")}
}

// CreateTransaction godoc
// @Summary      Record a transaction
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Param        request body transaction.TransactionRequest true "Transaction"
// @Param        override query bool false "Accept policy warnings"
// @Param        Idempotency-Key header string false "Replay key"
// @Success      201 {object} domain.Transaction
// @Failure      400 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Failure      503 {object} api.ErrorResponse
// @Router       /transactions [post]
func (h *Handler) CreateTransaction(c *gin.Context) {
	var req TransactionRequest
	if !api.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		api.WriteError(c, err)
		return
	}

	t, err := h.service.Create(c.Request.Context(), in, override(c, req.Override))
	if err != nil {
		api.WriteError(c, err)
		return
	}

	c.JSON(http.StatusCreated, t)
}

// ListTransactions godoc
// @Summary      List transactions
// @Tags         transactions
// @Produce      json
// @Param        type query string false "payment, receipt, refund or wallet_transfer"
// @Param        entity_id query int false "Entity on any side"
// @Param        status query string false "active or reversed"
// @Param        booking_id query int false "Booking"
// @Param        from query string false "From date (YYYY-MM-DD)"
// @Param        to query string false "To date (YYYY-MM-DD)"
// @Param        limit query int false "Page size"
// @Param        offset query int false "Page offset"
// @Success      200 {array} domain.Transaction
// @Router       /transactions [get]
func (h *Handler) ListTransactions(c *gin.Context) {
	q := api.Query(c)
	f := domain.TransactionFilter{
		Type:      domain.TxnType(c.Query("type")),
		EntityID:  q.Int64("entity_id"),
		Status:    domain.TxnStatus(c.Query("status")),
		BookingID: q.Int64("booking_id"),
		From:      q.Date("from"),
		To:        q.Date("to"),
		Limit:     q.Int("limit"),
		Offset:    q.Int("offset"),
	}
	if err := q.Err(); err != nil {
		api.WriteError(c, err)
		return
	}

	txns, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		api.WriteError(c, err)
		return
	}
	if txns == nil {
		txns = []domain.Transaction{}
	}

	c.JSON(http.StatusOK, txns)
}

// GetTransaction godoc
// @Summary      Get a transaction with its applied deltas
// @Tags         transactions
// @Produce      json
// @Param        id path int true "Transaction ID"
// @Success      200 {object} domain.Transaction
// @Failure      404 {object} api.ErrorResponse
// @Router       /transactions/{id} [get]
func (h *Handler) GetTransaction(c *gin.Context) {
	id, ok := api.ParamID(c, "id")
	if !ok {
		return
	}

	t, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		api.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, t)
}

// AmendTransaction godoc
// @Summary      Amend a transaction
// @Description  Applies only the difference between the new and the old effect. Type and reference cannot change.
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Param        id path int true "Transaction ID"
// @Param        request body transaction.TransactionRequest true "Transaction"
// @Success      200 {object} domain.Transaction
// @Failure      400 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /transactions/{id} [put]
func (h *Handler) AmendTransaction(c *gin.Context) {
	id, ok := api.ParamID(c, "id")
	if !ok {
		return
	}
	var req TransactionRequest
	if !api.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		api.WriteError(c, err)
		return
	}

	t, err := h.service.Amend(c.Request.Context(), id, in, override(c, req.Override))
	if err != nil {
		api.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, t)
}

// ReverseTransaction godoc
// @Summary      Reverse a transaction
// @Tags         transactions
// @Produce      json
// @Param        id path int true "Transaction ID"
// @Param        override query bool false "Accept policy warnings"
// @Success      200 {object} domain.Transaction
// @Failure      409 {object} api.ErrorResponse
// @Router       /transactions/{id}/reverse [post]
// @Router       /transactions/{id} [delete]
func (h *Handler) ReverseTransaction(c *gin.Context) {
	id, ok := api.ParamID(c, "id")
	if !ok {
		return
	}
	var req ReverseRequest
	if c.Request.ContentLength > 0 && !api.BindJSON(c, &req) {
		return
	}

	t, err := h.service.Reverse(c.Request.Context(), id, override(c, req.Override))
	if err != nil {
		api.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, t)
}

// GetRules godoc
// @Summary      Fields a transaction context takes
// @Tags         transactions
// @Produce      json
// @Param        type query string true "Transaction type"
// @Param        refund_direction query string false "incoming or outgoing"
// @Param        pay_type query string false "Pay type"
// @Success      200 {object} transaction.RulesResponse
// @Router       /transactions/rules [get]
func (h *Handler) GetRules(c *gin.Context) {
	var rc effect.RuleContext
	if err := c.ShouldBindQuery(&rc); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid query", Details: err.Error()})
		return
	}
	if !rc.Type.Valid() {
		api.WriteError(c, domain.NewFieldError("type", "must be one of payment, receipt, refund, wallet_transfer"))
		return
	}

	c.JSON(http.StatusOK, RulesResponse{Context: rc, Fields: effect.RequiredFields(rc)})
}
