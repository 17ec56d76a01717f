package booking

import (
	"net/http"

	"tripledger/internal/api"
	"tripledger/internal/domain"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
	}
}

func options(c *gin.Context, body bool) domain.Options {
	return domain.Options{Override: body || api.Query(c).Bool("override")}
}

// CreateBooking godoc
// @Summary      Book a ticket or service
// @Description  Records the customer charge and, when an agent was paid, the agent payment under one reference.
// @Tags         bookings
// @Accept       json
// @Produce      json
// @Param        request body booking.BookRequest true "Booking"
// @Param        Idempotency-Key header string false "Replay key"
// @Success      201 {object} booking.BookingResponse
// @Failure      400 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /bookings [post]
func (h *Handler) CreateBooking(c *gin.Context) {
	var req BookRequest
	if !api.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		api.WriteError(c, err)
		return
	}

	b, err := h.service.Book(c.Request.Context(), in, options(c, req.Override))
	if err != nil {
		api.WriteError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toResponse(b))
}

// ListBookings godoc
// @Summary      List bookings
// @Tags         bookings
// @Produce      json
// @Param        kind query string false "ticket or service"
// @Param        status query string false "booked, cancelled or deleted"
// @Param        customer_id query int false "Customer"
// @Param        agent_id query int false "Agent"
// @Param        from query string false "From date (YYYY-MM-DD)"
// @Param        to query string false "To date (YYYY-MM-DD)"
// @Param        limit query int false "Page size"
// @Param        offset query int false "Page offset"
// @Success      200 {array} booking.BookingResponse
// @Router       /bookings [get]
func (h *Handler) ListBookings(c *gin.Context) {
	q := api.Query(c)
	f := domain.BookingFilter{
		Kind:       domain.BookingKind(c.Query("kind")),
		Status:     domain.BookingStatus(c.Query("status")),
		CustomerID: q.Int64("customer_id"),
		AgentID:    q.Int64("agent_id"),
		From:       q.Date("from"),
		To:         q.Date("to"),
		Limit:      q.Int("limit"),
		Offset:     q.Int("offset"),
	}
	if err := q.Err(); err != nil {
		api.WriteError(c, err)
		return
	}

	bookings, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		api.WriteError(c, err)
		return
	}

	resp := make([]BookingResponse, 0, len(bookings))
	for i := range bookings {
		resp = append(resp, toResponse(&bookings[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// GetBooking godoc
// @Summary      Get a booking
// @Tags         bookings
// @Produce      json
// @Param        id path int true "Booking ID"
// @Success      200 {object} booking.BookingResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /bookings/{id} [get]
func (h *Handler) GetBooking(c *gin.Context) {
	id, ok := api.ParamID(c, "id")
	if !ok {
		return
	}

	b, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		api.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, toResponse(b))
}

// CancelBooking godoc
// @Summary      Cancel a booking
// @Description  Records the customer refund and agent recovery. Cancelling a cancelled booking returns it unchanged.
// @Tags         bookings
// @Accept       json
// @Produce      json
// @Param        id path int true "Booking ID"
// @Param        request body booking.SettlementRequest true "Refund and recovery"
// @Success      200 {object} booking.BookingResponse
// @Failure      400 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /bookings/{id}/cancel [post]
func (h *Handler) CancelBooking(c *gin.Context) {
	id, ok := api.ParamID(c, "id")
	if !ok {
		return
	}
	var req SettlementRequest
	if !api.BindJSON(c, &req) {
		return
	}

	b, err := h.service.Cancel(c.Request.Context(), id, req.ToSettlement(), options(c, req.Override))
	if err != nil {
		api.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, toResponse(b))
}

// EditCancellation godoc
// @Summary      Change the refund and recovery of a cancelled booking
// @Tags         bookings
// @Accept       json
// @Produce      json
// @Param        id path int true "Booking ID"
// @Param        request body booking.SettlementRequest true "Refund and recovery"
// @Success      200 {object} booking.BookingResponse
// @Failure      400 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /bookings/{id}/cancellation [put]
func (h *Handler) EditCancellation(c *gin.Context) {
	id, ok := api.ParamID(c, "id")
	if !ok {
		return
	}
	var req SettlementRequest
	if !api.BindJSON(c, &req) {
		return
	}

	b, err := h.service.EditCancelled(c.Request.Context(), id, req.ToSettlement(), options(c, req.Override))
	if err != nil {
		api.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, toResponse(b))
}

// DeleteBooking godoc
// @Summary      Delete a booking
// @Description  Reverses every leg of the booking. Deleting a deleted booking returns it unchanged.
// @Tags         bookings
// @Produce      json
// @Param        id path int true "Booking ID"
// @Param        override query bool false "Accept policy warnings"
// @Success      200 {object} booking.BookingResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /bookings/{id} [delete]
func (h *Handler) DeleteBooking(c *gin.Context) {
	id, ok := api.ParamID(c, "id")
	if !ok {
		return
	}
	var req DeleteRequest
	if c.Request.ContentLength > 0 && !api.BindJSON(c, &req) {
		return
	}

	b, err := h.service.Delete(c.Request.Context(), id, options(c, req.Override))
	if err != nil {
		api.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, toResponse(b))
}
