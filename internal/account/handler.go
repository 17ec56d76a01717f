package account

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

// CreateEntity godoc
// @Summary      Create an entity
// @Tags         entities
// @Accept       json
// @Produce      json
// @Param        request body account.CreateEntityRequest true "Entity payload"
// @Success      201 {object} domain.Entity
// @Failure      400 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /entities [post]
func (h *Handler) CreateEntity(c *gin.Context) {
	var req CreateEntityRequest
	if !api.BindJSON(c, &req) {
		return
	}

	e, err := h.service.CreateEntity(c.Request.Context(), req)
	if err != nil {
		api.WriteError(c, err)
		return
	}

	c.JSON(http.StatusCreated, e)
}

// ListEntities godoc
// @Summary      List entities
// @Tags         entities
// @Produce      json
// @Param        kind query string false "customer, agent, partner or other"
// @Param        include_inactive query bool false "Include deactivated entities"
// @Success      200 {array} domain.Entity
// @Router       /entities [get]
func (h *Handler) ListEntities(c *gin.Context) {
	f := domain.EntityFilter{
		Kind:            domain.EntityKind(c.Query("kind")),
		IncludeInactive: c.Query("include_inactive") == "true",
	}

	entities, err := h.service.ListEntities(c.Request.Context(), f)
	if err != nil {
		api.WriteError(c, err)
		return
	}
	if entities == nil {
		entities = []domain.Entity{}
	}

	c.JSON(http.StatusOK, entities)
}

// GetEntity godoc
// @Summary      Get an entity with its balances
// @Tags         entities
// @Produce      json
// @Param        id path int true "Entity ID"
// @Success      200 {object} domain.Entity
// @Failure      404 {object} api.ErrorResponse
// @Router       /entities/{id} [get]
func (h *Handler) GetEntity(c *gin.Context) {
	id, ok := api.ParamID(c, "id")
	if !ok {
		return
	}

	e, err := h.service.GetEntity(c.Request.Context(), id)
	if err != nil {
		api.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, e)
}

// UpdateEntity godoc
// @Summary      Update an entity
// @Tags         entities
// @Accept       json
// @Produce      json
// @Param        id path int true "Entity ID"
// @Param        request body account.UpdateEntityRequest true "Fields to change"
// @Success      200 {object} domain.Entity
// @Failure      400 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /entities/{id} [put]
func (h *Handler) UpdateEntity(c *gin.Context) {
	id, ok := api.ParamID(c, "id")
	if !ok {
		return
	}

	var req UpdateEntityRequest
	if !api.BindJSON(c, &req) {
		return
	}

	e, err := h.service.UpdateEntity(c.Request.Context(), id, req)
	if err != nil {
		api.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, e)
}

// DeactivateEntity godoc
// @Summary      Deactivate an entity
// @Tags         entities
// @Produce      json
// @Param        id path int true "Entity ID"
// @Success      200 {object} domain.Entity
// @Failure      404 {object} api.ErrorResponse
// @Router       /entities/{id}/deactivate [post]
func (h *Handler) DeactivateEntity(c *gin.Context) {
	id, ok := api.ParamID(c, "id")
	if !ok {
		return
	}

	e, err := h.service.DeactivateEntity(c.Request.Context(), id)
	if err != nil {
		api.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, e)
}

// GetTill godoc
// @Summary      Company till balances
// @Tags         till
// @Produce      json
// @Success      200 {object} account.TillResponse
// @Router       /till [get]
func (h *Handler) GetTill(c *gin.Context) {
	till, err := h.service.GetTill(c.Request.Context())
	if err != nil {
		api.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, TillResponse{Cash: till.Cash, Online: till.Online, Total: till.Total()})
}

// GetTillMode godoc
// @Summary      Company till balance for one mode
// @Tags         till
// @Produce      json
// @Param        mode path string true "cash or online"
// @Success      200 {object} account.TillModeResponse
// @Failure      400 {object} api.ErrorResponse
// @Router       /till/{mode} [get]
func (h *Handler) GetTillMode(c *gin.Context) {
	mode := domain.TillMode(c.Param("mode"))
	if mode != domain.TillCash && mode != domain.TillOnline {
		api.WriteError(c, domain.NewFieldError("mode", "must be one of cash, online"))
		return
	}

	till, err := h.service.GetTill(c.Request.Context())
	if err != nil {
		api.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, TillModeResponse{Mode: string(mode), Balance: till.Balance(mode)})
}
