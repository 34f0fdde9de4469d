package handler

import (
	"net/http"

	"github.com/amphorabeer/brewhouse/internal/apierror"
	"github.com/amphorabeer/brewhouse/internal/dto"
	"github.com/amphorabeer/brewhouse/internal/middleware"
	"github.com/amphorabeer/brewhouse/internal/service"

	"github.com/gin-gonic/gin"
)

type TransitionsHandler struct{ svc service.TransitionService }

func NewTransitionsHandler(svc service.TransitionService) *TransitionsHandler {
	return &TransitionsHandler{svc: svc}
}

// Execute godoc
// @Summary      Move a batch from fermentation to conditioning
// @Description  Resolves one of four modes (stay-in-tank, blend, direct transfer, split), validates capacity and occupancy, and commits the whole mutation atomically.
// @Tags         transitions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.TransitionRequest true "Transition request"
// @Success      201  {object} dto.TransitionResponse
// @Failure      404  {object} apierror.APIError
// @Failure      409  {object} apierror.APIError
// @Failure      422  {object} apierror.APIError
// @Router       /v1/transitions [post]
func (h *TransitionsHandler) Execute(c *gin.Context) {
	var req dto.TransitionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, apierror.New("authentication required"))
		return
	}
	userID, _ := middleware.UserID(c)

	resp, err := h.svc.Execute(c.Request.Context(), tenantID, userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListTransfers godoc
// @Summary      List movement audit rows
// @Tags         transitions
// @Produce      json
// @Security     BearerAuth
// @Param        batch_id query string false "Filter by batch UUID"
// @Param        kind     query string false "transfer | split | blend | stay_in_tank | all"
// @Param        page     query int    false "Page (default 1)"
// @Param        limit    query int    false "Rows per page (default 50)"
// @Success      200      {array} dto.TransferListItem
// @Router       /v1/transfers [get]
func (h *TransitionsHandler) ListTransfers(c *gin.Context) {
	var filter dto.TransferFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, apierror.New("authentication required"))
		return
	}
	items, total, err := h.svc.ListTransfers(c.Request.Context(), tenantID, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("failed to list transfers"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  items,
		"total": total,
		"page":  filter.Page,
		"limit": filter.Limit,
	})
}
