package handler

import (
	"net/http"

	"github.com/amphorabeer/brewhouse/internal/apierror"
	"github.com/amphorabeer/brewhouse/internal/middleware"
	"github.com/amphorabeer/brewhouse/internal/service"

	"github.com/gin-gonic/gin"
)

type LotsHandler struct{ svc service.LotService }

func NewLotsHandler(svc service.LotService) *LotsHandler { return &LotsHandler{svc: svc} }

// Get godoc
// @Summary      Lot lineage detail
// @Description  Returns the lot with its split parent, children and batch links.
// @Tags         lots
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Lot UUID"
// @Success      200 {object} dto.LotDetailResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/lots/{id} [get]
func (h *LotsHandler) Get(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, apierror.New("authentication required"))
		return
	}
	resp, err := h.svc.Get(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
