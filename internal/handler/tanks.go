package handler

import (
	"net/http"

	"github.com/amphorabeer/brewhouse/internal/apierror"
	"github.com/amphorabeer/brewhouse/internal/dto"
	"github.com/amphorabeer/brewhouse/internal/middleware"
	"github.com/amphorabeer/brewhouse/internal/service"

	"github.com/gin-gonic/gin"
)

type TanksHandler struct{ svc service.TankService }

func NewTanksHandler(svc service.TankService) *TanksHandler { return &TanksHandler{svc: svc} }

// Create godoc
// @Summary      Register a tank
// @Tags         tanks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.CreateTankRequest true "Tank definition"
// @Success      201  {object} dto.TankResponse
// @Failure      422  {object} apierror.APIError
// @Router       /v1/tanks [post]
func (h *TanksHandler) Create(c *gin.Context) {
	var req dto.CreateTankRequest
	if !bindAndValidate(c, &req) {
		return
	}
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, apierror.New("authentication required"))
		return
	}
	resp, err := h.svc.Create(c.Request.Context(), tenantID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// List godoc
// @Summary      List tanks
// @Tags         tanks
// @Produce      json
// @Security     BearerAuth
// @Param        status query string false "available | occupied | needs_cleaning | all"
// @Param        page   query int    false "Page (default 1)"
// @Param        limit  query int    false "Rows per page (default 50)"
// @Success      200    {array} dto.TankResponse
// @Router       /v1/tanks [get]
func (h *TanksHandler) List(c *gin.Context) {
	var filter dto.TankFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, apierror.New("authentication required"))
		return
	}
	tanks, total, err := h.svc.List(c.Request.Context(), tenantID, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("failed to list tanks"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  tanks,
		"total": total,
		"page":  filter.Page,
		"limit": filter.Limit,
	})
}

func (h *TanksHandler) Get(c *gin.Context) {
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

func (h *TanksHandler) Update(c *gin.Context) {
	var req dto.UpdateTankRequest
	if !bindAndValidate(c, &req) {
		return
	}
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, apierror.New("authentication required"))
		return
	}
	resp, err := h.svc.Update(c.Request.Context(), tenantID, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// MarkCleaned godoc
// @Summary      Mark a tank cleaned
// @Description  Returns a needs_cleaning tank to the available pool.
// @Tags         tanks
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Tank UUID"
// @Success      200 {object} dto.TankResponse
// @Failure      409 {object} apierror.APIError
// @Router       /v1/tanks/{id}/cleaned [post]
func (h *TanksHandler) MarkCleaned(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, apierror.New("authentication required"))
		return
	}
	resp, err := h.svc.MarkCleaned(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
