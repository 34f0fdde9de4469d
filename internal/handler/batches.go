package handler

import (
	"net/http"

	"github.com/amphorabeer/brewhouse/internal/apierror"
	"github.com/amphorabeer/brewhouse/internal/dto"
	"github.com/amphorabeer/brewhouse/internal/middleware"
	"github.com/amphorabeer/brewhouse/internal/repository"
	"github.com/amphorabeer/brewhouse/internal/service"
	"github.com/amphorabeer/brewhouse/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type BatchesHandler struct {
	svc        service.BatchService
	timeline   repository.TimelineRepository
	dispatcher *worker.Dispatcher
}

func NewBatchesHandler(svc service.BatchService, timeline repository.TimelineRepository, dispatcher *worker.Dispatcher) *BatchesHandler {
	return &BatchesHandler{svc: svc, timeline: timeline, dispatcher: dispatcher}
}

// Create godoc
// @Summary      Start a production batch
// @Description  Creates the batch, its initial fermentation lot, and an active assignment on the chosen tank.
// @Tags         batches
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.CreateBatchRequest true "Batch definition"
// @Success      201  {object} dto.BatchResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/batches [post]
func (h *BatchesHandler) Create(c *gin.Context) {
	var req dto.CreateBatchRequest
	if !bindAndValidate(c, &req) {
		return
	}
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, apierror.New("authentication required"))
		return
	}
	userID, _ := middleware.UserID(c)

	resp, err := h.svc.Create(c.Request.Context(), tenantID, userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *BatchesHandler) Get(c *gin.Context) {
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

// List godoc
// @Summary      List batches
// @Tags         batches
// @Produce      json
// @Security     BearerAuth
// @Param        status query string false "fermenting | conditioning | all"
// @Param        page   query int    false "Page (default 1)"
// @Param        limit  query int    false "Rows per page (default 50)"
// @Success      200    {object} dto.BatchListResponse
// @Router       /v1/batches [get]
func (h *BatchesHandler) List(c *gin.Context) {
	var filter dto.BatchFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, apierror.New("authentication required"))
		return
	}
	resp, err := h.svc.List(c.Request.Context(), tenantID, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("failed to list batches"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Timeline godoc
// @Summary      Batch audit timeline
// @Tags         batches
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Batch UUID"
// @Success      200 {array} model.TimelineEvent
// @Router       /v1/batches/{id}/timeline [get]
func (h *BatchesHandler) Timeline(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid id"))
		return
	}
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, apierror.New("authentication required"))
		return
	}
	events, err := h.timeline.ListByBatch(c.Request.Context(), tenantID, batchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("failed to load timeline"))
		return
	}
	c.JSON(http.StatusOK, events)
}

// RequestReport godoc
// @Summary      Request a movement report
// @Description  Enqueues async PDF generation; the report is emailed when ready.
// @Tags         batches
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string true "Batch UUID"
// @Param        body body dto.ReportRequest true "Delivery address"
// @Success      202
// @Router       /v1/batches/{id}/report [post]
func (h *BatchesHandler) RequestReport(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid id"))
		return
	}
	var req dto.ReportRequest
	if !bindAndValidate(c, &req) {
		return
	}
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, apierror.New("authentication required"))
		return
	}

	if err := h.dispatcher.EnqueueReport(c.Request.Context(), worker.ReportJobPayload{
		TenantID: tenantID.String(),
		BatchID:  batchID.String(),
		ToEmail:  req.ToEmail,
	}); err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("failed to enqueue report"))
		return
	}
	c.Status(http.StatusAccepted)
}
