package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"drone-dispatch/internal/common"
	"drone-dispatch/internal/fleet"
	"drone-dispatch/internal/pkg/apperrors"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

type createDroneRequest struct {
	Name        string  `json:"name" binding:"required"`
	BaseLat     float64 `json:"base_lat"`
	BaseLng     float64 `json:"base_lng"`
	BaseAddress string  `json:"base_address"`
	CapacityKg  float64 `json:"capacity_kg"`
	Active      bool    `json:"active"`
}

func (h *Handler) CreateDrone(c *gin.Context) {
	var req createDroneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": err.Error()}})
		return
	}

	d, err := h.svc.CreateDrone(c.Request.Context(), fleet.CreateParams{
		Name:        req.Name,
		Base:        common.NewLocation(req.BaseLat, req.BaseLng),
		BaseAddress: req.BaseAddress,
		CapacityKg:  req.CapacityKg,
		Active:      req.Active,
	})
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"drone": d})
}

func (h *Handler) GetDrone(c *gin.Context) {
	d, err := h.svc.GetDrone(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drone": d})
}

type updateDroneRequest struct {
	Name        *string  `json:"name"`
	BaseLat     *float64 `json:"base_lat"`
	BaseLng     *float64 `json:"base_lng"`
	BaseAddress *string  `json:"base_address"`
	CapacityKg  *float64 `json:"capacity_kg"`
	Battery     *float64 `json:"battery_percent"`
}

func (h *Handler) UpdateDrone(c *gin.Context) {
	var req updateDroneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": err.Error()}})
		return
	}

	params := fleet.UpdateParams{
		Name:        req.Name,
		BaseAddress: req.BaseAddress,
		CapacityKg:  req.CapacityKg,
		Battery:     req.Battery,
	}
	if req.BaseLat != nil && req.BaseLng != nil {
		base := common.NewLocation(*req.BaseLat, *req.BaseLng)
		params.Base = &base
	}

	d, err := h.svc.UpdateDrone(c.Request.Context(), c.Param("id"), params)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drone": d})
}

func (h *Handler) ListDrones(c *gin.Context) {
	page, limit := parsePagination(c)

	var statusPtr *fleet.Status
	if s := c.Query("status"); s != "" {
		st := fleet.Status(s)
		statusPtr = &st
	}
	var activePtr *bool
	if a := c.Query("active"); a != "" {
		if v, err := strconv.ParseBool(a); err == nil {
			activePtr = &v
		}
	}

	drones, total, err := h.svc.ListDrones(c.Request.Context(), statusPtr, activePtr, page, limit)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"drones": drones, "total": total, "page": page, "limit": limit})
}

func (h *Handler) ActivateDrone(c *gin.Context) {
	d, err := h.svc.ActivateDrone(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drone": d})
}

func (h *Handler) DisableDrone(c *gin.Context) {
	d, err := h.svc.DisableDrone(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drone": d})
}

func (h *Handler) UpdateDroneStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": err.Error()}})
		return
	}

	d, err := h.svc.SetDroneStatus(c.Request.Context(), c.Param("id"), fleet.Status(req.Status))
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drone": d})
}

func parsePagination(c *gin.Context) (int, int) {
	page := 1
	limit := 20
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if l := c.Query("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	return page, limit
}
