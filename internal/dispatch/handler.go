package dispatch

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"drone-dispatch/internal/pkg/apperrors"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// TriggerSweep is the operator-invoked refresh.
func (h *Handler) TriggerSweep(c *gin.Context) {
	result, err := h.engine.Sweep(c.Request.Context())
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type assignRequest struct {
	OrderID string `json:"order_id" binding:"required"`
	DroneID string `json:"drone_id" binding:"required"`
}

func (h *Handler) AssignDrone(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": err.Error()}})
		return
	}

	if err := h.engine.AssignByID(c.Request.Context(), req.DroneID, req.OrderID); err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "drone assigned", "order_id": req.OrderID, "drone_id": req.DroneID})
}

func (h *Handler) ListAssignments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"active_order_ids": h.engine.ActiveAssignments()})
}

func (h *Handler) CancelAssignment(c *gin.Context) {
	orderID := c.Param("orderId")
	if err := h.engine.Cancel(c.Request.Context(), orderID); err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "assignment cancelled", "order_id": orderID})
}

// ConfirmDelivery is called by the order service after the customer confirms
// receipt.
func (h *Handler) ConfirmDelivery(c *gin.Context) {
	orderID := c.Param("orderId")
	if err := h.engine.ConfirmDelivery(c.Request.Context(), orderID); err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "delivery confirmed", "order_id": orderID})
}
