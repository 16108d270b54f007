package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/marina/internal/dashboard"
)

type DashboardHandler struct {
	aggregator *dashboard.Aggregator
}

func NewDashboardHandler(aggregator *dashboard.Aggregator) *DashboardHandler {
	return &DashboardHandler{aggregator: aggregator}
}

func (h *DashboardHandler) Get(c *gin.Context) {
	snap, err := h.aggregator.ComputeToday(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, snap)
}
