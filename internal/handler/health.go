package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health godoc
// @Summary      Health check
// @Description  Returns the health status of the service
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Root godoc
// @Summary      Liveness probe
// @Tags         health
// @Produce      plain
// @Success      200  {string}  string  "OK"
// @Router       / [get]
func (h *Handler) Root(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}
