// internal/handler/port_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alexconrey/webmux/internal/protocol"
	"github.com/alexconrey/webmux/internal/utils"
)

// PortHandler lists the serial ports present on the host
type PortHandler struct {
	lister protocol.PortLister
	logger *utils.ServiceLogger
}

// NewPortHandler creates a new port handler
func NewPortHandler(lister protocol.PortLister, logger *zap.Logger) *PortHandler {
	if lister == nil {
		lister = protocol.ListPorts
	}
	return &PortHandler{
		lister: lister,
		logger: utils.NewServiceLogger(logger, "port-handler"),
	}
}

// RegisterRoutes registers port routes
func (h *PortHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ports", h.ListPorts)
}

// ListPorts enumerates local serial ports
// @Summary List serial ports
// @Description Enumerate serial ports on the gateway host with USB details when available
// @Tags Ports
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]protocol.PortInfo} "Ports retrieved"
// @Failure 500 {object} utils.APIResponse "Enumeration failed"
// @Router /api/ports [get]
func (h *PortHandler) ListPorts(c *gin.Context) {
	ports, err := h.lister()
	if err != nil {
		h.logger.Error("Failed to enumerate serial ports", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to enumerate serial ports", err)
		return
	}

	if ports == nil {
		ports = []protocol.PortInfo{}
	}
	utils.SuccessResponse(c, http.StatusOK, "Ports retrieved successfully", ports)
}
