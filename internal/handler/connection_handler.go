// internal/handler/connection_handler.go
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alexconrey/webmux/internal/codec"
	"github.com/alexconrey/webmux/internal/connection"
	"github.com/alexconrey/webmux/internal/model"
	"github.com/alexconrey/webmux/internal/repository"
	"github.com/alexconrey/webmux/internal/utils"
)

const defaultSendTimeout = 10 * time.Second

// ErrJournalDisabled is returned by the events endpoint when no database is configured
var ErrJournalDisabled = errors.New("connection journal is disabled")

// ConnectionLookup resolves serial connections by name
type ConnectionLookup interface {
	Get(name string) (*connection.Connection, error)
	List() []string
}

// JournalReader reads journaled connection events and stats samples
type JournalReader interface {
	ListEvents(ctx context.Context, filter *repository.EventFilter) ([]*model.ConnectionEvent, error)
	ListSamples(ctx context.Context, name string, limit int) ([]*model.StatsSample, error)
}

// ConnectionHandler handles the serial connection REST endpoints
type ConnectionHandler struct {
	lookup      ConnectionLookup
	journal     JournalReader
	sendTimeout time.Duration
	logger      *utils.ServiceLogger
}

// NewConnectionHandler creates a new connection handler. journal may be nil.
func NewConnectionHandler(lookup ConnectionLookup, journal JournalReader, logger *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		lookup:      lookup,
		journal:     journal,
		sendTimeout: defaultSendTimeout,
		logger:      utils.NewServiceLogger(logger, "connection-handler"),
	}
}

// RegisterRoutes registers connection routes
func (h *ConnectionHandler) RegisterRoutes(router *gin.RouterGroup) {
	connections := router.Group("/connections")
	{
		connections.GET("", h.ListConnections)
		connections.GET("/:name", h.GetConnection)
		connections.POST("/:name/send", h.SendData)
		connections.GET("/:name/stats", h.GetStats)
		connections.GET("/:name/events", h.ListEvents)
		connections.GET("/:name/samples", h.ListSamples)
	}
}

// SendDataRequest is the body of a send call
type SendDataRequest struct {
	Data   *string `json:"data" binding:"required" example:"STATUS\r\n"`
	Format string  `json:"format" example:"text" enums:"text,hex,base64"`
}

// ConnectionSummary is one entry of the connection list
type ConnectionSummary struct {
	Name string `json:"name"`
}

// ConnectionInfo describes a configured connection
type ConnectionInfo struct {
	Name        string           `json:"name"`
	Port        string           `json:"port"`
	BaudRate    int              `json:"baud_rate"`
	DataBits    int              `json:"data_bits"`
	StopBits    int              `json:"stop_bits"`
	Parity      string           `json:"parity"`
	FlowControl string           `json:"flow_control"`
	Description string           `json:"description,omitempty"`
	State       connection.State `json:"state"`
}

// ListConnections lists connection names in configuration order
// @Summary List connections
// @Description Get the names of every open or faulted serial connection
// @Tags Connections
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]ConnectionSummary} "Connections retrieved"
// @Router /api/connections [get]
func (h *ConnectionHandler) ListConnections(c *gin.Context) {
	names := h.lookup.List()
	summaries := make([]ConnectionSummary, 0, len(names))
	for _, name := range names {
		summaries = append(summaries, ConnectionSummary{Name: name})
	}

	utils.SuccessResponse(c, http.StatusOK, "Connections retrieved successfully", summaries)
}

// GetConnection returns the configuration and state of a connection
// @Summary Get connection
// @Tags Connections
// @Produce json
// @Param name path string true "Connection name"
// @Success 200 {object} utils.APIResponse{data=ConnectionInfo} "Connection retrieved"
// @Failure 404 {object} utils.APIResponse "Connection not found"
// @Router /api/connections/{name} [get]
func (h *ConnectionHandler) GetConnection(c *gin.Context) {
	conn, err := h.lookup.Get(c.Param("name"))
	if err != nil {
		respondError(c, "Connection not found", err)
		return
	}

	cfg := conn.Config()
	utils.SuccessResponse(c, http.StatusOK, "Connection retrieved successfully", ConnectionInfo{
		Name:        cfg.Name,
		Port:        cfg.Port,
		BaudRate:    cfg.BaudRate,
		DataBits:    cfg.DataBits,
		StopBits:    cfg.StopBits,
		Parity:      cfg.Parity,
		FlowControl: cfg.FlowControl,
		Description: cfg.Description,
		State:       conn.State(),
	})
}

// SendData writes a payload to the serial port
// @Summary Send data
// @Description Decode the payload according to format and write it to the port
// @Tags Connections
// @Accept json
// @Produce json
// @Param name path string true "Connection name"
// @Param request body SendDataRequest true "Payload"
// @Success 200 {object} utils.APIResponse "Data sent"
// @Failure 400 {object} utils.APIResponse "Invalid request or encoding"
// @Failure 404 {object} utils.APIResponse "Connection not found"
// @Failure 503 {object} utils.APIResponse "Connection unavailable"
// @Router /api/connections/{name}/send [post]
func (h *ConnectionHandler) SendData(c *gin.Context) {
	name := c.Param("name")

	var req SendDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	format, err := codec.ParseFormat(req.Format)
	if err != nil {
		respondError(c, "Invalid format", err)
		return
	}

	data, err := codec.Decode(*req.Data, format)
	if err != nil {
		respondError(c, "Invalid payload encoding", err)
		return
	}

	conn, err := h.lookup.Get(name)
	if err != nil {
		respondError(c, "Connection not found", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.sendTimeout)
	defer cancel()

	if err := conn.Send(ctx, data); err != nil {
		h.logger.Warn("Send failed",
			zap.String("connection", name),
			zap.Int("bytes", len(data)),
			zap.Error(err),
		)
		respondError(c, "Failed to send data", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Data sent", gin.H{
		"connection": name,
		"bytes":      len(data),
	})
}

// GetStats returns the traffic counters of a connection
// @Summary Get connection stats
// @Tags Connections
// @Produce json
// @Param name path string true "Connection name"
// @Success 200 {object} utils.APIResponse{data=connection.Stats} "Stats retrieved"
// @Failure 404 {object} utils.APIResponse "Connection not found"
// @Router /api/connections/{name}/stats [get]
func (h *ConnectionHandler) GetStats(c *gin.Context) {
	conn, err := h.lookup.Get(c.Param("name"))
	if err != nil {
		respondError(c, "Connection not found", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Stats retrieved successfully", conn.Stats())
}

// ListEvents returns journaled lifecycle events of a connection
// @Summary List connection events
// @Tags Connections
// @Produce json
// @Param name path string true "Connection name"
// @Param limit query int false "Maximum number of events" default(100)
// @Success 200 {object} utils.APIResponse{data=[]model.ConnectionEvent} "Events retrieved"
// @Failure 503 {object} utils.APIResponse "Journal disabled"
// @Router /api/connections/{name}/events [get]
func (h *ConnectionHandler) ListEvents(c *gin.Context) {
	if h.journal == nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Journal not available", ErrJournalDisabled)
		return
	}

	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	events, err := h.journal.ListEvents(c.Request.Context(), &repository.EventFilter{
		Connection: c.Param("name"),
		Limit:      limit,
	})
	if err != nil {
		h.logger.Error("Failed to list events", zap.Error(err))
		respondError(c, "Failed to list events", err)
		return
	}

	if events == nil {
		events = []*model.ConnectionEvent{}
	}
	utils.SuccessResponse(c, http.StatusOK, "Events retrieved successfully", events)
}

// ListSamples returns the periodic stats samples of a connection
// @Summary List connection stats samples
// @Tags Connections
// @Produce json
// @Param name path string true "Connection name"
// @Param limit query int false "Maximum number of samples" default(100)
// @Success 200 {object} utils.APIResponse{data=[]model.StatsSample} "Samples retrieved"
// @Failure 503 {object} utils.APIResponse "Journal disabled"
// @Router /api/connections/{name}/samples [get]
func (h *ConnectionHandler) ListSamples(c *gin.Context) {
	if h.journal == nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Journal not available", ErrJournalDisabled)
		return
	}

	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	samples, err := h.journal.ListSamples(c.Request.Context(), c.Param("name"), limit)
	if err != nil {
		h.logger.Error("Failed to list samples", zap.Error(err))
		respondError(c, "Failed to list samples", err)
		return
	}

	if samples == nil {
		samples = []*model.StatsSample{}
	}
	utils.SuccessResponse(c, http.StatusOK, "Samples retrieved successfully", samples)
}

// queryLimit parses the optional limit query parameter. It writes a 400 and
// returns false when the value is not a non-negative integer.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		if err == nil {
			err = fmt.Errorf("limit must not be negative: %d", n)
		}
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid limit", err)
		return 0, false
	}
	return n, true
}
