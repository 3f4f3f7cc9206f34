package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.AgentService/attendance"
	logger "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Logger"
)

// ScanHandler runs the attendance flow for one decoded text
type ScanHandler interface {
	HandleDecoded(ctx context.Context, text string) (*attendance.Outcome, error)
}

// DeviceIDProvider returns the persisted device identifier
type DeviceIDProvider interface {
	DeviceID(ctx context.Context) (string, error)
}

// SessionReader exposes the last navigation of the bootstrap
type SessionReader interface {
	Current() (string, time.Time)
}

// APIHealth probes the attendance server
type APIHealth interface {
	Health(ctx context.Context) error
}

// StoragePinger probes the identity store backend
type StoragePinger interface {
	Ping(ctx context.Context) error
}

// AgentController serves the local control API
type AgentController struct {
	flow     ScanHandler
	identity DeviceIDProvider
	session  SessionReader
	api      APIHealth
	storage  StoragePinger
	mqtt     func() bool
	logger   *logger.Logger
}

// ScanRequest is the body of POST /scan
type ScanRequest struct {
	Text string `json:"text" binding:"required"`
}

// NewAgentController creates a new agent controller. mqttConnected may be nil when MQTT is disabled.
func NewAgentController(flow ScanHandler, identity DeviceIDProvider, session SessionReader, api APIHealth, storage StoragePinger, mqttConnected func() bool, logger *logger.Logger) *AgentController {
	return &AgentController{
		flow:     flow,
		identity: identity,
		session:  session,
		api:      api,
		storage:  storage,
		mqtt:     mqttConnected,
		logger:   logger.WithComponent("control_api"),
	}
}

// RegisterRoutes registers the agent routes with Gin
func (c *AgentController) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", c.Health)
	router.GET("/identity", c.GetIdentity)
	router.GET("/session", c.GetSession)
	router.POST("/scan", c.Scan)
}

func (c *AgentController) Health(ctx *gin.Context) {
	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	apiStatus := "connected"
	if err := c.api.Health(reqCtx); err != nil {
		apiStatus = "disconnected"
	}

	storageStatus := "ok"
	if err := c.storage.Ping(reqCtx); err != nil {
		c.logger.Logger.Warn().Err(err).Msg("Identity store health check failed")
		storageStatus = "error"
	}

	mqttStatus := "disabled"
	if c.mqtt != nil {
		mqttStatus = "disconnected"
		if c.mqtt() {
			mqttStatus = "connected"
		}
	}

	status := "healthy"
	code := http.StatusOK
	if apiStatus != "connected" || storageStatus != "ok" || mqttStatus == "disconnected" {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	ctx.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services": gin.H{
			"api_service": apiStatus,
			"storage":     storageStatus,
			"mqtt":        mqttStatus,
		},
	})
}

func (c *AgentController) GetIdentity(ctx *gin.Context) {
	id, err := c.identity.DeviceID(ctx.Request.Context())
	if err != nil {
		c.logger.ErrorWithError(err, "Failed to read device identifier")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"telefono_id": id})
}

func (c *AgentController) GetSession(ctx *gin.Context) {
	destination, at := c.session.Current()
	if destination == "" {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "no session established"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"destination":  destination,
		"navigated_at": at.UTC().Format(time.RFC3339),
	})
}

func (c *AgentController) Scan(ctx *gin.Context) {
	var req ScanRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := c.flow.HandleDecoded(ctx.Request.Context(), req.Text)
	switch {
	case errors.Is(err, attendance.ErrInvalidQR):
		ctx.JSON(http.StatusUnprocessableEntity, outcome)
	case err != nil:
		ctx.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		ctx.JSON(http.StatusOK, outcome)
	}
}
