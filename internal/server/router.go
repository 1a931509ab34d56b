package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tallyworks/syncd/internal/auth"
	"github.com/tallyworks/syncd/internal/devices"
	"github.com/tallyworks/syncd/internal/syncer"
	"go.uber.org/zap"
)

const (
	userIDContextKey    = "syncd_user_id"
	companyIDContextKey = "syncd_company_id"
)

var (
	errMissingTokenValidator = errors.New("token validator dependency required")
	errMissingDeviceService  = errors.New("device service dependency required")
	errMissingSyncEngine     = errors.New("sync engine dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// TokenValidator checks a bearer token and returns the identity it carries.
type TokenValidator interface {
	ValidateToken(token string) (auth.Identity, error)
}

// Dependencies wires the HTTP layer to the services behind it.
type Dependencies struct {
	Tokens   TokenValidator
	Devices  *devices.Service
	Engine   *syncer.Service
	Realtime *RealtimeDispatcher
	Logger   *zap.Logger
	Clock    func() time.Time
}

// NewHTTPHandler builds the gin handler exposing the sync API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenValidator
	}
	if deps.Devices == nil {
		return nil, errMissingDeviceService
	}
	if deps.Engine == nil {
		return nil, errMissingSyncEngine
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:   deps.Tokens,
		devices:  deps.Devices,
		engine:   deps.Engine,
		realtime: realtime,
		logger:   logger,
		clock:    clock,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/api/sync")
	protected.Use(handler.authorizeRequest)
	protected.POST("/devices/register", handler.handleRegisterDevice)
	protected.GET("/devices", handler.handleListDevices)
	protected.POST("/devices/:deviceID/deactivate", handler.handleDeactivateDevice)
	protected.POST("/pull", handler.handlePull)
	protected.POST("/push", handler.handlePush)
	protected.POST("/initial", handler.handleInitialSync)
	protected.POST("/mark-synced", handler.handleMarkSynced)
	protected.POST("/resolve-conflict", handler.handleResolveConflict)
	protected.GET("/status", handler.handleStatus)
	protected.POST("/heartbeat", handler.handleHeartbeat)
	protected.GET("/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	tokens   TokenValidator
	devices  *devices.Service
	engine   *syncer.Service
	realtime *RealtimeDispatcher
	logger   *zap.Logger
	clock    func() time.Time
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	identity, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, identity.UserID)
	c.Set(companyIDContextKey, identity.CompanyID)
	c.Next()
}

func (h *httpHandler) identity(c *gin.Context) (companyID, userID string) {
	return c.GetString(companyIDContextKey), c.GetString(userIDContextKey)
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type registerDevicePayload struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`
	IPAddress  string `json:"ip_address"`
}

func (h *httpHandler) handleRegisterDevice(c *gin.Context) {
	companyID, userID := h.identity(c)

	var request registerDevicePayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.DeviceID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "device_id is required"})
		return
	}

	registered, err := h.devices.Register(c.Request.Context(), companyID, devices.RegistrationInput{
		DeviceID:    request.DeviceID,
		DisplayName: request.DeviceName,
		Kind:        devices.Kind(strings.TrimSpace(request.DeviceType)),
		IPAddress:   request.IPAddress,
	}, userID)
	if err != nil {
		h.logger.Error("device registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration_failed"})
		return
	}
	c.JSON(http.StatusOK, registered)
}

func (h *httpHandler) handleListDevices(c *gin.Context) {
	companyID, _ := h.identity(c)
	registered, err := h.devices.List(c.Request.Context(), companyID)
	if err != nil {
		h.logger.Error("device listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": registered, "count": len(registered)})
}

func (h *httpHandler) handleDeactivateDevice(c *gin.Context) {
	companyID, _ := h.identity(c)
	deviceID := c.Param("deviceID")

	deactivated, err := h.devices.Deactivate(c.Request.Context(), companyID, deviceID)
	if errors.Is(err, devices.ErrDeviceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "device_not_found"})
		return
	}
	if errors.Is(err, devices.ErrMissingDeviceID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "device_id is required"})
		return
	}
	if err != nil {
		h.logger.Error("device deactivation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deactivation_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"device_id":      deactivated.DeviceID,
		"active":         deactivated.Active,
		"deactivated_at": deactivated.DeactivatedAt,
	})
}

type pullPayload struct {
	DeviceID     string   `json:"device_id"`
	LastSyncedAt string   `json:"last_synced_at"`
	Tables       []string `json:"tables"`
	PageSize     int      `json:"page_size"`
}

func (h *httpHandler) handlePull(c *gin.Context) {
	companyID, _ := h.identity(c)

	var request pullPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.DeviceID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "device_id is required"})
		return
	}

	var watermark *time.Time
	if strings.TrimSpace(request.LastSyncedAt) != "" {
		parsed, err := time.Parse(time.RFC3339Nano, request.LastSyncedAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "last_synced_at must be RFC 3339"})
			return
		}
		watermark = &parsed
	}

	result, err := h.engine.Pull(c.Request.Context(), companyID, syncer.PullRequest{
		DeviceID:  request.DeviceID,
		Watermark: watermark,
		Tables:    request.Tables,
		PageSize:  request.PageSize,
	})
	if err != nil {
		h.respondEngineError(c, err, "pull_failed")
		return
	}
	c.JSON(http.StatusOK, result)
}

type pushPayload struct {
	DeviceID string             `json:"device_id"`
	Changes  []changeSetPayload `json:"changes"`
}

type changeSetPayload struct {
	TableName string       `json:"table_name"`
	Rows      []syncer.Row `json:"rows"`
}

func (h *httpHandler) handlePush(c *gin.Context) {
	companyID, _ := h.identity(c)

	var request pushPayload
	if err := c.ShouldBindJSON(&request); err != nil ||
		strings.TrimSpace(request.DeviceID) == "" || len(request.Changes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "device_id and changes are required"})
		return
	}

	changes := make([]syncer.ChangeSet, 0, len(request.Changes))
	for _, set := range request.Changes {
		changes = append(changes, syncer.ChangeSet{TableName: set.TableName, Rows: set.Rows})
	}

	result, err := h.engine.Push(c.Request.Context(), companyID, request.DeviceID, changes)
	if err != nil {
		h.respondEngineError(c, err, "push_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"applied":         result.Applied,
		"skipped":         result.Skipped,
		"conflicts_count": len(result.Conflicts),
		"conflicts":       result.Conflicts,
	})
}

type initialSyncPayload struct {
	DeviceID  string   `json:"device_id"`
	Tables    []string `json:"tables"`
	BatchSize int      `json:"batch_size"`
	Offset    int      `json:"offset"`
}

func (h *httpHandler) handleInitialSync(c *gin.Context) {
	companyID, _ := h.identity(c)

	var request initialSyncPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.DeviceID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "device_id is required"})
		return
	}

	result, err := h.engine.Bootstrap(c.Request.Context(), companyID, syncer.BootstrapRequest{
		DeviceID:  request.DeviceID,
		Tables:    request.Tables,
		BatchSize: request.BatchSize,
		Offset:    request.Offset,
	})
	if err != nil {
		h.respondEngineError(c, err, "initial_sync_failed")
		return
	}
	c.JSON(http.StatusOK, result)
}

type markSyncedPayload struct {
	Confirmations []confirmationPayload `json:"confirmations"`
}

type confirmationPayload struct {
	TableName string   `json:"table_name"`
	RecordIDs []string `json:"record_ids"`
}

func (h *httpHandler) handleMarkSynced(c *gin.Context) {
	companyID, _ := h.identity(c)

	var request markSyncedPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Confirmations) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "confirmations are required"})
		return
	}

	confirmations := make([]syncer.Confirmation, 0, len(request.Confirmations))
	for _, confirmation := range request.Confirmations {
		confirmations = append(confirmations, syncer.Confirmation{
			TableName: confirmation.TableName,
			RecordIDs: confirmation.RecordIDs,
		})
	}

	marked, err := h.engine.MarkSynced(c.Request.Context(), companyID, confirmations)
	if err != nil {
		h.respondEngineError(c, err, "mark_synced_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked_count": marked})
}

type resolveConflictPayload struct {
	TableName  string     `json:"table_name"`
	RecordID   string     `json:"record_id"`
	Resolution string     `json:"resolution"`
	ClientData syncer.Row `json:"client_data"`
}

func (h *httpHandler) handleResolveConflict(c *gin.Context) {
	companyID, _ := h.identity(c)

	var request resolveConflictPayload
	if err := c.ShouldBindJSON(&request); err != nil ||
		strings.TrimSpace(request.TableName) == "" || strings.TrimSpace(request.RecordID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "table_name and record_id are required"})
		return
	}

	result, err := h.engine.Resolve(c.Request.Context(), companyID, syncer.ResolveRequest{
		TableName:  request.TableName,
		RecordID:   request.RecordID,
		Resolution: syncer.Resolution(request.Resolution),
		ClientData: request.ClientData,
	})
	if err != nil {
		h.respondEngineError(c, err, "resolve_failed")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleStatus(c *gin.Context) {
	companyID, _ := h.identity(c)
	report, err := h.engine.Status(c.Request.Context(), companyID)
	if err != nil {
		h.respondEngineError(c, err, "status_failed")
		return
	}
	c.JSON(http.StatusOK, report)
}

type heartbeatPayload struct {
	DeviceID string `json:"device_id"`
}

func (h *httpHandler) handleHeartbeat(c *gin.Context) {
	companyID, _ := h.identity(c)

	// The body is optional; a bare heartbeat is still answered.
	var request heartbeatPayload
	_ = c.ShouldBindJSON(&request)

	if strings.TrimSpace(request.DeviceID) != "" {
		h.devices.Touch(c.Request.Context(), companyID, request.DeviceID)
	}
	c.JSON(http.StatusOK, gin.H{
		"server_time": h.clock().UTC().Format(time.RFC3339),
		"status":      "online",
	})
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	companyID, _ := h.identity(c)

	stream, cleanup := h.realtime.Subscribe(c.Request.Context(), companyID)
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	// Flush the headers so clients see the stream open before the first
	// event arrives.
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, gin.H{
				"tables":    message.Tables,
				"timestamp": message.Timestamp.UTC().Format(time.RFC3339),
			})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// respondEngineError maps engine sentinels to their HTTP shapes. Anything
// unexpected is logged and reported as a 500.
func (h *httpHandler) respondEngineError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, syncer.ErrMissingDeviceID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "device_id is required"})
	case errors.Is(err, syncer.ErrInvalidResolution):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_resolution", "message": err.Error()})
	case errors.Is(err, syncer.ErrUnknownEntity):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_entity", "message": err.Error()})
	case errors.Is(err, syncer.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record_not_found", "message": err.Error()})
	default:
		h.logger.Error("sync request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
