package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/physver/trustchain/internal/identity"
	"github.com/physver/trustchain/internal/ledger"
	"github.com/physver/trustchain/internal/registry"
)

// RegistryFactory builds a trust registry from a data source name, for the
// registry-repoint operation. nil disables repointing over HTTP.
type RegistryFactory func(ctx context.Context, dsn string) (registry.Registry, error)

// AdminHandler serves the administrative surface: verifier and device
// lifecycle, plus ledger registry repointing. Every route requires an admin
// capability token.
type AdminHandler struct {
	svc     *ledger.Service
	issuer  *identity.AdminIssuer
	factory RegistryFactory
	logger  *zap.Logger
}

// NewAdminHandler creates an AdminHandler. issuer may be nil to close the
// admin surface; factory may be nil to disable repointing.
func NewAdminHandler(svc *ledger.Service, issuer *identity.AdminIssuer, factory RegistryFactory, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, issuer: issuer, factory: factory, logger: logger}
}

// Register mounts the admin routes on the given router group.
func (h *AdminHandler) Register(rg *gin.RouterGroup) {
	guard := identity.RequireAdmin(h.issuer)

	verifiers := rg.Group("/verifiers", guard)
	{
		verifiers.POST("", h.RegisterVerifier)
		verifiers.GET("", h.ListVerifiers)
		verifiers.GET("/:addr", h.GetVerifier)
		verifiers.PATCH("/:addr/active", h.SetVerifierActive)
		verifiers.GET("/:addr/devices", h.ListVerifierDevices)
	}
	devices := rg.Group("/devices", guard)
	{
		devices.POST("", h.RegisterDevice)
		devices.GET("/:id", h.GetDevice)
		devices.PATCH("/:id/active", h.SetDeviceActive)
	}
	rg.PUT("/registry", guard, h.RepointRegistry)
}

// operator extracts the acting admin's label for audit logs.
func operator(c *gin.Context) string {
	if claims, ok := identity.AdminFromContext(c); ok {
		return claims.Operator
	}
	return "unknown"
}

type registerVerifierRequest struct {
	Address string `json:"address" binding:"required"`
}

// RegisterVerifier handles POST /verifiers.
func (h *AdminHandler) RegisterVerifier(c *gin.Context) {
	var req registerVerifierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	v, err := h.svc.Registry().RegisterVerifier(c.Request.Context(), req.Address)
	if err != nil {
		fail(c, err)
		return
	}

	h.logger.Info("verifier registered",
		zap.String("address", v.Address),
		zap.String("operator", operator(c)),
	)
	c.JSON(http.StatusCreated, v)
}

// ListVerifiers handles GET /verifiers.
func (h *AdminHandler) ListVerifiers(c *gin.Context) {
	verifiers, err := h.svc.Registry().ListVerifiers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if verifiers == nil {
		verifiers = []*registry.Verifier{}
	}
	c.JSON(http.StatusOK, gin.H{"verifiers": verifiers})
}

// GetVerifier handles GET /verifiers/:addr.
func (h *AdminHandler) GetVerifier(c *gin.Context) {
	v, err := h.svc.Registry().GetVerifier(c.Request.Context(), c.Param("addr"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetVerifierActive handles PATCH /verifiers/:addr/active.
func (h *AdminHandler) SetVerifierActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	addr := c.Param("addr")
	if err := h.svc.Registry().SetVerifierActive(c.Request.Context(), addr, *req.Active); err != nil {
		fail(c, err)
		return
	}

	h.logger.Info("verifier activity changed",
		zap.String("address", addr),
		zap.Bool("active", *req.Active),
		zap.String("operator", operator(c)),
	)
	c.JSON(http.StatusOK, gin.H{"address": addr, "active": *req.Active})
}

// ListVerifierDevices handles GET /verifiers/:addr/devices.
func (h *AdminHandler) ListVerifierDevices(c *gin.Context) {
	devices, err := h.svc.Registry().ListDevicesByVerifier(c.Request.Context(), c.Param("addr"))
	if err != nil {
		fail(c, err)
		return
	}
	if devices == nil {
		devices = []*registry.Device{}
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

type registerDeviceRequest struct {
	DeviceID        string `json:"device_id"        binding:"required"`
	VerifierAddress string `json:"verifier_address" binding:"required"`
	PublicKey       []byte `json:"public_key"       binding:"required"`
}

// RegisterDevice handles POST /devices.
func (h *AdminHandler) RegisterDevice(c *gin.Context) {
	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	d, err := h.svc.Registry().RegisterDevice(c.Request.Context(), req.DeviceID, req.VerifierAddress, req.PublicKey)
	if err != nil {
		fail(c, err)
		return
	}

	h.logger.Info("device registered",
		zap.String("device_id", d.DeviceID),
		zap.String("verifier", d.VerifierAddress),
		zap.String("operator", operator(c)),
	)
	c.JSON(http.StatusCreated, d)
}

// GetDevice handles GET /devices/:id.
func (h *AdminHandler) GetDevice(c *gin.Context) {
	d, err := h.svc.Registry().GetDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// SetDeviceActive handles PATCH /devices/:id/active.
func (h *AdminHandler) SetDeviceActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	id := c.Param("id")
	if err := h.svc.Registry().SetDeviceActive(c.Request.Context(), id, *req.Active); err != nil {
		fail(c, err)
		return
	}

	h.logger.Info("device activity changed",
		zap.String("device_id", id),
		zap.Bool("active", *req.Active),
		zap.String("operator", operator(c)),
	)
	c.JSON(http.StatusOK, gin.H{"device_id": id, "active": *req.Active})
}

type repointRequest struct {
	DatabaseURL string `json:"database_url" binding:"required"`
}

// RepointRegistry handles PUT /registry — swaps the trust registry the
// ledger consults. Restricted to admins; unavailable when no factory is
// configured (e.g. memory-backed deployments).
func (h *AdminHandler) RepointRegistry(c *gin.Context) {
	if h.factory == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "registry repointing is not available on this deployment"})
		return
	}

	var req repointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	reg, err := h.factory(c.Request.Context(), req.DatabaseURL)
	if err != nil {
		h.logger.Error("registry repoint failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "cannot reach new registry backend"})
		return
	}

	h.svc.SetRegistry(reg)
	h.logger.Warn("trust registry repointed",
		zap.String("operator", operator(c)),
	)
	c.JSON(http.StatusOK, gin.H{"status": "registry repointed"})
}
