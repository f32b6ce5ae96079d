package handler

import (
	"errors"
	"net/http"

	"github.com/apascualco/careway/internal/application"
	"github.com/apascualco/careway/internal/domain"
	"github.com/apascualco/careway/internal/infrastructure/http/middleware"
	"github.com/gin-gonic/gin"
)

type RegistryHandler struct {
	registrar *application.Registrar
	registry  *application.Registry
	balancer  *application.LoadBalancer
}

func NewRegistryHandler(registrar *application.Registrar, registry *application.Registry, balancer *application.LoadBalancer) *RegistryHandler {
	return &RegistryHandler{registrar: registrar, registry: registry, balancer: balancer}
}

type registerFailure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (h *RegistryHandler) Register(c *gin.Context) {
	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, registerFailure{Error: err.Error()})
		return
	}

	resp, err := h.registrar.Register(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, registerFailure{Error: err.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, registerFailure{Error: "registry store unavailable"})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

type ServicesResponse struct {
	Services []*domain.ServiceInfo                `json:"services"`
	Pools    map[string][]domain.InstanceSnapshot `json:"pools"`
	Strategy string                               `json:"strategy"`
}

func (h *RegistryHandler) ListServices(c *gin.Context) {
	services, err := h.registry.List(c.Request.Context())
	if err != nil {
		writeRegistryError(c, err)
		return
	}

	c.JSON(http.StatusOK, ServicesResponse{
		Services: services,
		Pools:    h.balancer.Snapshot(),
		Strategy: h.balancer.Strategy(),
	})
}

func (h *RegistryHandler) GetService(c *gin.Context) {
	info, err := h.registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *RegistryHandler) Discover(c *gin.Context) {
	info, err := h.registry.Discover(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *RegistryHandler) Deregister(c *gin.Context) {
	if err := h.registrar.Deregister(c.Request.Context(), c.Param("id")); err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func writeRegistryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrServiceNotFound):
		middleware.AbortWithError(c, http.StatusNotFound, "service_not_found", "service not found")
	case errors.Is(err, domain.ErrRegistryUnavailable):
		_ = c.Error(err)
		middleware.AbortWithError(c, http.StatusInternalServerError, "registry_unavailable", "registry store unavailable")
	default:
		middleware.AbortWithGatewayError(c, err)
	}
}
