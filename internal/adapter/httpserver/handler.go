package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aweller/gamewarden/internal/domain"
	serveruc "github.com/aweller/gamewarden/internal/usecase/server"
)

const privilegedHeader = "X-Warden-Privileged"

// Orchestrator is the slice of the server usecase the API needs.
type Orchestrator interface {
	Start(ctx context.Context, workload string) (serveruc.StartReport, error)
	Stop(ctx context.Context) (domain.InstanceDescription, error)
	Change(ctx context.Context, workload string) (serveruc.StartReport, error)
	Status(ctx context.Context, privileged bool) (serveruc.StatusReport, error)
	SetMaintenance(on bool) bool
}

// WorkloadStore persists workload definitions added at runtime.
type WorkloadStore interface {
	PutWorkload(w domain.Workload) error
}

type response struct {
	Ok    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type workloadRequest struct {
	Workload string `json:"workload"`
}

type maintenanceRequest struct {
	Enabled bool `json:"enabled"`
}

type putWorkloadRequest struct {
	Name        string   `json:"name"`
	Start       []string `json:"start"`
	Stop        []string `json:"stop"`
	Ping        []string `json:"ping"`
	PlayerCount []string `json:"player_count"`
	Port        int      `json:"port"`
}

type startResponse struct {
	State    domain.InstanceState `json:"state"`
	Address  string               `json:"address,omitempty"`
	DNSName  string               `json:"dns_name,omitempty"`
	Port     int                  `json:"port"`
	Workload string               `json:"workload"`
	Degraded bool                 `json:"degraded"`
}

type stopResponse struct {
	State domain.InstanceState `json:"state"`
}

type statusResponse struct {
	State       domain.InstanceState `json:"state"`
	ImageID     string               `json:"image_id"`
	LaunchTime  string               `json:"launch_time"`
	Address     string               `json:"address,omitempty"`
	DNSName     string               `json:"dns_name,omitempty"`
	Workload    string               `json:"workload,omitempty"`
	Port        int                  `json:"port,omitempty"`
	PlayerCount int                  `json:"player_count"`
	Ping        string               `json:"ping,omitempty"`
	Maintenance bool                 `json:"maintenance"`
}

type maintenanceResponse struct {
	Enabled bool `json:"enabled"`
	Changed bool `json:"changed"`
}

type API struct {
	server    Orchestrator
	workloads WorkloadStore
	logger    *slog.Logger
}

func NewAPI(server Orchestrator, workloads WorkloadStore, logger *slog.Logger) *API {
	return &API{server: server, workloads: workloads, logger: logger}
}

func (a *API) RegisterRoutes(router *gin.Engine) {
	router.GET("/ping", a.ping)
	router.GET("/server", a.status)
	router.POST("/server/start", a.start)
	router.POST("/server/stop", a.stop)
	router.POST("/server/change", a.change)
	router.POST("/server/maintenance", a.maintenance)
	router.PUT("/workloads", a.putWorkload)
}

func (a *API) ping(c *gin.Context) {
	c.JSON(http.StatusOK, response{Ok: true})
}

func (a *API) start(c *gin.Context) {
	name, ok := a.bindWorkloadName(c)
	if !ok {
		return
	}

	report, err := a.server.Start(c.Request.Context(), name)
	if err != nil {
		a.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: startResponse{
		State:    report.Description.State,
		Address:  report.Description.PublicIPAddress,
		DNSName:  report.Description.PublicDNSName,
		Port:     report.Workload.Port,
		Workload: report.Workload.Name,
		Degraded: report.Degraded,
	}})
}

func (a *API) stop(c *gin.Context) {
	desc, err := a.server.Stop(c.Request.Context())
	if err != nil {
		a.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: stopResponse{State: desc.State}})
}

func (a *API) change(c *gin.Context) {
	name, ok := a.bindWorkloadName(c)
	if !ok {
		return
	}

	report, err := a.server.Change(c.Request.Context(), name)
	if err != nil {
		a.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: startResponse{
		State:    report.Description.State,
		Address:  report.Description.PublicIPAddress,
		DNSName:  report.Description.PublicDNSName,
		Port:     report.Workload.Port,
		Workload: report.Workload.Name,
		Degraded: report.Degraded,
	}})
}

func (a *API) status(c *gin.Context) {
	privileged := c.GetHeader(privilegedHeader) == "true"

	report, err := a.server.Status(c.Request.Context(), privileged)
	if err != nil {
		a.renderError(c, err)
		return
	}

	body := statusResponse{
		State:       report.Description.State,
		ImageID:     report.Description.ImageID,
		LaunchTime:  report.Description.LaunchTime.String(),
		Address:     report.Description.PublicIPAddress,
		DNSName:     report.Description.PublicDNSName,
		Workload:    report.Workload,
		Port:        report.Port,
		PlayerCount: report.PlayerCount,
		Maintenance: report.Maintenance,
	}
	if privileged {
		body.Ping = report.Ping
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: body})
}

func (a *API) maintenance(c *gin.Context) {
	var req maintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response{Ok: false, Error: err.Error()})
		return
	}

	changed := a.server.SetMaintenance(req.Enabled)
	c.JSON(http.StatusOK, response{Ok: true, Data: maintenanceResponse{Enabled: req.Enabled, Changed: changed}})
}

func (a *API) putWorkload(c *gin.Context) {
	var req putWorkloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response{Ok: false, Error: err.Error()})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, response{Ok: false, Error: "name is required"})
		return
	}

	workload := domain.Workload{
		Name:                req.Name,
		StartCommands:       req.Start,
		StopCommands:        req.Stop,
		PingCommands:        req.Ping,
		PlayerCountCommands: req.PlayerCount,
		Port:                req.Port,
	}
	if err := a.workloads.PutWorkload(workload); err != nil {
		c.JSON(http.StatusBadRequest, response{Ok: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Ok: true})
}

func (a *API) bindWorkloadName(c *gin.Context) (string, bool) {
	var req workloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response{Ok: false, Error: err.Error()})
		return "", false
	}
	if strings.TrimSpace(req.Workload) == "" {
		c.JSON(http.StatusBadRequest, response{Ok: false, Error: "workload is required"})
		return "", false
	}
	return req.Workload, true
}

// renderError maps precondition errors to their user-facing messages and
// hides everything else behind a generic failure; unexpected errors were
// already logged with context by the orchestrator.
func (a *API) renderError(c *gin.Context, err error) {
	switch err.(type) {
	case domain.ErrOperationInProgress:
		c.JSON(http.StatusTooManyRequests, response{Ok: false, Error: err.Error()})
	case domain.ErrUnknownWorkload:
		c.JSON(http.StatusNotFound, response{Ok: false, Error: err.Error()})
	case domain.ErrMaintenanceInProgress,
		domain.ErrAlreadyInTargetState,
		domain.ErrUnexpectedInstanceState,
		domain.ErrWorkloadAlreadyActive,
		domain.ErrInstanceNotRunning:
		c.JSON(http.StatusConflict, response{Ok: false, Error: err.Error()})
	default:
		a.logger.Error("request failed", "path", c.Request.URL.Path, "err", err)
		c.JSON(http.StatusInternalServerError, response{Ok: false, Error: "unexpected error, contact an admin"})
	}
}
