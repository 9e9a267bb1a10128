// Package server exposes the agent's local HTTP API: status inspection,
// update trigger and abort, health, and Prometheus metrics.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ishmatuaulia/thermoagent/internal/update"
)

// SlotStatus is one slot row in the status response.
type SlotStatus struct {
	Slot  string `json:"slot"`
	Role  string `json:"role"`
	State string `json:"state"`
}

// Status is the full status snapshot returned by GET /status.
type Status struct {
	DeviceID        string         `json:"device_id"`
	FwTitle         string         `json:"fw_title"`
	FwVersion       string         `json:"fw_version"`
	ActiveSlot      string         `json:"active_slot"`
	PendingVerify   bool           `json:"pending_verify"`
	ConfirmDeadline *time.Time     `json:"confirm_deadline,omitempty"`
	Recovered       bool           `json:"recovered,omitempty"`
	Slots           []SlotStatus   `json:"slots"`
	UpdateBusy      bool           `json:"update_busy"`
	LastUpdate      *update.Result `json:"last_update,omitempty"`
	TemperatureC    *float64       `json:"temperature_c,omitempty"`
	LastSampleAt    *time.Time     `json:"last_sample_at,omitempty"`
}

// Controller is the agent surface the HTTP API drives.
type Controller interface {
	Status() Status
	StartUpdate(trig update.Trigger) (string, error)
	AbortUpdate() error
}

// Router provides embeddable HTTP handlers for the agent API.
// Endpoints:
//   GET  {basePath}/status
//   POST {basePath}/update   body: update.Trigger JSON
//   POST {basePath}/abort
//   GET  {basePath}/healthz
//   GET  {basePath}/metrics
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	ctrl     Controller
	basePath string
}

// NewRouter constructs a Router with configurable basePath.
func NewRouter(ctrl Controller, basePath string) *Router {
	return &Router{ctrl: ctrl, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/update", r.handleUpdate)
	group.POST("/abort", r.handleAbort)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, ctrl Controller) (*http.Server, error) {
	r := NewRouter(ctrl, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type startedResp struct {
	OK      bool   `json:"ok"`
	Session string `json:"session"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.ctrl.Status())
}

func (r *Router) handleUpdate(c *gin.Context) {
	var trig update.Trigger
	if err := c.ShouldBindJSON(&trig); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := trig.Validate(); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	key, err := r.ctrl.StartUpdate(trig)
	if err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, update.ErrUpdateBusy) {
			code = http.StatusConflict
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusAccepted, startedResp{OK: true, Session: key})
}

func (r *Router) handleAbort(c *gin.Context) {
	if err := r.ctrl.AbortUpdate(); err != nil {
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
