package http

import (
	"net/http"

	"github.com/dkeye/EchoTest/internal/adapters/media"
	"github.com/dkeye/EchoTest/internal/app"
	"github.com/gin-gonic/gin"
)

// Diagnostics is the read-only view served under /api.
type Diagnostics interface {
	Sessions() []app.SessionSnap
	Pipelines() []media.PipelineInfo
	Kuid() string
}

type HealthResponse struct {
	Status    string `json:"status"`
	Kuid      string `json:"kuid"`
	Sessions  int    `json:"sessions"`
	Pipelines int    `json:"pipelines"`
}

type diagnosticsHandler struct {
	d Diagnostics
}

func (h diagnosticsHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Kuid:      h.d.Kuid(),
		Sessions:  len(h.d.Sessions()),
		Pipelines: len(h.d.Pipelines()),
	})
}

func (h diagnosticsHandler) sessions(c *gin.Context) {
	c.JSON(http.StatusOK, h.d.Sessions())
}

func (h diagnosticsHandler) pipelines(c *gin.Context) {
	c.JSON(http.StatusOK, h.d.Pipelines())
}

// EngineDiagnostics joins the session registry and the media engine.
type EngineDiagnostics struct {
	Registry *app.Registry
	Engine   *media.Engine
}

func (d EngineDiagnostics) Sessions() []app.SessionSnap     { return d.Registry.Snapshot() }
func (d EngineDiagnostics) Pipelines() []media.PipelineInfo { return d.Engine.Pipelines() }
func (d EngineDiagnostics) Kuid() string                    { return d.Engine.Kuid() }
