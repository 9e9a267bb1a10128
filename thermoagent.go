package thermoagent

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ishmatuaulia/thermoagent/internal/agent"
	cfg "github.com/ishmatuaulia/thermoagent/internal/config"
	"github.com/ishmatuaulia/thermoagent/internal/history"
	"github.com/ishmatuaulia/thermoagent/internal/metrics"
	iapi "github.com/ishmatuaulia/thermoagent/internal/server"
	"github.com/ishmatuaulia/thermoagent/internal/update"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.FileConfig

type Trigger = update.Trigger

type Status = iapi.Status

type SlotStatus = iapi.SlotStatus

type HistorySink = history.Sink

// Agent is a thin facade over internal/agent.Agent.
// It provides a stable public API for embedding.

type Agent struct{ inner *agent.Agent }

func New(c *Config) (*Agent, error) {
	inner, err := agent.New(c)
	if err != nil {
		return nil, err
	}
	return &Agent{inner: inner}, nil
}

// Run connects to the broker and runs the agent until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error { return a.inner.Run(ctx) }

func (a *Agent) Status() Status { return a.inner.Status() }

func (a *Agent) StartUpdate(trig Trigger) (string, error) { return a.inner.StartUpdate(trig) }

func (a *Agent) AbortUpdate() error { return a.inner.AbortUpdate() }

func LoadConfig(path string) (*Config, error) {
	return cfg.Load(path)
}

// NewHTTPServer starts an HTTP server exposing the agent API.
func NewHTTPServer(addr, basePath string, a *Agent) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, a.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
