package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	updateStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "thermoagent",
			Subsystem: "update",
			Name:      "starts_total",
			Help:      "Number of accepted update triggers.",
		},
	)
	updateCommits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "thermoagent",
			Subsystem: "update",
			Name:      "commits_total",
			Help:      "Number of committed firmware updates.",
		},
	)
	updateFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thermoagent",
			Subsystem: "update",
			Name:      "failures_total",
			Help:      "Number of failed or aborted update sessions by reason.",
		}, []string{"reason"},
	)
	rollbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "thermoagent",
			Subsystem: "boot",
			Name:      "rollbacks_total",
			Help:      "Number of automatic reverts to the previous firmware.",
		},
	)
	confirms = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "thermoagent",
			Subsystem: "boot",
			Name:      "confirms_total",
			Help:      "Number of successfully confirmed firmware images.",
		},
	)
	publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thermoagent",
			Subsystem: "telemetry",
			Name:      "publishes_total",
			Help:      "Telemetry publish attempts by result.",
		}, []string{"result"},
	)
	temperature = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "thermoagent",
			Subsystem: "sensor",
			Name:      "temperature_celsius",
			Help:      "Last sampled temperature.",
		},
	)
	slotState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "thermoagent",
			Subsystem: "partition",
			Name:      "slot_state",
			Help:      "Current state per slot (1 = slot is in this state).",
		}, []string{"slot", "state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		updateStarts, updateCommits, updateFailures,
		rollbacks, confirms, publishes, temperature, slotState,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

func IncUpdateStart()                { updateStarts.Inc() }
func IncUpdateCommit()               { updateCommits.Inc() }
func IncUpdateFailure(reason string) { updateFailures.WithLabelValues(reason).Inc() }
func IncRollback()                   { rollbacks.Inc() }
func IncConfirm()                    { confirms.Inc() }

func IncPublish(ok bool) {
	if ok {
		publishes.WithLabelValues("ok").Inc()
	} else {
		publishes.WithLabelValues("error").Inc()
	}
}

func SetTemperature(celsius float64) { temperature.Set(celsius) }

// SetSlotState marks a slot's current state, clearing the other state labels
// for that slot.
func SetSlotState(slot, state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1.0
		}
		slotState.WithLabelValues(slot, s).Set(v)
	}
}
