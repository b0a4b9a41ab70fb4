package observability

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/feelflow/pkg/domain"
)

// Metrics holds the collectors fed by the engine hooks.
type Metrics struct {
	Sessions     prometheus.Counter
	Turns        *prometheus.CounterVec
	PathSelected *prometheus.CounterVec
	CycleAnswers *prometheus.CounterVec
	Restarts     prometheus.Counter
	Farewells    prometheus.Counter
	TurnLatency  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg (nil skips registration).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feelflow_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feelflow_turns_total",
			Help: "Total number of bot turns by path and resulting step",
		}, []string{"path", "step", "fallback"}),
		PathSelected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feelflow_path_selected_total",
			Help: "Total number of path selections",
		}, []string{"path"}),
		CycleAnswers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feelflow_cycle_events_total",
			Help: "Cycle check starts and answers by resulting phase",
		}, []string{"phase", "answer"}),
		Restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feelflow_restarts_total",
			Help: "Total number of accepted restart offers",
		}),
		Farewells: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feelflow_farewells_total",
			Help: "Total number of declined restart offers",
		}),
		TurnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feelflow_turn_duration_seconds",
			Help:    "Time from accepted input to appended reply",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 1.5, 2, 5},
		}, []string{"path"}),
	}
	if reg != nil {
		reg.MustRegister(m.Sessions, m.Turns, m.PathSelected, m.CycleAnswers, m.Restarts, m.Farewells, m.TurnLatency)
	}
	return m
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionCreated: func(context.Context, *domain.EventBase) {
			m.Sessions.Inc()
		},
		OnTurn: func(_ context.Context, e *domain.TurnEvent) {
			m.Turns.WithLabelValues(pathLabel(e.Path), string(e.To), strconv.FormatBool(e.Fallback)).Inc()
			m.TurnLatency.WithLabelValues(pathLabel(e.Path)).Observe(e.Latency.Seconds())
		},
		OnPathSelected: func(_ context.Context, e *domain.TurnEvent) {
			m.PathSelected.WithLabelValues(pathLabel(e.Path)).Inc()
		},
		OnCycle: func(_ context.Context, e *domain.CycleEvent) {
			answer := "start"
			if e.Answer != nil {
				answer = strconv.FormatBool(*e.Answer)
			}
			m.CycleAnswers.WithLabelValues(string(e.Phase), answer).Inc()
		},
		OnRestart: func(context.Context, *domain.EventBase) {
			m.Restarts.Inc()
		},
		OnFarewell: func(context.Context, *domain.EventBase) {
			m.Farewells.Inc()
		},
	}
}

func pathLabel(p domain.Path) string {
	if p == domain.PathNone {
		return "none"
	}
	return string(p)
}

// LogHooks returns hooks that write every event to logger at debug level.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionCreated: func(_ context.Context, e *domain.EventBase) {
			logger.Debug("session_created", "session_id", e.SessionID)
		},
		OnTurn: func(_ context.Context, e *domain.TurnEvent) {
			logger.Debug("turn", "session_id", e.SessionID, "path", e.Path, "from", e.From, "to", e.To, "fallback", e.Fallback)
		},
		OnPathSelected: func(_ context.Context, e *domain.TurnEvent) {
			logger.Debug("path_selected", "session_id", e.SessionID, "path", e.Path)
		},
		OnCycle: func(_ context.Context, e *domain.CycleEvent) {
			logger.Debug("cycle", "session_id", e.SessionID, "phase", e.Phase)
		},
		OnRestart: func(_ context.Context, e *domain.EventBase) {
			logger.Debug("restart", "session_id", e.SessionID)
		},
		OnFarewell: func(_ context.Context, e *domain.EventBase) {
			logger.Debug("farewell", "session_id", e.SessionID)
		},
	}
}

// Combine fans every event out to all of the given hooks.
func Combine(all ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionCreated: func(ctx context.Context, e *domain.EventBase) {
			for _, h := range all {
				if h.OnSessionCreated != nil {
					h.OnSessionCreated(ctx, e)
				}
			}
		},
		OnTurn: func(ctx context.Context, e *domain.TurnEvent) {
			for _, h := range all {
				if h.OnTurn != nil {
					h.OnTurn(ctx, e)
				}
			}
		},
		OnPathSelected: func(ctx context.Context, e *domain.TurnEvent) {
			for _, h := range all {
				if h.OnPathSelected != nil {
					h.OnPathSelected(ctx, e)
				}
			}
		},
		OnCycle: func(ctx context.Context, e *domain.CycleEvent) {
			for _, h := range all {
				if h.OnCycle != nil {
					h.OnCycle(ctx, e)
				}
			}
		},
		OnRestart: func(ctx context.Context, e *domain.EventBase) {
			for _, h := range all {
				if h.OnRestart != nil {
					h.OnRestart(ctx, e)
				}
			}
		},
		OnFarewell: func(ctx context.Context, e *domain.EventBase) {
			for _, h := range all {
				if h.OnFarewell != nil {
					h.OnFarewell(ctx, e)
				}
			}
		},
	}
}
