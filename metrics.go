/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"net/http/pprof"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	GamesStarted     prometheus.Counter
	Guesses          *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	ConnectedClients prometheus.Gauge
}

func newMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		GamesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "colorguess",
			Name:      "games_started_total",
			Help:      "Number of Start Game actions dispatched",
		}),
		Guesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "colorguess",
			Name:      "guesses_total",
			Help:      "Number of graded guesses, by result",
		}, []string{"result"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "colorguess",
			Name:      "active_sessions",
			Help:      "Number of live game sessions",
		}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "colorguess",
			Name:      "connected_clients",
			Help:      "Number of open websocket connections",
		}),
	}

	m.registry.MustRegister(
		m.GamesStarted,
		m.Guesses,
		m.ActiveSessions,
		m.ConnectedClients,
	)

	return m
}

func (m *Metrics) observeGuess(correct bool) {
	result := "wrong"
	if correct {
		result = "correct"
	}
	m.Guesses.WithLabelValues(result).Inc()
}

func (m *Metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func registerMetricsHandler(cfg *Config, m *Metrics, mux *httprouter.Router) {
	mux.Handler("GET", cfg.prefix+"/metrics", m.handler())
}

func registerProfileHandlers(cfg *Config, mux *httprouter.Router) {
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handler("GET", cfg.prefix+"/pprof/"+name, pprof.Handler(name))
	}

	mux.HandlerFunc("GET", cfg.prefix+"/pprof/cmdline", pprof.Cmdline)
	mux.HandlerFunc("GET", cfg.prefix+"/pprof/profile", pprof.Profile)
	mux.HandlerFunc("GET", cfg.prefix+"/pprof/symbol", pprof.Symbol)
	mux.HandlerFunc("GET", cfg.prefix+"/pprof/trace", pprof.Trace)
}
