// Package metrics owns the Prometheus registry shared by the bot runtime and its services.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/m3rciful/issuebot/core/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "issuebot"

var (
	registry = prometheus.NewRegistry()

	updatesHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "updates_handled_total",
		Help:      "Telegram updates handled, by handler and outcome.",
	}, []string{"handler", "outcome"})

	handlerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "handler_duration_seconds",
		Help:      "Handler latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"handler"})

	messagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_sent_total",
		Help:      "Messages sent back to users, split by keyboard presence.",
	}, []string{"kb"})

	editTurns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "edit_turns_total",
		Help:      "Issue edit conversation turns, by step and outcome.",
	}, []string{"step", "outcome"})

	groupActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "group_actions_total",
		Help:      "Chat group maintenance actions, by action and status.",
	}, []string{"action", "status"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		updatesHandled,
		handlerDuration,
		messagesSent,
		editTurns,
		groupActions,
	)
}

// Registry exposes the registry for tests and custom collectors.
func Registry() *prometheus.Registry {
	return registry
}

// ObserveHandler records one handled update.
func ObserveHandler(handler, outcome string, took time.Duration) {
	updatesHandled.WithLabelValues(handler, outcome).Inc()
	handlerDuration.WithLabelValues(handler).Observe(took.Seconds())
}

// MessageSent counts one outbound message.
func MessageSent(withKeyboard bool) {
	messagesSent.WithLabelValues(strconv.FormatBool(withKeyboard)).Inc()
}

// EditTurn counts one conversation turn that started at step.
func EditTurn(step int, outcome string) {
	editTurns.WithLabelValues(strconv.Itoa(step), outcome).Inc()
}

// GroupAction counts one chat group action such as rename, kick or close.
func GroupAction(action string, err error) {
	groupActions.WithLabelValues(action, logger.Status(err)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes Handler on listen until ctx is cancelled.
func Serve(ctx context.Context, listen, path string) error {
	if listen == "" {
		return nil
	}
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, Handler())

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info(ctx, logger.CompMetrics, "metrics.listen",
		slog.String("listen", listen),
		slog.String("path", path),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error(ctx, logger.CompMetrics, "metrics.listen",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
