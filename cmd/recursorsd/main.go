// Command recursorsd is the process entry point: it binds a UDP socket,
// dispatches incoming client queries through a bounded worker pool to the
// resolver core, and serves Prometheus metrics.
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/miekg/dns"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/netresolve/recursor/cache"
	"github.com/netresolve/recursor/internal/config"
	"github.com/netresolve/recursor/internal/observability"
	"github.com/netresolve/recursor/internal/workerpool"
	"github.com/netresolve/recursor/resolver"
	"github.com/netresolve/recursor/tracker"
)

func main() {
	if err := config.Parse(os.Args[1:], run); err != nil {
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	logger := observability.NewLogger(cfg.LogLevel)
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	c := cache.New(cache.DefaultTTLCap)
	defer c.Close()

	t := tracker.New()
	pool := workerpool.New(cfg.WorkerPoolSize)

	res := resolver.New(c, t,
		resolver.WithTimeout(cfg.ExchangeTimeout),
		resolver.WithBudget(cfg.ResolveBudget),
		resolver.WithLogger(logger),
		resolver.WithHooks(metricsHooks(metrics)),
	)

	go serveMetrics(cfg.MetricsAddr, logger)

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		handleQuery(req, w, res, pool, metrics, logger)
	})

	srv := &dns.Server{Addr: cfg.BindAddress(), Net: "udp", Handler: handler}

	logger.WithField("addr", cfg.BindAddress()).Info("listening")
	if err := srv.ListenAndServe(); err != nil {
		logger.WithError(err).Error("listener exited")
		return err
	}
	return nil
}

// metricsHooks adapts a Metrics handle into the resolver.Hooks callback
// shape, keeping resolver itself free of a direct prometheus dependency.
func metricsHooks(m *observability.Metrics) resolver.Hooks {
	return resolver.Hooks{
		CacheHit:       func(kind string) { m.CacheHits.WithLabelValues(kind).Inc() },
		CacheMiss:      func(kind string) { m.CacheMisses.WithLabelValues(kind).Inc() },
		ServerSelected: func(status string) { m.ServerSelections.WithLabelValues(status).Inc() },
		ServerFailed:   func(kind string) { m.ServerFailures.WithLabelValues(kind).Inc() },
		ResolveDone: func(outcome string, elapsed time.Duration, depth int) {
			m.ResolveDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
			m.ResolveDepth.Observe(float64(depth))
		},
	}
}

func serveMetrics(addr string, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.WithError(err).Warn("metrics listener exited")
	}
}

func handleQuery(req *dns.Msg, w dns.ResponseWriter, res *resolver.Resolver, pool *workerpool.Pool, metrics *observability.Metrics, logger *logrus.Logger) {
	ctx := context.Background()

	m := new(dns.Msg)
	m.SetReply(req)

	if err := pool.Acquire(ctx); err != nil {
		m.Rcode = dns.RcodeServerFailure
		_ = w.WriteMsg(m)
		return
	}
	defer pool.Release()
	metrics.ActiveQueries.Inc()
	defer metrics.ActiveQueries.Dec()

	if len(req.Question) == 0 {
		m.Rcode = dns.RcodeFormatError
		_ = w.WriteMsg(m)
		return
	}

	q := req.Question[0]
	qtype := dns.TypeToString[q.Qtype]

	answer := res.Resolve(ctx, q.Name, qtype)

	for _, val := range answer {
		rr, err := dns.NewRR(q.Name + " IN " + qtype + " " + val)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"zone":  observability.ZoneLabel(q.Name),
				"type":  qtype,
				"value": val,
			}).Warn("could not render answer record")
			continue
		}
		m.Answer = append(m.Answer, rr)
	}
	if len(answer) == 0 {
		m.Rcode = dns.RcodeNameError
	}

	_ = w.WriteMsg(m)
}
