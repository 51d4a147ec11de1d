package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Ledger metrics
	WalletDeltasTotal  *prometheus.CounterVec
	LedgerRejections   *prometheus.CounterVec

	// Redemption metrics
	RedemptionsTotal *prometheus.CounterVec
	TokensGranted    prometheus.Counter

	// Referral metrics
	ReferralsTotal *prometheus.CounterVec

	// Conversion metrics
	ConversionsTotal  *prometheus.CounterVec
	TokensConverted   prometheus.Counter

	// Entitlement cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
}

var metrics *Metrics

// Init initializes all Prometheus metrics
func Init() *Metrics {
	if metrics != nil {
		return metrics
	}

	metrics = &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		WalletDeltasTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_deltas_total",
				Help: "Total number of wallet mutations applied through the ledger",
			},
			[]string{"reason"},
		),
		LedgerRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_rejections_total",
				Help: "Total number of wallet mutations rejected by invariant guards",
			},
			[]string{"reason"},
		),

		RedemptionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "token_redemptions_total",
				Help: "Total number of token redemption attempts",
			},
			[]string{"outcome"},
		),
		TokensGranted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vip_tokens_granted_total",
				Help: "Total number of VIP tokens granted by administrators",
			},
		),

		ReferralsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referrals_total",
				Help: "Total number of referral applications",
			},
			[]string{"outcome"},
		),

		ConversionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "token_conversions_total",
				Help: "Total number of token conversion attempts",
			},
			[]string{"outcome"},
		),
		TokensConverted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tokens_converted_total",
				Help: "Total number of tokens converted to cash",
			},
		),

		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		DBQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"query_type"},
		),
	}

	return metrics
}

// Get returns the global metrics instance
func Get() *Metrics {
	if metrics == nil {
		return Init()
	}
	return metrics
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// MetricsMiddleware is a Gin middleware for collecting HTTP metrics
func MetricsMiddleware() gin.HandlerFunc {
	m := Get()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// RecordWalletDelta records an applied wallet mutation
func RecordWalletDelta(reason string) {
	Get().WalletDeltasTotal.WithLabelValues(reason).Inc()
}

// RecordLedgerRejection records a wallet mutation rejected by a guard
func RecordLedgerRejection(reason string) {
	Get().LedgerRejections.WithLabelValues(reason).Inc()
}

// RecordRedemption records a token redemption attempt
func RecordRedemption(outcome string) {
	Get().RedemptionsTotal.WithLabelValues(outcome).Inc()
}

// RecordTokensGranted records administratively granted tokens
func RecordTokensGranted(count int) {
	Get().TokensGranted.Add(float64(count))
}

// RecordReferral records a referral application attempt
func RecordReferral(outcome string) {
	Get().ReferralsTotal.WithLabelValues(outcome).Inc()
}

// RecordConversion records a token conversion attempt
func RecordConversion(outcome string, tokens int64) {
	Get().ConversionsTotal.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		Get().TokensConverted.Add(float64(tokens))
	}
}

// RecordCacheHit records a cache hit
func RecordCacheHit(cacheType string) {
	Get().CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(cacheType string) {
	Get().CacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordDBQuery records a database query duration
func RecordDBQuery(queryType string, duration time.Duration) {
	Get().DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())
}
