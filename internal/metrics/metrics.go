package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RespectsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promotion_respects_sent_total",
			Help: "Respects sent by users",
		},
	)

	RespectsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promotion_respects_received_total",
			Help: "Respects credited to recipients",
		},
	)

	MarketCapGrowth = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promotion_market_cap_growth_total",
			Help: "Market cap added by received respects",
		},
	)

	DayRollovers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promotion_day_rollovers_total",
			Help: "User records advanced to a new day, by outcome",
		},
		[]string{"outcome"},
	)

	RankChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promotion_rank_changes_total",
			Help: "Rank promotions and demotions",
		},
		[]string{"direction"},
	)

	CompanyEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promotion_company_events_total",
			Help: "Company lifecycle events",
		},
		[]string{"event"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promotion_store_errors_total",
			Help: "Key/value store failures downgraded to defaults",
		},
		[]string{"op"},
	)

	MarketCrashActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "promotion_market_crash_active",
			Help: "1 while market crash mode is on",
		},
	)
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promotion_http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		},
		[]string{"route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promotion_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	SocialErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promotion_social_errors_total",
			Help: "Remote social store failures by operation",
		},
		[]string{"op"},
	)

	SettleRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promotion_settle_runs_total",
			Help: "Worker settlement passes by result",
		},
		[]string{"result"},
	)
)
