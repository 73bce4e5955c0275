package metrics
import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)
var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lingopaste_paste_created_total",
		Help: "no. of pastes created",
	})
	PasteRetrieved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lingopaste_paste_retrieved_total",
		Help: "no. of pastes retrieved",
	})
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingopaste_cache_hits_total",
			Help: "no. of cache hits",
		},
		[]string{"layer"},
	)
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingopaste_cache_misses_total",
			Help: "no. of cache misses",
		},
		[]string{"layer"},
	)
	Translations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingopaste_translations_total",
			Help: "no. of provider translations by target language and outcome",
		},
		[]string{"language", "outcome"},
	)
	TranslationsCoalesced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingopaste_translations_coalesced_total",
			Help: "no. of translation requests that joined an in-flight call",
		},
		[]string{"layer"},
	)
	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lingopaste_provider_duration_seconds",
			Help:    "translation provider call duration in seconds",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"operation"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lingopaste_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingopaste_rate_limit_hits_total",
			Help: "no. of rate limit violations",
		},
		[]string{"endpoint"},
	)
	WALCheckpoints = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lingopaste_wal_checkpoints_total",
		Help: "no. of WAL maintenance cycles",
	})
	RecentErrorRatePercent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lingopaste_recent_error_rate_percent",
		Help: "5min rolling failure rate percentage per signal",
	}, []string{"signal"})
)
