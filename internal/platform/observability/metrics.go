package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FilesWalked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_sync_files_walked_total",
		Help: "The total number of corpus files visited by the sync engine",
	}, []string{"mode"})

	FilesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_sync_files_skipped_total",
		Help: "The total number of corpus files skipped by reason",
	}, []string{"reason"})

	MessagesUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_messages_upserted_total",
		Help: "The total number of message upserts by outcome",
	}, []string{"status"})

	UnknownMediaShapes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archive_unknown_media_shapes_total",
		Help: "Messages whose media was resolved by the generic file_id fallback",
	})

	SyncBatchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "archive_sync_batch_duration_seconds",
		Help:    "Duration in seconds to process one sync batch",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	ChatScanDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "archive_chat_scan_duration_seconds",
		Help:    "Duration in seconds of a full chat directory scan",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	ChatCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_chat_cache_total",
		Help: "Chat directory cache lookups by outcome",
	}, []string{"outcome"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_http_requests_total",
		Help: "HTTP API requests by route and status",
	}, []string{"route", "status"})

	BotAPICalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_bot_api_calls_total",
		Help: "Outbound Telegram bot API calls by method and outcome",
	}, []string{"method", "status"})

	AvatarFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_avatar_fetches_total",
		Help: "Background avatar fetches by outcome",
	}, []string{"outcome"})

	PollCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_client_poll_cycles_total",
		Help: "Client reconciliation poll cycles by outcome",
	}, []string{"outcome"})
)
