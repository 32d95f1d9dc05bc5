package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MediaAPIMetrics struct {
	GateDecisions *prometheus.CounterVec

	UploadRequestCount    *prometheus.CounterVec
	UploadAcceptedBytes   prometheus.Counter
	TranscodeJobCount     *prometheus.CounterVec
	TranscodeDurationSec  prometheus.Histogram
	CallbackDeliveryCount *prometheus.CounterVec
}

func NewMetrics() *MediaAPIMetrics {
	return &MediaAPIMetrics{
		GateDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_decisions_total",
			Help: "Authorization gate decisions broken up by audience and outcome",
		}, []string{"audience", "outcome"}),

		UploadRequestCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upload_request_count",
			Help: "Upload requests broken up by route and outcome",
		}, []string{"route", "outcome"}),
		UploadAcceptedBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "upload_accepted_bytes_total",
			Help: "Total bytes of accepted source uploads",
		}),

		TranscodeJobCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transcode_job_count",
			Help: "Transcode jobs broken up by terminal status",
		}, []string{"status"}),
		TranscodeDurationSec: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcode_duration_seconds",
			Help:    "Time taken to run a transcode job",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),

		CallbackDeliveryCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callback_delivery_count",
			Help: "Lifecycle callback deliveries broken up by kind and outcome",
		}, []string{"kind", "outcome"}),
	}
}

var Metrics = NewMetrics()
