package ocsp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	responsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tlsca_ocsp_responses_total",
		Help: "OCSP responses produced by the responder",
	}, []string{"status"})

	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tlsca_ocsp_cache_lookups_total",
		Help: "OCSP result cache lookups by outcome",
	}, []string{"outcome"})
)
