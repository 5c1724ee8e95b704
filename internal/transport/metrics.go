package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// requestsTotal считает исходящие HTTP-запросы по методу и коду ответа.
// Код "error" — транспортный сбой до получения ответа.
var requestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "replay_client_requests_total",
		Help: "Outgoing replay-API requests by method and response code.",
	},
	[]string{"method", "code"},
)

// retriesTotal считает повторные отправки после прозрачного refresh.
var retriesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "replay_client_request_retries_total",
		Help: "Requests resent after a transparent token refresh.",
	},
)
