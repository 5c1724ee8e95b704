package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// refreshTotal считает обмены refresh-токена по исходу (ok/failed).
// Конкурентные 401 дают один инкремент: обмены коалесцируются.
var refreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "replay_client_token_refresh_total",
		Help: "Refresh-token exchanges by result.",
	},
	[]string{"result"},
)
