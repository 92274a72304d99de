package chain

import "github.com/pushkarm029/yap-rewards/pkg/metrics"

func observeChainRequest(method string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ChainRequestsTotal.WithLabelValues(method, status).Inc()
}
