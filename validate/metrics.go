package validate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// checksTotal counts field checks by rule and outcome ("valid" or the rejection reason).
//
// Useful queries:
//   - sum(rate(validate_checks_total{outcome!="valid"}[5m])) by (rule)
//   - validate_checks_total{rule="secret_key",outcome="MALFORMED_SECRET_KEY"}
var checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
	Name: "validate_checks_total",
	Help: "The total number of field checks by rule and outcome",
}, []string{"rule", "outcome"})

func observe(rule string, err error) error {
	outcome := "valid"
	if reason, ok := ReasonOf(err); ok {
		outcome = string(reason)
	}

	checksTotal.WithLabelValues(rule, outcome).Inc()

	return err
}
