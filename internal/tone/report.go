package tone

import (
	"go.uber.org/zap"

	"github.com/satindergrewal/aura/internal/metrics"
)

// Report logs each correction at Warn and counts it by field. A nil logger
// only counts.
func Report(logger *zap.Logger, errs ...ValidationError) {
	for _, e := range errs {
		metrics.ParameterCorrectionsTotal.WithLabelValues(e.Field).Inc()
		if logger == nil {
			continue
		}
		logger.Warn("Parameter corrected",
			zap.String("field", e.Field),
			zap.Float64("value", e.Value),
			zap.Float64("applied", e.Applied),
			zap.String("reason", e.Reason))
	}
}
