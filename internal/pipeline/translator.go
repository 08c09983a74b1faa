package pipeline

import (
	"context"

	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/observe"
	"github.com/voxbridge/voxbridge/internal/resilience"
	"github.com/voxbridge/voxbridge/pkg/provider/mt"
	"github.com/voxbridge/voxbridge/pkg/types"
)

// chainProvider presents a resilience chain of translation backends as one
// mt.Provider, so the mt.Client semantics (protected spans, timeout, single
// retry) apply on top of per-provider breakers and fallback.
type chainProvider struct {
	chain   *resilience.Chain[mt.Provider]
	metrics *observe.Metrics
}

func (p chainProvider) Translate(ctx context.Context, req mt.Request) (types.Translation, error) {
	return resilience.Try(p.chain, func(name string, prov mt.Provider) (types.Translation, error) {
		res, err := prov.Translate(ctx, req)
		if err != nil {
			p.metrics.RecordProviderRequest(ctx, name, "mt", "error")
			p.metrics.RecordProviderError(ctx, name, "mt")
			return types.Translation{}, err
		}
		p.metrics.RecordProviderRequest(ctx, name, "mt", "ok")
		return res, nil
	})
}

// NewChainTranslator wraps a provider chain in the standard translation
// client. A nil metrics falls back to the package default.
func NewChainTranslator(chain *resilience.Chain[mt.Provider], cfg config.TranslationConfig, metrics *observe.Metrics) (*mt.Client, error) {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return mt.NewClient(chainProvider{chain: chain, metrics: metrics},
		mt.WithTimeout(cfg.Timeout.Std()))
}
