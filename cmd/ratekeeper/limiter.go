package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"ratekeeper/internal/allowlist"
	"ratekeeper/internal/logger"
	"ratekeeper/internal/models"
	"ratekeeper/internal/ratelimit"
	"ratekeeper/internal/storage"
)

// limiterSetup is the key-type independent result of building the rate
// limit policy for the configured extractor.
type limiterSetup struct {
	middleware func(http.Handler) http.Handler
	limiter    ratelimit.Sweeper
	allowList  allowlist.ServiceInterface
	// reload runs the allow-list reload loop until ctx is done. Nil without
	// an allow-list.
	reload func(ctx context.Context)
}

// buildLimiter instantiates the policy for cfg.RateLimit.Extractor. The key
// type differs per extractor: IP extractors key on netip.Addr, header based
// ones on string and the global extractor on struct{}.
func buildLimiter(ctx context.Context, cfg *models.Config, store storage.Storage, log *slog.Logger, observer ratelimit.Observer) (*limiterSetup, error) {
	rl := cfg.RateLimit

	switch rl.Extractor {
	case models.ExtractorPeerIP:
		return buildKeyed(ctx, cfg, ratelimit.PeerIPExtractor{}, allowlist.IPCodec(), store, log, observer)
	case models.ExtractorRealIP:
		prefixes, err := rl.TrustedPrefixes()
		if err != nil {
			return nil, err
		}
		ex := ratelimit.NewRealIPExtractor(prefixes...).FromHeader(rl.RealIPHeader)
		return buildKeyed(ctx, cfg, ex, allowlist.IPCodec(), store, log, observer)
	case models.ExtractorBearer:
		return buildKeyed(ctx, cfg, ratelimit.BearerTokenExtractor{}, allowlist.StringCodec(), store, log, observer)
	case models.ExtractorHeader:
		return buildKeyed(ctx, cfg, ratelimit.NewHeaderExtractor(rl.HeaderNames...), allowlist.StringCodec(), store, log, observer)
	case models.ExtractorGlobal:
		return buildPolicy(rl, ratelimit.KeyExtractor[struct{}](ratelimit.GlobalExtractor{}), log, observer)
	default:
		return nil, fmt.Errorf("unsupported extractor: %s", rl.Extractor)
	}
}

func buildKeyed[K comparable](
	ctx context.Context,
	cfg *models.Config,
	ex ratelimit.KeyExtractor[K],
	codec allowlist.KeyCodec[K],
	store storage.Storage,
	log *slog.Logger,
	observer ratelimit.Observer,
) (*limiterSetup, error) {
	var svc *allowlist.Service[K]
	if cfg.AllowList.Enabled {
		set := ratelimit.NewKeySet[K]()
		svc = allowlist.NewService(store, set, codec, logger.Component(log, "allowlist"))
		if err := svc.Seed(ctx, cfg.AllowList.Seed); err != nil {
			return nil, fmt.Errorf("seed allow-list: %w", err)
		}
		if err := svc.Load(ctx); err != nil {
			return nil, fmt.Errorf("load allow-list: %w", err)
		}
		ex = ratelimit.WithWhitelist(ex, set)
	}

	setup, err := buildPolicy(cfg.RateLimit, ex, log, observer)
	if err != nil {
		return nil, err
	}
	if svc != nil {
		interval := cfg.AllowList.ReloadInterval
		setup.allowList = svc
		setup.reload = func(ctx context.Context) { svc.Run(ctx, interval) }
	}
	return setup, nil
}

func buildPolicy[K comparable](rl models.RateLimitConfig, ex ratelimit.KeyExtractor[K], log *slog.Logger, observer ratelimit.Observer) (*limiterSetup, error) {
	b := ratelimit.NewBuilder(ex).
		BurstSize(rl.BurstSize).
		Methods(rl.Methods...).
		Permissive(rl.Permissive).
		Shards(rl.Shards).
		Logger(logger.Component(log, "ratelimit"))
	if rl.RequestsPerSecond > 0 {
		b.RequestsPerSecond(rl.RequestsPerSecond)
	} else {
		b.Period(rl.Period)
	}
	if rl.Headers {
		b.UseHeaders()
	}
	if observer != nil {
		b.Observer(observer)
	}

	policy, err := b.Build()
	if err != nil {
		return nil, err
	}

	log.Info("Rate limiter configured",
		"extractor", policy.Extractor().Name(),
		"quota", policy.Quota().String(),
		"permissive", policy.Permissive(),
		"headers", policy.HeadersEnabled(),
		"methods", policy.Methods(),
	)

	return &limiterSetup{
		middleware: ratelimit.Middleware(policy),
		limiter:    policy.Limiter(),
	}, nil
}

// allowListOrNil returns the admin view of the allow-list. The explicit nil
// keeps a typed nil out of the interface.
func (s *limiterSetup) allowListOrNil() allowlist.ServiceInterface {
	if s == nil || s.allowList == nil {
		return nil
	}
	return s.allowList
}
