package main

import (
	"context"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"lightbot/internal/app/config"
	"lightbot/internal/app/orchestrator"
	"lightbot/internal/app/session_manager"
	"lightbot/internal/app/settings"
	fredClient "lightbot/internal/pkg/fredclient"
	"lightbot/internal/pkg/query_rewrite"
	"lightbot/internal/pkg/search"
	"lightbot/internal/pkg/search_cache"
	"lightbot/internal/pkg/settings_store"
)

// app holds everything built from the config.
type app struct {
	engine   *orchestrator.Engine
	settings *settings.Manager
	closers  []func() error
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.Warnf("Error during shutdown: %v", err)
		}
	}
}

func newSettingsSource(sc config.SettingsStoreConfig) (settings.Source, error) {
	switch sc.Driver {
	case config.StoreSQLite:
		return settings_store.NewSQLiteSource(sc.Path)
	default:
		return settings_store.NewYAMLSource(sc.Path), nil
	}
}

// newSearchCache returns nil when caching is off. A redis that does not
// answer is only warned about; the cache then misses until it comes up.
func newSearchCache(ctx context.Context, cc config.CacheConfig) (search_cache.SearchCache, func() error, error) {
	switch cc.Backend {
	case config.CacheRedis:
		rc := search_cache.NewRedisSearchCache(cc.Redis.Addr, cc.Redis.Password, cc.Redis.DB, cc.TTL)
		if err := rc.Ping(ctx); err != nil {
			log.Warnf("Redis at %s is not reachable: %v", cc.Redis.Addr, err)
		}
		log.Infof("Caching search results in redis at %s (ttl %s)", cc.Redis.Addr, cc.TTL)
		return rc, rc.Close, nil
	case config.CacheFReD:
		fc, err := search_cache.NewFReDSearchCache(ctx, search_cache.FReDConfig{
			Address:        cc.FReD.Address,
			Keygroup:       cc.FReD.Keygroup,
			CreateKeygroup: cc.FReD.CreateKeygroup,
			BootstrapNode:  cc.FReD.BootstrapNode,
			TTL:            cc.TTL,
			TLS: fredClient.TLSFiles{
				CertFile: cc.FReD.CertFile,
				KeyFile:  cc.FReD.KeyFile,
				CAFile:   cc.FReD.CAFile,
			},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("fred cache: %w", err)
		}
		log.Infof("Caching search results in FReD at %s", cc.FReD.Address)
		return fc, fc.Close, nil
	default:
		return nil, nil, nil
	}
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	source, err := newSettingsSource(cfg.SettingsStore)
	if err != nil {
		return nil, fmt.Errorf("settings store: %w", err)
	}
	log.Infof("Using %s settings store at %s", cfg.SettingsStore.Driver, cfg.SettingsStore.Path)

	mgr, err := settings.NewManager(source, settings.NewClientFactory(cfg.Model.Timeout, cfg.Model.MaxRetries))
	if err != nil {
		return nil, err
	}
	a.settings = mgr

	httpClient := &http.Client{Timeout: cfg.Search.Timeout}
	opts := []search.Option{
		search.WithHTTPClient(httpClient),
		search.WithKeywordEngine(search.NewDuckDuckGo(httpClient, cfg.Search.DuckDuckGoURL)),
	}
	cache, closeCache, err := newSearchCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		opts = append(opts, search.WithCache(cache))
		a.closers = append(a.closers, closeCache)
	}

	current := mgr.Current()
	tool := search.NewTool(current.SearchProvider, current.SearchURL, opts...)

	a.engine = orchestrator.New(
		session_manager.NewMemorySessionManager(cfg.Memory.MaxTurns),
		mgr,
		query_rewrite.New(current.SearchProvider),
		tool,
		orchestrator.WithMaxResults(cfg.Search.MaxResults),
	)
	if !mgr.ModelAvailable() {
		log.Warnf("No model configured yet; add one through POST /settings or %s", cfg.SettingsStore.Path)
	}
	return a, nil
}
