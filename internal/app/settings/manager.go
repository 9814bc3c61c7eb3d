package settings

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"lightbot/internal/pkg/llm_client"
)

// ErrNoSettings is returned by a Source that has nothing stored yet.
var ErrNoSettings = errors.New("no settings stored")

// Source is the authoritative store for EngineSettings.
type Source interface {
	Load() (EngineSettings, error)
	Save(EngineSettings) error
}

// Factory builds a model client for one endpoint.
type Factory func(ModelConfig) (llm_client.LLM, error)

// NewClientFactory returns a Factory producing openai-compatible clients.
func NewClientFactory(timeout time.Duration, maxRetries int) Factory {
	return func(mc ModelConfig) (llm_client.LLM, error) {
		c, err := llm_client.New(llm_client.Config{
			Name:       mc.Name,
			Model:      mc.ModelID(),
			BaseURL:    mc.BaseURL,
			APIKey:     mc.APIKey,
			Timeout:    timeout,
			MaxRetries: maxRetries,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Manager owns the live settings and the model clients derived from them.
// Model clients are rebuilt only when the selected endpoints change.
type Manager struct {
	// syncMu orders reload, apply, notify and save across Get and Update.
	syncMu   sync.Mutex
	mu       sync.RWMutex
	source   Source
	factory  Factory
	current  EngineSettings
	primary  llm_client.LLM
	fast     llm_client.LLM
	onSearch []func(provider, baseURL string)
}

// NewManager loads the initial settings from source. An empty source
// starts from Defaults.
func NewManager(source Source, factory Factory) (*Manager, error) {
	startTime := time.Now()
	defer func() {
		log.Debugf("NewManager took %v", time.Since(startTime))
	}()

	s, err := source.Load()
	if errors.Is(err, ErrNoSettings) {
		log.Infof("No stored settings found, starting from defaults")
		s = Defaults()
	} else if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	s.normalize()

	m := &Manager{source: source, factory: factory, current: s}
	m.reinitLocked()
	return m, nil
}

// OnSearchChange registers fn to run whenever the search provider or URL
// changes. fn runs outside the manager's lock.
func (m *Manager) OnSearchChange(fn func(provider, baseURL string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSearch = append(m.onSearch, fn)
}

// Current returns the in-memory settings without consulting the source.
func (m *Manager) Current() EngineSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.clone()
}

// Get re-reads the source so external edits are observed. A source that
// cannot be read leaves the in-memory settings in place.
func (m *Manager) Get() EngineSettings {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	loaded, ok := m.reload()
	if !ok {
		return m.Current()
	}

	m.mu.Lock()
	listeners := m.applyLocked(loaded)
	out := m.current.clone()
	m.mu.Unlock()

	notify(listeners, out)
	return out
}

// reload reads the source. ok is false when there is nothing usable.
func (m *Manager) reload() (EngineSettings, bool) {
	loaded, err := m.source.Load()
	if err != nil {
		if !errors.Is(err, ErrNoSettings) {
			log.Warnf("Failed to reload settings, using in-memory copy: %v", err)
		}
		return EngineSettings{}, false
	}
	loaded.normalize()
	return loaded, true
}

// Update applies the non-nil fields of u and persists the result. Index
// fields outside the bounds of their list are ignored. The source is
// re-read first so edits made behind the manager's back are merged, not
// overwritten. The new settings stay applied in memory even when persisting
// fails.
func (m *Manager) Update(u Update) error {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	loaded, reloaded := m.reload()

	m.mu.Lock()
	var listeners []func(string, string)
	if reloaded {
		listeners = m.applyLocked(loaded)
	}
	next := m.current.clone()

	if u.Models != nil {
		next.Models = restoreKeys(*u.Models, m.current.Models)
	}
	if u.FastModels != nil {
		next.FastModels = restoreKeys(*u.FastModels, m.current.FastModels)
	}
	if u.ModelIndex != nil {
		if idx := *u.ModelIndex; idx >= 0 && idx < len(next.Models) {
			next.ModelIndex = idx
		} else {
			log.Warnf("Ignoring model index %d, %d models configured", idx, len(next.Models))
		}
	}
	if u.FastModelIndex != nil {
		if idx := *u.FastModelIndex; idx >= 0 && idx < len(next.FastModels) {
			next.FastModelIndex = idx
		} else {
			log.Warnf("Ignoring fast model index %d, %d fast models configured", idx, len(next.FastModels))
		}
	}
	if u.SystemPrompt != nil {
		next.SystemPrompt = *u.SystemPrompt
	}
	if u.SearchProvider != nil {
		next.SearchProvider = *u.SearchProvider
	}
	if u.SearchURL != nil {
		next.SearchURL = *u.SearchURL
	}
	if u.Hotkey != nil {
		next.Hotkey = *u.Hotkey
	}
	next.normalize()

	if l := m.applyLocked(next); l != nil {
		listeners = l
	}
	saved := m.current.clone()
	m.mu.Unlock()

	notify(listeners, saved)

	if err := m.source.Save(saved); err != nil {
		log.Errorf("Failed to persist settings: %v", err)
		return fmt.Errorf("persist settings: %w", err)
	}
	return nil
}

// applyLocked swaps in next, rebuilding clients if the selected endpoints
// changed. It returns the listeners to notify when search settings changed.
func (m *Manager) applyLocked(next EngineSettings) []func(string, string) {
	prev := m.current
	m.current = next

	if modelsChanged(prev, next) {
		log.Infof("Model configuration changed, reinitializing clients")
		m.reinitLocked()
	}
	if prev.SearchProvider != next.SearchProvider || prev.SearchURL != next.SearchURL {
		return append([]func(string, string){}, m.onSearch...)
	}
	return nil
}

func notify(listeners []func(string, string), s EngineSettings) {
	for _, fn := range listeners {
		fn(s.SearchProvider, s.SearchURL)
	}
}

func modelsChanged(prev, next EngineSettings) bool {
	pp, pok := prev.Primary()
	np, nok := next.Primary()
	if pok != nok || pp != np {
		return true
	}
	pf, _ := prev.Fast()
	nf, _ := next.Fast()
	return pf != nf
}

// reinitLocked rebuilds both clients. Any failure leaves both nil so
// callers see the model as unavailable.
func (m *Manager) reinitLocked() {
	m.primary, m.fast = nil, nil
	if m.factory == nil {
		return
	}

	primaryCfg, ok := m.current.Primary()
	if !ok {
		log.Warnf("No model configured, model calls disabled")
		return
	}
	primary, err := m.factory(primaryCfg)
	if err != nil {
		log.Errorf("Failed to initialize primary model '%s': %v", primaryCfg.Name, err)
		return
	}

	fastCfg, _ := m.current.Fast()
	fast, err := m.factory(fastCfg)
	if err != nil {
		log.Errorf("Failed to initialize fast model '%s': %v", fastCfg.Name, err)
		return
	}

	m.primary, m.fast = primary, fast
	log.Infof("Using model '%s' (fast: '%s')", primaryCfg.Name, fastCfg.Name)
}

// Clients returns the current primary and fast model clients. Both are nil
// when no usable model is configured.
func (m *Manager) Clients() (primary, fast llm_client.LLM) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.primary, m.fast
}

func (m *Manager) ModelAvailable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.primary != nil
}
