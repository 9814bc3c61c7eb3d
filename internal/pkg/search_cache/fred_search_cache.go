package search_cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	fredClient "lightbot/internal/pkg/fredclient"
)

const (
	defaultFredKeygroup    = "lightbotsearch"
	defaultFredReadTimeout = 500 // minimum expiry passed to FReD reads
	mutable                = true
)

// fredStore is the part of the FReD client the cache relies on.
type fredStore interface {
	Read(ctx context.Context, kgname, id string, minExpiry int64) ([]string, error)
	Update(ctx context.Context, kgname, id, data string) error
}

type FReDConfig struct {
	Address string
	// Keygroup defaults to defaultFredKeygroup.
	Keygroup string
	// CreateKeygroup creates the keygroup on BootstrapNode before first use.
	CreateKeygroup bool
	BootstrapNode  string
	// TTL becomes the keygroup expiry; FReD expires whole keygroup entries.
	TTL time.Duration
	TLS fredClient.TLSFiles
}

// FReDSearchCache keeps search results in a FReD keygroup so that edge
// replicas share them.
type FReDSearchCache struct {
	store    fredStore
	keygroup string
	closer   func() error
}

func NewFReDSearchCache(ctx context.Context, cfg FReDConfig) (*FReDSearchCache, error) {
	if cfg.CreateKeygroup && cfg.BootstrapNode == "" {
		return nil, fmt.Errorf("bootstrap node is required when keygroup creation is enabled")
	}

	c, err := fredClient.NewAlexandraClient(cfg.Address, cfg.TLS)
	if err != nil {
		return nil, err
	}

	keygroup := cfg.Keygroup
	if keygroup == "" {
		keygroup = defaultFredKeygroup
	}

	if cfg.CreateKeygroup {
		expiry := int64(cfg.TTL / time.Second)
		log.Infof("FReD: Attempting to create keygroup '%s' on node '%s' (expiry %ds)", keygroup, cfg.BootstrapNode, expiry)
		if err := c.CreateKeygroup(ctx, cfg.BootstrapNode, keygroup, mutable, expiry); err != nil {
			// usually means it already exists
			log.Warnf("FReD: Keygroup '%s' was not created: %v", keygroup, err)
		}
	}

	return &FReDSearchCache{store: c, keygroup: keygroup, closer: c.Close}, nil
}

func (f *FReDSearchCache) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer()
}

func (f *FReDSearchCache) Get(ctx context.Context, key string) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		log.Debugf("FReD: Read for key %s in keygroup %s took %s", key, f.keygroup, time.Since(startTime))
	}()

	vals, err := f.store.Read(ctx, f.keygroup, key, defaultFredReadTimeout)
	if err != nil {
		// FReD reports unknown ids as errors; a cache only cares that nothing usable came back
		log.Debugf("FReD: Read for key %s failed: %v", key, err)
		return nil, ErrNotFound
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}
	if len(vals) > 1 {
		log.Warnf("FReD: Expected 1 item for key %s, but got %d. Using the first one.", key, len(vals))
	}
	if vals[0] == "" {
		return nil, ErrNotFound
	}
	return []byte(vals[0]), nil
}

func (f *FReDSearchCache) Set(ctx context.Context, key string, value []byte) error {
	startTime := time.Now()
	defer func() {
		log.Debugf("FReD: Update for key %s in keygroup %s took %s", key, f.keygroup, time.Since(startTime))
	}()

	if err := f.store.Update(ctx, f.keygroup, key, string(value)); err != nil {
		log.Errorf("FReD: Failed to store search results for key %s: %v", key, err)
		return err
	}
	return nil
}

// Delete overwrites the entry with an empty value; the middleware has no
// delete call that works across replicas.
func (f *FReDSearchCache) Delete(ctx context.Context, key string) error {
	return f.store.Update(ctx, f.keygroup, key, "")
}

func (f *FReDSearchCache) IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
