package search_cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeFredStore struct {
	data    map[string]string
	readErr error
}

func (f *fakeFredStore) Read(_ context.Context, kgname, id string, _ int64) ([]string, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	v, ok := f.data[kgname+"/"+id]
	if !ok {
		return nil, fmt.Errorf("no such id %s", id)
	}
	return []string{v}, nil
}

func (f *fakeFredStore) Update(_ context.Context, kgname, id, data string) error {
	f.data[kgname+"/"+id] = data
	return nil
}

func TestFReDSearchCacheRoundTrip(t *testing.T) {
	store := &fakeFredStore{data: map[string]string{}}
	c := &FReDSearchCache{store: store, keygroup: defaultFredKeygroup}
	ctx := context.Background()

	if _, err := c.Get(ctx, "k1"); !c.IsNotFoundError(err) {
		t.Fatalf("expected miss before set, got %v", err)
	}
	if err := c.Set(ctx, "k1", []byte(`[{"title":"a"}]`)); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `[{"title":"a"}]` {
		t.Errorf("unexpected value %s", got)
	}

	if err := c.Delete(ctx, "k1"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "k1"); !c.IsNotFoundError(err) {
		t.Errorf("expected miss after delete, got %v", err)
	}
}

func TestFReDSearchCacheReadErrorIsMiss(t *testing.T) {
	c := &FReDSearchCache{store: &fakeFredStore{readErr: errors.New("unavailable")}, keygroup: "kg"}
	if _, err := c.Get(context.Background(), "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNewFReDSearchCacheRequiresBootstrapNode(t *testing.T) {
	_, err := NewFReDSearchCache(context.Background(), FReDConfig{Address: "localhost:9000", CreateKeygroup: true})
	if err == nil {
		t.Fatal("expected error without bootstrap node")
	}
}

func TestRedisIsNotFoundError(t *testing.T) {
	c := NewRedisSearchCache("127.0.0.1:0", "", 0, time.Minute)
	defer c.Close()

	if !c.IsNotFoundError(ErrNotFound) {
		t.Error("ErrNotFound should be a miss")
	}
	if !c.IsNotFoundError(fmt.Errorf("wrapped: %w", ErrNotFound)) {
		t.Error("wrapped ErrNotFound should be a miss")
	}
	if c.IsNotFoundError(errors.New("connection refused")) {
		t.Error("backend failure should not be a miss")
	}
}
