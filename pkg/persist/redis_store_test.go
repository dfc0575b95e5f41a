package persist

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStatusCmd struct{ err error }

func (c fakeStatusCmd) Err() error { return c.err }

type fakeStringCmd struct {
	data []byte
	err  error
}

func (c fakeStringCmd) Bytes() ([]byte, error) { return c.data, c.err }
func (c fakeStringCmd) Err() error             { return c.err }

type fakeIntCmd struct{ err error }

func (c fakeIntCmd) Err() error { return c.err }

type fakeRedisClient struct {
	data    map[string][]byte
	lastTTL time.Duration
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{data: map[string][]byte{}}
}

func (f *fakeRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) RedisStatusCmd {
	f.lastTTL = expiration
	f.data[key] = append([]byte(nil), value.([]byte)...)
	return fakeStatusCmd{}
}

func (f *fakeRedisClient) Get(ctx context.Context, key string) RedisStringCmd {
	data, ok := f.data[key]
	if !ok {
		return fakeStringCmd{err: errors.New("redis: nil")}
	}
	return fakeStringCmd{data: data}
}

func (f *fakeRedisClient) Del(ctx context.Context, keys ...string) RedisIntCmd {
	for _, key := range keys {
		delete(f.data, key)
	}
	return fakeIntCmd{}
}

func TestRedisStoreSaveLoad(t *testing.T) {
	client := newFakeRedisClient()
	store := NewRedisStore(client)
	ctx := context.Background()

	if err := store.Save(ctx, testSnapshot("one")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if client.lastTTL != 0 {
		t.Errorf("snapshot TTL = %v, want 0 (no expiration)", client.lastTTL)
	}
	if _, ok := client.data["optimist:snapshot"]; !ok {
		t.Fatal("expected snapshot under default key")
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(got.Entries["idea:title"]) != `"one"` {
		t.Errorf("Load() entry = %s, want %q", got.Entries["idea:title"], `"one"`)
	}
}

func TestRedisStoreMissingKey(t *testing.T) {
	store := NewRedisStore(newFakeRedisClient())

	_, err := store.Load(context.Background())
	if !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Load() error = %v, want ErrNoSnapshot", err)
	}
}

func TestRedisStoreCustomKey(t *testing.T) {
	client := newFakeRedisClient()
	store := NewRedisStore(client, WithRedisKey("launcher:snap"))

	if got := store.Key(); got != "launcher:snap" {
		t.Fatalf("Key() = %q, want %q", got, "launcher:snap")
	}

	if err := store.Save(context.Background(), testSnapshot("one")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, ok := client.data["launcher:snap"]; !ok {
		t.Error("expected snapshot under custom key")
	}
}

func TestRedisStoreClosed(t *testing.T) {
	store := NewRedisStore(newFakeRedisClient())
	_ = store.Close()

	if err := store.Save(context.Background(), testSnapshot("x")); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Save() after close error = %v, want ErrStoreClosed", err)
	}
	if _, err := store.Load(context.Background()); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Load() after close error = %v, want ErrStoreClosed", err)
	}
}
