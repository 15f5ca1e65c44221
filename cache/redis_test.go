package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dnldd/screener/shared"
	goredis "github.com/go-redis/redis/v8"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
)

// fakeRedis records the commands issued by the mirror.
type fakeRedis struct {
	mtx       sync.Mutex
	values    map[string][]byte
	published map[string][]string
	setErr    error
	closed    bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values:    make(map[string][]byte),
		published: make(map[string][]string),
	}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	if f.setErr != nil {
		return goredis.NewStatusResult("", f.setErr)
	}

	f.values[key] = value.([]byte)
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	f.published[channel] = append(f.published[channel], message.(string))
	return goredis.NewIntResult(1, nil)
}

func (f *fakeRedis) Close() error {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	f.closed = true
	return nil
}

func testSnapshot(passID string) *shared.Snapshot {
	inst := shared.Instrument{ID: "EURUSD", Symbol: "EUR/USD", Type: shared.FXMajor, Price: 1.0855}
	inst.EnsureTimeframes()

	snap := shared.NewSeedSnapshot([]shared.Instrument{inst})
	snap.Loading = false
	snap.PassID = passID

	return snap
}

func TestMirrorConfigValidate(t *testing.T) {
	logger := zerolog.Nop()

	cfg := &MirrorConfig{Addr: "localhost:6379", Prefix: "screener", Logger: &logger}
	assert.NoError(t, cfg.Validate())

	cfg = &MirrorConfig{DB: -1}
	err := cfg.Validate()
	assert.Error(t, err)
	for _, want := range []string{"redis address cannot be an empty string", "redis prefix cannot be an empty string",
		"redis db cannot be negative", "logger cannot be nil"} {
		assert.True(t, strings.Contains(err.Error(), want))
	}
}

func TestMirrorWrite(t *testing.T) {
	logger := zerolog.Nop()
	client := newFakeRedis()
	mirror := newMirror(&MirrorConfig{Addr: "localhost:6379", Prefix: "screener", Logger: &logger}, client)

	assert.Equal(t, mirror.SnapshotKey(), "screener:snapshot")
	assert.Equal(t, mirror.UpdatesChannel(), "screener:updates")

	// Ensure a snapshot is stored and announced.
	err := mirror.write(context.Background(), testSnapshot("pass-1"))
	assert.NoError(t, err)
	assert.Equal(t, client.published["screener:updates"], []string{"pass-1"})

	var decoded map[string]any
	err = json.Unmarshal(client.values["screener:snapshot"], &decoded)
	assert.NoError(t, err)
	assert.Equal(t, decoded["passId"], "pass-1")
	assert.Equal(t, decoded["loading"], false)

	instruments := decoded["instruments"].([]any)
	assert.Equal(t, len(instruments), 1)
	rsi := instruments[0].(map[string]any)["rsi"].(map[string]any)
	_, ok := rsi["1h"]
	assert.True(t, ok)

	// Ensure storage failures are not announced.
	client.setErr = errors.New("connection refused")
	err = mirror.write(context.Background(), testSnapshot("pass-2"))
	assert.Error(t, err)
	assert.Equal(t, len(client.published["screener:updates"]), 1)
}

func TestMirrorRun(t *testing.T) {
	logger := zerolog.Nop()
	client := newFakeRedis()
	mirror := newMirror(&MirrorConfig{Addr: "localhost:6379", Prefix: "screener", Logger: &logger}, client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mirror.Run(ctx)
		close(done)
	}()

	mirror.SendSnapshot(testSnapshot("pass-1"))
	mirror.SendSnapshot(testSnapshot("pass-2"))

	// Ensure relayed snapshots are mirrored in order.
	deadline := time.After(5 * time.Second)
	for {
		client.mtx.Lock()
		n := len(client.published["screener:updates"])
		client.mtx.Unlock()
		if n == 2 {
			break
		}

		select {
		case <-deadline:
			t.Fatalf("expected 2 mirrored snapshots, got %d", n)
		case <-time.After(5 * time.Millisecond):
		}
	}

	client.mtx.Lock()
	assert.Equal(t, client.published["screener:updates"], []string{"pass-1", "pass-2"})
	client.mtx.Unlock()

	// Ensure the client is closed on shutdown.
	cancel()
	<-done
	assert.True(t, client.closed)

	// Ensure sends do not block once the buffer is full.
	for range bufferSize + 2 {
		mirror.SendSnapshot(testSnapshot("pass-n"))
	}
	assert.Equal(t, len(mirror.snapshots), bufferSize)
}
