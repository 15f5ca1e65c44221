package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dnldd/screener/shared"
	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 8
	// pingTimeout is the timeout for the initial connectivity check.
	pingTimeout = time.Second * 5
	// writeTimeout is the timeout for mirroring a single snapshot.
	writeTimeout = time.Second * 5
)

// redisClient defines the redis commands used by the mirror.
type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
	Close() error
}

// MirrorConfig represents the configuration of the snapshot mirror.
type MirrorConfig struct {
	// Addr represents the redis address.
	Addr string
	// Password represents the redis password.
	Password string
	// DB represents the redis database.
	DB int
	// Prefix represents the key and channel prefix.
	Prefix string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *MirrorConfig) Validate() error {
	var errs error

	if cfg.Addr == "" {
		errs = errors.Join(errs, fmt.Errorf("redis address cannot be an empty string"))
	}
	if cfg.Prefix == "" {
		errs = errors.Join(errs, fmt.Errorf("redis prefix cannot be an empty string"))
	}
	if cfg.DB < 0 {
		errs = errors.Join(errs, fmt.Errorf("redis db cannot be negative"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Mirror mirrors published snapshots to redis and announces them on a pubsub channel.
type Mirror struct {
	cfg       *MirrorConfig
	client    redisClient
	snapshots chan *shared.Snapshot
}

// NewMirror initializes the snapshot mirror and checks redis connectivity.
func NewMirror(ctx context.Context, cfg *MirrorConfig) (*Mirror, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating mirror config: %w", err)
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	err = client.Ping(pingCtx).Err()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr, err)
	}

	return newMirror(cfg, client), nil
}

// newMirror initializes a mirror over the provided client.
func newMirror(cfg *MirrorConfig, client redisClient) *Mirror {
	return &Mirror{
		cfg:       cfg,
		client:    client,
		snapshots: make(chan *shared.Snapshot, bufferSize),
	}
}

// SnapshotKey returns the key the latest snapshot is stored under.
func (m *Mirror) SnapshotKey() string {
	return m.cfg.Prefix + ":snapshot"
}

// UpdatesChannel returns the channel snapshot updates are announced on.
func (m *Mirror) UpdatesChannel() string {
	return m.cfg.Prefix + ":updates"
}

// SendSnapshot relays the provided snapshot for mirroring.
func (m *Mirror) SendSnapshot(snap *shared.Snapshot) {
	select {
	case m.snapshots <- snap:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("mirror snapshot channel at capacity: %d/%d",
			len(m.snapshots), bufferSize)
	}
}

// write stores the provided snapshot and announces it.
func (m *Mirror) write(ctx context.Context, snap *shared.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err = m.client.Set(writeCtx, m.SnapshotKey(), data, 0).Err()
	if err != nil {
		return fmt.Errorf("storing snapshot: %w", err)
	}

	err = m.client.Publish(writeCtx, m.UpdatesChannel(), snap.PassID).Err()
	if err != nil {
		return fmt.Errorf("announcing snapshot: %w", err)
	}

	return nil
}

// Run manages the lifecycle processes of the snapshot mirror.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			err := m.client.Close()
			if err != nil {
				m.cfg.Logger.Error().Msgf("closing redis client: %v", err)
			}
			return
		case snap := <-m.snapshots:
			err := m.write(ctx, snap)
			if err != nil {
				m.cfg.Logger.Error().Msgf("mirroring snapshot %s: %v", snap.PassID, err)
				continue
			}
			m.cfg.Logger.Debug().Msgf("mirrored snapshot %s", snap.PassID)
		}
	}
}
