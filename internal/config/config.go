// Package config declares the configuration surface the core consumes.
// It intentionally does not parse os.Args, environment variables, or
// config files — that belongs to an external collaborator (a CLI wrapper
// or service bootstrapper), per the engine's out-of-scope boundary. This
// package only defines the struct shape and a Default() constructor.
package config

import "time"

// WALConfig controls write-ahead log durability and segment rotation.
type WALConfig struct {
	Dir         string
	ForceSync   bool
	MaxFileSize int64
	BufferSize  int
}

// GCConfig controls the tombstone garbage collector.
type GCConfig struct {
	Enabled    bool
	Retention  time.Duration
	Interval   time.Duration
	MaxPerRun  int
	Background bool
}

// LocksConfig controls the lock manager's deadlock detector.
type LocksConfig struct {
	DeadlockDetection bool
	DetectionInterval time.Duration
	WaitTimeout       time.Duration
}

// CacheConfig controls the hot-document LRU cache.
type CacheConfig struct {
	MaxItems int
	MaxBytes int64
	TTL      time.Duration
}

// EncryptionConfig controls at-rest encryption. Key is the raw
// passphrase; when empty, encryption is disabled. KeyID identifies the
// derivation parameters for rotation.
type EncryptionConfig struct {
	Key   string
	KeyID string
}

// NetworkConfig controls the wire-protocol listener.
type NetworkConfig struct {
	Host              string
	Port              int
	MaxConnections    int
	ReceiveBufferSize int
	SendBufferSize    int
	ConnectionTimeout time.Duration
}

// Config is the full configuration surface recognized by the core.
type Config struct {
	DataPath   string
	WAL        WALConfig
	GC         GCConfig
	Locks      LocksConfig
	Cache      CacheConfig
	Encryption EncryptionConfig
	Network    NetworkConfig
}

// Default returns a zero-value configuration with conservative,
// production-sane defaults. Callers layer file/env/flag values on top of
// this before passing a Config to the engine.
func Default() Config {
	return Config{
		DataPath: "./data",
		WAL: WALConfig{
			Dir:         "./data/wal",
			ForceSync:   true,
			MaxFileSize: 64 * 1024 * 1024,
			BufferSize:  64 * 1024,
		},
		GC: GCConfig{
			Enabled:    true,
			Retention:  24 * time.Hour,
			Interval:   10 * time.Minute,
			MaxPerRun:  1000,
			Background: true,
		},
		Locks: LocksConfig{
			DeadlockDetection: true,
			DetectionInterval: 500 * time.Millisecond,
			WaitTimeout:       5 * time.Second,
		},
		Cache: CacheConfig{
			MaxItems: 10_000,
			MaxBytes: 256 * 1024 * 1024,
			TTL:      0, // 0 disables TTL expiry; LRU eviction still applies
		},
		Encryption: EncryptionConfig{},
		Network: NetworkConfig{
			Host:              "127.0.0.1",
			Port:              6943,
			MaxConnections:    256,
			ReceiveBufferSize: 64 * 1024,
			SendBufferSize:    64 * 1024,
			ConnectionTimeout: 30 * time.Second,
		},
	}
}
