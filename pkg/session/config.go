package session

import "time"

// Config holds session manager settings.
type Config struct {
	// TTL is the session lifetime.
	TTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// HeartbeatInterval is how often active sessions revalidate against the
	// backend.
	HeartbeatInterval time.Duration `env:"SESSION_HEARTBEAT_INTERVAL" envDefault:"5m"`

	// ActivityUpdateThreshold limits how often activity writes hit the store.
	ActivityUpdateThreshold time.Duration `env:"SESSION_ACTIVITY_THRESHOLD" envDefault:"1m"`

	// CleanupInterval is how often expired sessions are swept from the
	// store. Zero disables the sweeper.
	CleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"10m"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		TTL:                     24 * time.Hour,
		HeartbeatInterval:       5 * time.Minute,
		ActivityUpdateThreshold: time.Minute,
		CleanupInterval:         10 * time.Minute,
	}
}
