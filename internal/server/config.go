package server

// Config holds server configuration.
type Config struct {
	Port           int
	LayoutPath     string   // layout file loaded at startup
	JournalPath    string   // SQLite journal for failures, empty to disable
	AllowedOrigins []string // CORS and WebSocket origins (empty = allow all)
	MaxMessageSize int64    // largest accepted frame or request body, in bytes
	MaxMessageRate int      // frames per second per session (0 = unlimited)
	MaxCapacity    int64    // largest sink capacity a request may ask for (0 = unbounded)
}

// DefaultConfig returns the configuration used when fields are left unset.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		MaxMessageSize: 64 << 10,
		MaxMessageRate: 100,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	return c
}
