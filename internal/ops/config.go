package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"main/pkg/wsconn"
	"main/pkg/wsrpc"
)

// FileConfig mirrors the JSON config layout. Durations are milliseconds.
type FileConfig struct {
	Endpoint string `json:"endpoint"`

	PingIntervalMs int  `json:"pingIntervalMs"`
	PongTimeoutMs  int  `json:"pongTimeoutMs"`
	StrictPong     bool `json:"strictPong"`

	ReconnectBaseMs      int     `json:"reconnectBaseMs"`
	ReconnectMultiplier  float64 `json:"reconnectMultiplier"`
	ReconnectMaxMs       int     `json:"reconnectMaxMs"`
	MaxReconnectAttempts int     `json:"maxReconnectAttempts"`

	OpenTimeoutMs  int `json:"openTimeoutMs"`
	BufferCapacity int `json:"bufferCapacity"`

	RequestTimeoutMs int `json:"requestTimeoutMs"`
	StalenessMs      int `json:"stalenessMs"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Endpoint   string
	Connection wsconn.Config
	RPC        wsrpc.Config
}

// Load reads a JSON config file and resolves defaults.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Resolve validates a FileConfig and builds the layer configurations.
func Resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Endpoint == "" {
		return Loaded{}, fmt.Errorf("endpoint is empty")
	}
	if cfg.MaxReconnectAttempts < 0 {
		return Loaded{}, fmt.Errorf("maxReconnectAttempts must be >= 0")
	}
	if cfg.ReconnectMultiplier < 0 {
		return Loaded{}, fmt.Errorf("reconnectMultiplier must be >= 0")
	}

	conn := wsconn.Config{
		PingInterval:         ms(cfg.PingIntervalMs),
		PongTimeout:          ms(cfg.PongTimeoutMs),
		StrictPong:           cfg.StrictPong,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		OpenTimeout:          ms(cfg.OpenTimeoutMs),
		BufferCapacity:       cfg.BufferCapacity,
	}
	if cfg.ReconnectBaseMs > 0 || cfg.ReconnectMaxMs > 0 || cfg.ReconnectMultiplier > 0 {
		backoff := wsconn.DefaultBackoff()
		if cfg.ReconnectBaseMs > 0 {
			backoff.Base = ms(cfg.ReconnectBaseMs)
		}
		if cfg.ReconnectMaxMs > 0 {
			backoff.Max = ms(cfg.ReconnectMaxMs)
		}
		if cfg.ReconnectMultiplier > 0 {
			backoff.Multiplier = cfg.ReconnectMultiplier
		}
		if backoff.Max < backoff.Base {
			return Loaded{}, fmt.Errorf("reconnectMaxMs must be >= reconnectBaseMs")
		}
		conn.Backoff = backoff
	}

	rpc := wsrpc.Config{
		RequestTimeout: ms(cfg.RequestTimeoutMs),
		Staleness:      ms(cfg.StalenessMs),
	}

	return Loaded{
		Endpoint:   cfg.Endpoint,
		Connection: conn,
		RPC:        rpc,
	}, nil
}

func ms(v int) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v) * time.Millisecond
}
