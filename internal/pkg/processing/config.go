package processing

import (
	"time"

	"github.com/clearaudio/gateway/internal/pkg/env"
)

// DefaultMaxOutputBytes caps one downloaded output.
const DefaultMaxOutputBytes int64 = 512 << 20

// Config controls retries, the per-job deadline and the output size cap.
type Config struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	Deadline       time.Duration
	MaxOutputBytes int64
	FalBaseURL     string
	FalModelID     string
	FalKey         string
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseDelay:      2 * time.Second,
		Deadline:       300 * time.Second,
		MaxOutputBytes: DefaultMaxOutputBytes,
		FalBaseURL:     defaultFalBaseURL,
		FalModelID:     defaultFalModelID,
	}
}

// LoadConfig reads PROCESSING_* and FAL_* variables over the defaults.
func LoadConfig() Config {
	d := DefaultConfig()
	return Config{
		MaxAttempts:    env.GetEnvInt("PROCESSING_MAX_ATTEMPTS", d.MaxAttempts),
		BaseDelay:      env.GetEnvDuration("PROCESSING_BASE_DELAY", d.BaseDelay),
		Deadline:       env.GetEnvDuration("PROCESSING_DEADLINE", d.Deadline),
		MaxOutputBytes: int64(env.GetEnvInt("PROCESSING_MAX_OUTPUT_BYTES", int(d.MaxOutputBytes))),
		FalBaseURL:     env.GetEnv("FAL_BASE_URL", d.FalBaseURL),
		FalModelID:     env.GetEnv("FAL_MODEL_ID", d.FalModelID),
		FalKey:         env.GetEnv("FAL_KEY", ""),
	}
}
