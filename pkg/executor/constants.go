package executor

import "time"

const (
	DefaultMaxAttempts    = 3
	DefaultBaseDelay      = 300 * time.Second
	DefaultMultiplier     = 2.0
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	MaxResponseBytes      = 10 * 1024 * 1024
	MaxAttemptsLimit      = 1000
)
