package node

import (
	"fmt"
	"math"
	"time"

	"avaneesh/lorawan-node/pkg/events"
	"avaneesh/lorawan-node/pkg/internal/logger"
	"avaneesh/lorawan-node/pkg/lorawan"
)

const (
	// DefaultRetryDelay is the fixed wait before re-submitting a send the stack
	// refused with StatusWouldBlock.
	DefaultRetryDelay = 3 * time.Second

	// DefaultConfirmedRetries is how often the stack repeats a confirmed uplink
	DefaultConfirmedRetries uint8 = 3

	// DefaultTxErrorRetries bounds the automatic resend after a failed transmission
	DefaultTxErrorRetries = 3
)

// TxRetryPolicy controls the resend that follows a transmission error event
// (timeout, generic, crypto or scheduling error).
type TxRetryPolicy struct {
	// MaxRetries is the number of resends per transmission; 0 disables them
	MaxRetries int

	// Backoff is the delay before the first resend
	Backoff time.Duration

	// Multiplier scales Backoff for each further resend; 1 keeps it fixed
	Multiplier float64
}

// Delay returns the wait before resend number attempt (starting at 1)
func (p TxRetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 || p.Multiplier <= 1 {
		return p.Backoff
	}
	d := float64(p.Backoff) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Config configures a node
type Config struct {
	// Credentials used for the OTAA join
	Keys lorawan.Keys

	// Radio wiring, informational for stacks driving a local radio
	Pinmap lorawan.Pinmap

	// Block in New until the stack reports Connected
	WaitUntilConnected bool

	// Retries the stack performs for confirmed uplinks
	ConfirmedRetries uint8

	// Enable adaptive data rate during initialization
	AdaptiveDataRate bool

	// Fail New when any initialization step fails instead of logging and continuing
	StrictInit bool

	// Wait before re-submitting a send refused with StatusWouldBlock
	RetryDelay time.Duration

	// Resend policy after transmission error events
	TxRetry TxRetryPolicy

	// Maximum number of pending dispatcher items
	QueueCapacity int

	// Join attempts per Connect
	NbTrials uint8

	// Handlers registered before the stack can raise any event
	Callbacks Callbacks

	// Logger, defaults to the package default logger
	Logger logger.Logger
}

// DefaultConfig returns the reference behaviour for the given credentials
func DefaultConfig(keys lorawan.Keys) Config {
	return Config{
		Keys:               keys,
		Pinmap:             lorawan.DefaultPinmap(),
		WaitUntilConnected: true,
		ConfirmedRetries:   DefaultConfirmedRetries,
		AdaptiveDataRate:   true,
		RetryDelay:         DefaultRetryDelay,
		TxRetry: TxRetryPolicy{
			MaxRetries: DefaultTxErrorRetries,
			Backoff:    DefaultRetryDelay,
			Multiplier: 1,
		},
		QueueCapacity: events.DefaultCapacity,
		NbTrials:      lorawan.DefaultNbTrials,
	}
}

// Validate checks the configuration for values the node cannot work with
func (c Config) Validate() error {
	if c.RetryDelay <= 0 {
		return fmt.Errorf("retry delay must be positive, got %s", c.RetryDelay)
	}
	if c.TxRetry.MaxRetries < 0 {
		return fmt.Errorf("tx retry count must not be negative, got %d", c.TxRetry.MaxRetries)
	}
	if c.TxRetry.MaxRetries > 0 {
		if c.TxRetry.Backoff <= 0 {
			return fmt.Errorf("tx retry backoff must be positive, got %s", c.TxRetry.Backoff)
		}
		if c.TxRetry.Multiplier < 1 {
			return fmt.Errorf("tx retry multiplier must be >= 1, got %g", c.TxRetry.Multiplier)
		}
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("queue capacity must not be negative, got %d", c.QueueCapacity)
	}
	return nil
}
