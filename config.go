package vlist

import (
	"time"

	"github.com/pkg/errors"

	"git.sr.ht/~gioverse/vlist/collection"
	"git.sr.ht/~gioverse/vlist/errs"
)

// Orientation selects the primary axis the engine measures and scrolls
// along.
type Orientation int

const (
	Vertical Orientation = iota
	Horizontal
)

// Config is the full configuration surface of the engine. Every field has
// a default (see DefaultConfig); New calls Validate once at construction,
// and invalid values are fatal rather than surfacing later as a runtime
// failure.
type Config struct {
	PageSize            uint32
	EstimatedItemSize   float32
	Overscan            uint32
	MaxConcurrent       uint32
	QueueCapacity       uint32
	CancelThreshold     float32
	MeasurementCacheCap uint32
	BackoffBaseMs       uint32
	BackoffCapMs        uint32
	Orientation         Orientation
	Strategy            collection.Strategy
}

// DefaultConfig returns the engine's default configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:            20,
		EstimatedItemSize:   50,
		Overscan:            5,
		MaxConcurrent:       1,
		QueueCapacity:       50,
		CancelThreshold:     1.0,
		MeasurementCacheCap: 500,
		BackoffBaseMs:       1000,
		BackoffCapMs:        30000,
		Orientation:         Vertical,
		Strategy:            collection.Offset,
	}
}

// Validate checks that PageSize, EstimatedItemSize, MaxConcurrent,
// QueueCapacity, CancelThreshold and MeasurementCacheCap are positive,
// wrapping errs.ErrInvalidConfig with the offending field on the first
// violation. Overscan, the backoff fields, Orientation and Strategy are not
// checked.
func (c Config) Validate() error {
	switch {
	case c.PageSize == 0:
		return errors.Wrap(errs.ErrInvalidConfig, "page_size must be positive")
	case c.EstimatedItemSize <= 0:
		return errors.Wrap(errs.ErrInvalidConfig, "estimated_item_size must be positive")
	case c.MaxConcurrent == 0:
		return errors.Wrap(errs.ErrInvalidConfig, "max_concurrent must be positive")
	case c.QueueCapacity == 0:
		return errors.Wrap(errs.ErrInvalidConfig, "queue_capacity must be positive")
	case c.CancelThreshold <= 0:
		return errors.Wrap(errs.ErrInvalidConfig, "cancel_threshold must be positive")
	case c.MeasurementCacheCap == 0:
		return errors.Wrap(errs.ErrInvalidConfig, "measurement_cache_cap must be positive")
	}
	return nil
}

func (c Config) backoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

func (c Config) backoffCap() time.Duration {
	return time.Duration(c.BackoffCapMs) * time.Millisecond
}
