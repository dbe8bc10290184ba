package config

import (
	"fmt"
	"time"
)

const (
	defaultBackoffInitialInterval = 5 * time.Second
	defaultBackoffMultiplier      = 2.0
	defaultBackoffMaxInterval     = 2 * time.Minute
	defaultBackoffMaxElapsed      = 5 * time.Minute
	defaultConfirmationTimeout    = 60 * time.Second
	defaultReceiptPollInterval    = 2 * time.Second
)

// DeliveryConfig bounds a single reveal delivery.
type DeliveryConfig struct {
	BackoffInitialInterval time.Duration `long:"backoffinitialinterval" description:"The delay before the first retry of a failed delivery attempt"`
	BackoffMultiplier      float64       `long:"backoffmultiplier" description:"The factor applied to the retry delay after each failed attempt"`
	BackoffMaxInterval     time.Duration `long:"backoffmaxinterval" description:"The maximum delay between two delivery attempts"`
	BackoffMaxElapsed      time.Duration `long:"backoffmaxelapsed" description:"The total time after which a delivery is given up"`
	ConfirmationTimeout    time.Duration `long:"confirmationtimeout" description:"How long a single attempt waits for its transaction to be mined"`
	ReceiptPollInterval    time.Duration `long:"receiptpollinterval" description:"The interval between receipt queries while waiting for confirmation"`
}

func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		BackoffInitialInterval: defaultBackoffInitialInterval,
		BackoffMultiplier:      defaultBackoffMultiplier,
		BackoffMaxInterval:     defaultBackoffMaxInterval,
		BackoffMaxElapsed:      defaultBackoffMaxElapsed,
		ConfirmationTimeout:    defaultConfirmationTimeout,
		ReceiptPollInterval:    defaultReceiptPollInterval,
	}
}

func (c *DeliveryConfig) Validate() error {
	if c.BackoffInitialInterval <= 0 {
		return fmt.Errorf("backoff initial interval must be positive, got %v", c.BackoffInitialInterval)
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff multiplier must be at least 1, got %v", c.BackoffMultiplier)
	}
	if c.BackoffMaxInterval < c.BackoffInitialInterval {
		return fmt.Errorf("backoff max interval %v is below the initial interval %v",
			c.BackoffMaxInterval, c.BackoffInitialInterval)
	}
	if c.BackoffMaxElapsed <= 0 {
		return fmt.Errorf("backoff max elapsed must be positive, got %v", c.BackoffMaxElapsed)
	}
	if c.ConfirmationTimeout <= 0 {
		return fmt.Errorf("confirmation timeout must be positive, got %v", c.ConfirmationTimeout)
	}
	if c.ReceiptPollInterval <= 0 || c.ReceiptPollInterval > c.ConfirmationTimeout {
		return fmt.Errorf("receipt poll interval must be positive and not exceed the confirmation timeout, got %v",
			c.ReceiptPollInterval)
	}

	return nil
}
