// Package worker applies queued community feedback submissions.
package worker

import (
	"time"
)

// ConsumerConfig holds configuration for the feedback consumer.
type ConsumerConfig struct {
	// ProjectID is the Google Cloud project of the subscription.
	ProjectID string

	// Subscription is the Pub/Sub subscription carrying submissions.
	// Default: "feedback-submissions"
	Subscription string

	// MaxOutstanding bounds messages being processed at once.
	// Default: 10
	MaxOutstanding int

	// MaxExtension is how long a message lease may be extended.
	// Default: 10 minutes
	MaxExtension time.Duration

	// Timeout bounds the handling of a single message.
	// Default: 30 seconds
	Timeout time.Duration

	// Concurrency is the number of workers used by Replay.
	// Default: 4
	Concurrency int
}

// DefaultConsumerConfig returns the default consumer configuration.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Subscription:   "feedback-submissions",
		MaxOutstanding: 10,
		MaxExtension:   10 * time.Minute,
		Timeout:        30 * time.Second,
		Concurrency:    4,
	}
}

// withDefaults fills unset fields from DefaultConsumerConfig.
func (c ConsumerConfig) withDefaults() ConsumerConfig {
	d := DefaultConsumerConfig()
	if c.Subscription == "" {
		c.Subscription = d.Subscription
	}
	if c.MaxOutstanding <= 0 {
		c.MaxOutstanding = d.MaxOutstanding
	}
	if c.MaxExtension <= 0 {
		c.MaxExtension = d.MaxExtension
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	return c
}
