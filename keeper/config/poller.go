package config

import (
	"fmt"
	"time"
)

var (
	defaultBufferSize      = uint32(1000)
	defaultPollingInterval = 5 * time.Second
	defaultBlockBatchSize  = uint64(1000)
	defaultConfirmations   = uint64(1)
)

type RequestPollerConfig struct {
	BufferSize     uint32        `long:"buffersize" description:"The maximum number of requests that can be stored in the buffer"`
	PollInterval   time.Duration `long:"pollinterval" description:"The interval between each polling of the chain for new requests"`
	BlockBatchSize uint64        `long:"blockbatchsize" description:"The maximum number of blocks covered by a single log query"`
	Confirmations  uint64        `long:"confirmations" description:"The number of blocks a request must be buried under before it is processed"`
	StartBlock     uint64        `long:"startblock" description:"The block to start scanning from when no progress is stored"`
}

func DefaultRequestPollerConfig() RequestPollerConfig {
	return RequestPollerConfig{
		BufferSize:     defaultBufferSize,
		PollInterval:   defaultPollingInterval,
		BlockBatchSize: defaultBlockBatchSize,
		Confirmations:  defaultConfirmations,
	}
}

func (c *RequestPollerConfig) Validate() error {
	if c.BufferSize == 0 {
		return fmt.Errorf("invalid buffersize: %d", c.BufferSize)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid pollinterval: %v", c.PollInterval)
	}

	if c.BlockBatchSize == 0 {
		return fmt.Errorf("invalid blockbatchsize: %d", c.BlockBatchSize)
	}

	return nil
}
