package bbi

import (
	"github.com/datatrails/go-datatrails-common/logger"
)

const (
	DefaultBlockSize    = 256
	DefaultItemsPerSlot = 512
)

// Config holds the tree shape and writer parameters.
type Config struct {
	BlockSize    int  // branching factor of both trees, default 256
	ItemsPerSlot int  // blocks stored under one range leaf, default 512
	Compress     bool // zlib compress data blocks written by WriteFile
	Log          logger.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BlockSize:    DefaultBlockSize,
		ItemsPerSlot: DefaultItemsPerSlot,
		Compress:     true,
	}
}

// OrDefault returns DefaultConfig if c is nil, otherwise a copy of c with
// zero values filled in. c itself is left untouched.
func (c *Config) OrDefault() *Config {
	if c == nil {
		return DefaultConfig()
	}
	cfg := *c
	if cfg.BlockSize == 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.ItemsPerSlot == 0 {
		cfg.ItemsPerSlot = DefaultItemsPerSlot
	}
	return &cfg
}

func (c *Config) debugf(format string, args ...any) {
	if c != nil && c.Log != nil {
		c.Log.Debugf(format, args...)
	}
}

func (c *Config) infof(format string, args ...any) {
	if c != nil && c.Log != nil {
		c.Log.Infof(format, args...)
	}
}
