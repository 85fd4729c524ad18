package tier

import (
	"github.com/jmgilman/go/fs/core"

	"github.com/krisalay/tiered-cache/backend"
	"github.com/krisalay/tiered-cache/opqueue"
)

// NewFast builds the volatile tier: a locked in-process map with writes
// serialized inline.
func NewFast(cfg Config, opts Options) (*Tier, error) {
	return New(cfg, backend.NewMemory(), opqueue.NewInline(), opts)
}

// NewMedium builds the persistent tier: one JSON record per key in dir,
// writes serialized through a FIFO queue.
func NewMedium(cfg Config, fsys core.FS, dir string, opts Options) (*Tier, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	be, err := backend.NewFiles(fsys, dir, cfg.KeyPrefix, opts.Logger)
	if err != nil {
		return nil, err
	}
	return New(cfg, be, opqueue.NewFIFO(cfg.QueueSize), opts)
}

// NewSlow builds the durable tier: sharded, compressed, checksummed records
// under dir, writes serialized through a FIFO queue.
func NewSlow(cfg Config, fsys core.FS, dir string, opts Options) (*Tier, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	be, err := backend.NewBlobs(fsys, dir, cfg.KeyPrefix, opts.Logger)
	if err != nil {
		return nil, err
	}
	return New(cfg, be, opqueue.NewFIFO(cfg.QueueSize), opts)
}
