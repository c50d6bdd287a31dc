//go:build !linux

package probe

import (
	"context"
	"errors"
)

// errUnsupported is returned by the stub Collector's Attach and Detach
// on platforms without the LSM capability-check kprobe this package
// targets; NewCollector itself succeeds. The aggregator,
// table renderer, and CLI driver in internal/pkg/probe/report remain
// fully portable (spec.md §9) even though no collector can attach here.
var errUnsupported = errors.New("capability probe is only supported on linux")

type unsupportedCollector struct{}

// NewCollector returns a Collector stub on non-Linux platforms.
func NewCollector() (Collector, error) {
	return unsupportedCollector{}, nil
}

func (unsupportedCollector) Attach(ctx context.Context) (<-chan Event, error) {
	return nil, errUnsupported
}

func (unsupportedCollector) Detach() (AggregateMap, error) {
	return nil, errUnsupported
}
