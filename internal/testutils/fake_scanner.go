package testutils

import (
	"context"

	"github.com/srg/soilsense/internal/device"
)

// FakeScanner replays a fixed set of advertisements to the handler and then
// blocks until the scan context ends, like a real adapter would.
type FakeScanner struct {
	Advertisements []device.Advertisement

	// ScanErr, when set, is returned immediately instead of replaying.
	ScanErr error
}

func (s *FakeScanner) Scan(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
	if s.ScanErr != nil {
		return s.ScanErr
	}
	for _, adv := range s.Advertisements {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		handler(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}
