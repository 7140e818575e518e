// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
)

// stubService stands in for a consumer, scheduler or server in tree tests.
// It crashes on its first failFirst runs and then blocks until stopped.
type stubService struct {
	name      string
	failFirst int32
	starts    atomic.Int32
	stops     atomic.Int32
}

func newStubService(name string, failFirst int32) *stubService {
	return &stubService{name: name, failFirst: failFirst}
}

func (s *stubService) Serve(ctx context.Context) error {
	n := s.starts.Add(1)
	defer s.stops.Add(1)
	if n <= s.failFirst {
		return errors.New("simulated crash")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *stubService) String() string { return s.name }
