/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limits

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type PermitPoolTestSuite struct {
	suite.Suite
}

func TestPermitPool(t *testing.T) {
	suite.Run(t, &PermitPoolTestSuite{})
}

func (s *PermitPoolTestSuite) TestUnlimited() {
	p := newPermitPool(0)
	s.True(p.unlimited())
	s.Equal(0, p.size())
	s.Equal(0, p.available())
	for i := 0; i < 100; i++ {
		s.True(p.tryAcquire())
	}
	s.NoError(p.acquire(context.Background()))
	p.release()
	s.Equal(0, p.available())
}

func (s *PermitPoolTestSuite) TestTryAcquire() {
	p := newPermitPool(2)
	s.False(p.unlimited())
	s.Equal(2, p.size())
	s.True(p.tryAcquire())
	s.True(p.tryAcquire())
	s.False(p.tryAcquire())
	s.Equal(0, p.available())

	p.release()
	s.Equal(1, p.available())
	s.True(p.tryAcquire())
	p.release()
	p.release()
	s.Equal(2, p.available())

	// Extra release must not push the pool over its capacity.
	p.release()
	s.Equal(2, p.available())
}

func (s *PermitPoolTestSuite) TestAcquireBlocksUntilRelease() {
	p := newPermitPool(1)
	s.Require().NoError(p.acquire(context.Background()))

	acquired := make(chan error, 1)
	go func() {
		acquired <- p.acquire(context.Background())
	}()
	s.Require().Eventually(func() bool { return p.waiting.Load() == 1 }, waitTimeout, waitInterval)
	select {
	case <-acquired:
		s.FailNow("acquire should block while the pool is exhausted")
	default:
	}

	p.release()
	s.Require().NoError(<-acquired)
	s.Equal(int32(0), p.waiting.Load())
	s.Equal(0, p.available())
}

func (s *PermitPoolTestSuite) TestAcquireContextDone() {
	p := newPermitPool(1)
	s.Require().True(p.tryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s.ErrorIs(p.acquire(ctx), context.DeadlineExceeded)
	s.Equal(int32(0), p.waiting.Load())
	s.Equal(0, p.available())
}
