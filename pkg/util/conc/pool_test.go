// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package conc

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	ants "github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestPool(t *testing.T) {
	pool := NewPool[any](10)
	defer pool.Release()

	futures := make([]*Future[any], 0, 20)
	for i := 0; i < 20; i++ {
		res := i
		futures = append(futures, pool.Submit(func() (any, error) {
			return res, nil
		}))
	}

	require.NoError(t, AwaitAll(futures...))
	for i, f := range futures {
		assert.True(t, f.Done())
		assert.True(t, f.OK())
		assert.Equal(t, i, f.Value())
	}
	assert.Equal(t, 10, pool.Cap())
}

func TestPoolError(t *testing.T) {
	pool := NewDefaultPool[int]()
	defer pool.Release()

	boom := errors.New("boom")
	f := pool.Submit(func() (int, error) { return 0, boom })
	_, err := f.Await()
	assert.ErrorIs(t, err, boom)
	assert.False(t, f.OK())
	assert.ErrorIs(t, AwaitAll(f), boom)
}

func TestUnlimitedPool(t *testing.T) {
	pool := NewPool[struct{}](0, WithPreAlloc(true))
	defer pool.Release()
	assert.Equal(t, -1, pool.Cap())

	// 阻塞任务不会占满无界协程池
	block := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		require.NoError(t, pool.Go(func() {
			defer wg.Done()
			<-block
		}))
	}
	close(block)
	wg.Wait()
}

func TestPoolReleased(t *testing.T) {
	pool := NewPool[int](2)
	pool.Release()
	assert.True(t, pool.IsClosed())

	f := pool.Submit(func() (int, error) { return 1, nil })
	assert.ErrorIs(t, f.Err(), ants.ErrPoolClosed)
	assert.ErrorIs(t, pool.Go(func() {}), ants.ErrPoolClosed)

	pool.Reboot()
	assert.False(t, pool.IsClosed())
	assert.Equal(t, 1, pool.Submit(func() (int, error) { return 1, nil }).Value())
	pool.Release()
}

func TestConcealPanic(t *testing.T) {
	var handled atomic.Int32
	pool := NewPool[int](1, WithConcealPanic(true), WithPanicHandler(func(any) {
		handled.Inc()
	}))
	defer pool.Release()

	f := pool.Submit(func() (int, error) { panic("oops") })
	assert.Error(t, f.Err())
	assert.Eventually(t, func() bool { return handled.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestPreHandlerAndResize(t *testing.T) {
	var called atomic.Int32
	pool := NewPool[int](1, WithPreHandler(func() { called.Inc() }), WithName("resize"))
	defer pool.Release()

	assert.Equal(t, 1, pool.Submit(func() (int, error) { return 1, nil }).Value())
	assert.EqualValues(t, 1, called.Load())

	require.NoError(t, pool.Resize(4))
	assert.Equal(t, 4, pool.Cap())
	assert.Error(t, pool.Resize(0))

	pre := NewPool[int](2, WithPreAlloc(true))
	defer pre.Release()
	assert.Error(t, pre.Resize(4))
}

func TestGo(t *testing.T) {
	f := Go(func() (string, error) { return "done", nil })
	v, err := f.Await()
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	<-f.Inner()
}
