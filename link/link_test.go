package link

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSendAfterClose(t *testing.T) {
	l := New[int](0)
	require.True(t, l.Send(1))
	l.Close()
	l.Close()

	assert.False(t, l.Send(2))
	assert.True(t, l.Closed())

	// queued values survive the close
	v, ok := l.Next()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = l.Next()
	assert.False(t, ok)
}

func TestBoundedSendFull(t *testing.T) {
	l := New[int](1)
	assert.True(t, l.Send(1))
	assert.False(t, l.Send(2))
	assert.Equal(t, 1, l.Len())
}

func TestUnboundedNeverBlocks(t *testing.T) {
	l := New[int](0)
	for i := 0; i < 100000; i++ {
		require.True(t, l.Send(i))
	}
	assert.Equal(t, 100000, l.Len())

	for i := 0; i < 100000; i++ {
		v, ok := l.TryRecv()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok := l.TryRecv()
	assert.False(t, ok)
}

func TestNextWaitsForValue(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := New[string](4)

	go func() {
		time.Sleep(10 * time.Millisecond)
		l.Send("x")
	}()

	v, ok := l.Next()
	require.True(t, ok)
	assert.Equal(t, "x", v)
}

func TestNextUnblockedByClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := New[int](0)

	result := make(chan bool)
	go func() {
		_, ok := l.Next()
		result <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	l.Close()
	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("receiver still blocked after close")
	}
}

func TestNextBeforeDeadline(t *testing.T) {
	l := New[int](0)
	_, ok := l.NextBefore(time.After(10 * time.Millisecond))
	assert.False(t, ok)
	assert.False(t, l.Closed())

	l.Send(7)
	v, ok := l.NextBefore(time.After(time.Second))
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestReadyAfterEachSend(t *testing.T) {
	l := New[int](0)
	l.Send(1)
	l.Send(2)

	<-l.Ready()
	v, ok := l.TryRecv()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	// a value is still queued, so the token is back
	select {
	case <-l.Ready():
	default:
		t.Fatal("no ready token with a value queued")
	}
}

// Every Send that reports true must be seen by the receiver, even when it
// races with Close.
func TestSendRacingClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	for round := 0; round < 200; round++ {
		l := New[int](0)
		var closer sync.WaitGroup
		var count int
		var mutex sync.Mutex

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					if l.Send(j) {
						mutex.Lock()
						count++
						mutex.Unlock()
					}
				}
			}()
		}
		closer.Add(1)
		go func() {
			defer closer.Done()
			l.Close()
		}()

		received := 0
		for {
			if _, ok := l.Next(); !ok {
				break
			}
			received++
		}
		wg.Wait()
		closer.Wait()

		mutex.Lock()
		require.Equal(t, count, received, "round %d", round)
		mutex.Unlock()
	}
}

func TestConcurrentSenders(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := New[int](0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				l.Send(i*10 + j)
			}
		}(i)
	}
	wg.Wait()
	l.Close()

	seen := make(map[int]bool)
	for {
		v, ok := l.Next()
		if !ok {
			break
		}
		seen[v] = true
	}
	assert.Len(t, seen, 100)
}
