package cmn

import (
	"sync"
	"time"
)

// StopCh is a closable "stop" signal shared by one or more goroutines,
// grounded on the teacher's cmn.StopCh (used throughout fs/mpather/jogger.go
// to fan out a single cancellation to a jogger group). Close is idempotent.
type StopCh struct {
	once sync.Once
	ch   chan struct{}
}

func NewStopCh() *StopCh { return &StopCh{ch: make(chan struct{})} }

func (s *StopCh) Listen() <-chan struct{} { return s.ch }

func (s *StopCh) Close() { s.once.Do(func() { close(s.ch) }) }

func (s *StopCh) IsStopped() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// TimeoutGroup is a WaitGroup variant that also supports waiting with a
// timeout, used by loader.Dispatcher.Stop and stream.Controller.Stop to
// bound how long they wait for their worker goroutines to join.
type TimeoutGroup struct {
	mtx sync.Mutex
	n   int
	ch  chan struct{}
}

func NewTimeoutGroup() *TimeoutGroup {
	return &TimeoutGroup{ch: make(chan struct{}, 1)}
}

func (tg *TimeoutGroup) Add(delta int) {
	tg.mtx.Lock()
	defer tg.mtx.Unlock()
	tg.n += delta
	if tg.n == 0 {
		select {
		case tg.ch <- struct{}{}:
		default:
		}
	}
}

func (tg *TimeoutGroup) Done() { tg.Add(-1) }

// WaitTimeout returns true if the group drained to zero before the timeout
// elapsed, false if the timeout fired first.
func (tg *TimeoutGroup) WaitTimeout(d time.Duration) bool {
	tg.mtx.Lock()
	if tg.n == 0 {
		tg.mtx.Unlock()
		return true
	}
	tg.mtx.Unlock()

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-tg.ch:
		return true
	case <-t.C:
		return false
	}
}

// DynSemaphore is a semaphore whose capacity can be resized at runtime,
// grounded on the teacher's cmn.DynSemaphore (sized at startup from
// config.WorkerThreads, then used by the loader's dispatcher to bound
// in-flight load requests; loader.Dispatcher.SetWorkers resizes it).
type DynSemaphore struct {
	mtx  sync.Mutex
	size int
	cur  int
	c    *sync.Cond
}

func NewDynSemaphore(n int) *DynSemaphore {
	ds := &DynSemaphore{size: n}
	ds.c = sync.NewCond(&ds.mtx)
	return ds
}

func (ds *DynSemaphore) Acquire() {
	ds.mtx.Lock()
	for ds.cur >= ds.size {
		ds.c.Wait()
	}
	ds.cur++
	ds.mtx.Unlock()
}

func (ds *DynSemaphore) TryAcquire() bool {
	ds.mtx.Lock()
	defer ds.mtx.Unlock()
	if ds.cur >= ds.size {
		return false
	}
	ds.cur++
	return true
}

func (ds *DynSemaphore) Release() {
	ds.mtx.Lock()
	Assert(ds.cur > 0, "DynSemaphore: release without matching acquire")
	ds.cur--
	ds.mtx.Unlock()
	ds.c.Signal()
}

// SetSize resizes the semaphore's capacity in place; waiters are woken so
// they can re-check against the new size. Called by
// loader.Dispatcher.SetWorkers.
func (ds *DynSemaphore) SetSize(n int) {
	ds.mtx.Lock()
	ds.size = n
	ds.mtx.Unlock()
	ds.c.Broadcast()
}
