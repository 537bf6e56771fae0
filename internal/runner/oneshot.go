package runner

import (
	"sync"

	"github.com/vovakirdan/scriptworld/internal/interp"
)

// threadIDFuture is a lock-free one-shot carrying either the worker's thread
// id or the error that prevented startup. It does not touch the GIL.
type threadIDFuture struct {
	once sync.Once
	done chan struct{}
	id   interp.ThreadID
	err  error
}

func newThreadIDFuture() *threadIDFuture {
	return &threadIDFuture{done: make(chan struct{})}
}

// publish fulfils the future. Only the first call has any effect.
func (f *threadIDFuture) publish(id interp.ThreadID, err error) {
	f.once.Do(func() {
		f.id = id
		f.err = err
		close(f.done)
	})
}

// wait blocks until the future is fulfilled.
func (f *threadIDFuture) wait() (interp.ThreadID, error) {
	<-f.done
	return f.id, f.err
}
