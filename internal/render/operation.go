package render

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/docviewer/internal/shared/id"
)

// Operation is the cancellation handle of one page render
type Operation struct {
	id  id.JobID
	job Job

	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool

	done chan struct{}
	once sync.Once
	size PageSize
	err  error
}

func newOperation(parent context.Context, job Job) *Operation {
	ctx, cancel := context.WithCancel(parent)
	return &Operation{
		id:     id.NewJobID(),
		job:    job,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID returns the operation's job ID
func (o *Operation) ID() id.JobID { return o.id }

// Job returns what the operation renders
func (o *Operation) Job() Job { return o.job }

// Cancel requests cancellation. The render stops at its next checkpoint
// and never draws. Cancelling a finished operation is a no-op.
func (o *Operation) Cancel() {
	select {
	case <-o.done:
		return
	default:
	}
	o.cancelled.Store(true)
	o.cancel()
}

// Cancelled reports whether Cancel was called before completion
func (o *Operation) Cancelled() bool { return o.cancelled.Load() }

// Done is closed when the operation has finished, drawn or not
func (o *Operation) Done() <-chan struct{} { return o.done }

// Wait blocks until the operation finishes or ctx is done
func (o *Operation) Wait(ctx context.Context) (PageSize, error) {
	select {
	case <-o.done:
		return o.size, o.err
	case <-ctx.Done():
		return PageSize{}, ctx.Err()
	}
}

// Err returns the result error once Done is closed
func (o *Operation) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

func (o *Operation) finish(size PageSize, err error) {
	o.once.Do(func() {
		o.size = size
		o.err = err
		o.cancel()
		close(o.done)
	})
}
