package tts

import "context"

// Task is the pending result of a request running in the background.
type Task struct {
	id     string
	done   chan struct{}
	result string
	err    error
}

func newTask(id string) *Task {
	return &Task{id: id, done: make(chan struct{})}
}

// ID returns the request ID the task was created for.
func (t *Task) ID() string {
	return t.id
}

// Done is closed once the request has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the request finishes or ctx is done. Giving up on the
// wait does not stop the request.
func (t *Task) Wait(ctx context.Context) (string, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Result blocks until the request finishes and returns its outcome.
func (t *Task) Result() (string, error) {
	<-t.done
	return t.result, t.err
}

func (t *Task) resolve(result string, err error) {
	t.result, t.err = result, err
	close(t.done)
}
