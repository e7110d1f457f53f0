package cli

import (
	"github.com/jdziat/delayed/pkg/queue"
	"github.com/jdziat/delayed/pkg/worker"
)

// Option configures the command tree built by NewRootCmd.
type Option interface {
	apply(*settings)
}

type optionFunc func(*settings)

func (f optionFunc) apply(s *settings) { f(s) }

type settings struct {
	register   []func(*queue.Queue) error
	queueOpts  []queue.QueueOption
	workerOpts []worker.WorkerOption
}

// WithRegistration runs fn against every queue the commands create, which is
// where an application registers its payload types.
func WithRegistration(fn func(*queue.Queue) error) Option {
	return optionFunc(func(s *settings) {
		s.register = append(s.register, fn)
	})
}

// WithQueueOptions passes extra options to queue.New.
func WithQueueOptions(opts ...queue.QueueOption) Option {
	return optionFunc(func(s *settings) {
		s.queueOpts = append(s.queueOpts, opts...)
	})
}

// WithWorkerOptions passes extra options to worker.NewWorker, after the ones
// derived from flags and the environment.
func WithWorkerOptions(opts ...worker.WorkerOption) Option {
	return optionFunc(func(s *settings) {
		s.workerOpts = append(s.workerOpts, opts...)
	})
}
