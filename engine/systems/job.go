package systems

import (
	"fmt"
	"sync"
)

type JobSystem struct {
	numWorkers int
	jobQueue   chan func()
	wg         sync.WaitGroup

	closeOnce sync.Once
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan func(), channelSize),
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				job()
			}
		}()
	}
}

/**
 * @brief Shuts the job system down, draining queued work.
 */
func (js *JobSystem) Shutdown() error {
	js.closeOnce.Do(func() {
		close(js.jobQueue)
	})
	js.wg.Wait()
	return nil
}

// Dispatch submits a task for execution on a worker. This makes the job
// system usable as the dispatcher behind phase nurseries. Blocks only
// when the queue is full.
func (js *JobSystem) Dispatch(task func()) {
	js.jobQueue <- task
}
