package worker

import "errors"

var (
	errQueueFull = errors.New("journal queue full")
	errStopped   = errors.New("journal worker pool stopped")
)
