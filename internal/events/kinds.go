package events

// Event types published by the spawn master and scheduler.
const (
	WorkerReady      = "worker.ready"
	WorkerReported   = "worker.reported"
	WorkerTerminated = "worker.terminated"
	JobDispatched    = "job.dispatched"
	JobAttached      = "job.attached"
	JobCompleted     = "job.completed"
	JobFailed        = "job.failed"
)
