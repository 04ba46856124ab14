// Package spawn emulates dynamic process spawning on a fixed-size process
// group.
//
// One rank of the base group is the master; every other rank is a worker. A
// worker announces itself with a NEXT message and then blocks for the
// master's answer: WORK runs a job inside one of the pre-registered
// subworlds, NONE ends the worker. After each job the worker sends NEXT
// again, carrying the job's exit status.
//
// Setup builds the per-process State and installs service lifecycle entry
// points into a hooks.Table. While a job runs, Exit ends the job instead of
// the process, Execve re-enters the workload with a new argument vector, and
// Finalize only releases the job's parent handle. Abort either takes down the
// whole group or is contained to the job, depending on Config.AbortWhenAbort.
//
// A State, like the Table it wraps, is used from one goroutine.
package spawn
