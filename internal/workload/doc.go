// Package workload holds the programs a spawned job can run. The first
// argument of a job names the program; the rest are its arguments.
//
// Programs run inside the job world. They call Exit, Execve and Abort
// exactly as a standalone program would; the spawn layer turns those calls
// into the end of the job.
package workload
