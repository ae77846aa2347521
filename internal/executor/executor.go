// Package executor implements the task-list executor: schedule tasks 2..N
// onto a Scheduler, run task 1 inline, then cooperatively steal and wait
// for every task, returning the first non-zero exit code in task order.
// This bounds worst-case latency at the sequential total even when the
// worker pool is saturated.
package executor

import (
	"log"

	"github.com/alibaba/proxima-sub000/internal/errcode"
	"github.com/alibaba/proxima-sub000/internal/scheduler"
)

// Executor runs a list of Tasks to completion and aggregates their result.
type Executor interface {
	ExecuteTask(task *scheduler.Task) int
	ExecuteTasks(tasks []*scheduler.Task) int
}

// Parallel is the Scheduler-backed Executor.
type Parallel struct {
	sched *scheduler.Scheduler
}

// New builds a Parallel executor backed by sched.
func New(sched *scheduler.Scheduler) *Parallel {
	return &Parallel{sched: sched}
}

// ExecuteTask runs a single task inline (on the calling goroutine) via
// RunOnce, so a concurrent worker racing to the same task is still safe.
func (e *Parallel) ExecuteTask(task *scheduler.Task) int {
	if task == nil {
		return int(errcode.InvalidArgument)
	}
	return task.RunOnce()
}

// ExecuteTasks schedules tasks[1:] onto the scheduler, runs tasks[0] inline,
// then waits for every task — stealing any that a worker has not yet
// picked up. The return value is the first non-zero exit code in task
// order; a task that never left INITIALIZED (failed to schedule) yields
// scheduler.ScheduleErrorCode.
func (e *Parallel) ExecuteTasks(tasks []*scheduler.Task) int {
	if len(tasks) == 0 {
		return 0
	}

	for _, task := range tasks[1:] {
		if err := e.sched.Schedule(task); err != nil {
			log.Printf("executor: can't schedule task %q: %v", task.Name, err)
			break
		}
	}

	// Run the head task on the calling goroutine; its error is folded into
	// the per-task scan below rather than returned directly.
	e.ExecuteTask(tasks[0])

	return e.waitFinish(tasks)
}

// waitFinish walks tasks in order, stealing any not yet run and waiting for
// each to finish, returning the first non-zero exit code encountered.
func (e *Parallel) waitFinish(tasks []*scheduler.Task) int {
	errorCode := 0
	for _, task := range tasks {
		if task.Status() == scheduler.Initialized {
			if errorCode == 0 {
				errorCode = scheduler.ScheduleErrorCode
			}
			continue
		}

		// Optimize tail latency: attempt the task ourselves before blocking
		// on WaitFinish, in case the assigned worker hasn't started yet.
		task.RunOnce()
		code := task.WaitFinish()
		if errorCode == 0 && code != 0 {
			errorCode = code
		}
	}
	return errorCode
}
