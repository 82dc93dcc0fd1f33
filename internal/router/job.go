// SPDX-License-Identifier: MIT
package router

import (
	"fmt"
)

// Kind tags a successful job result so the router can pick the observer.
type Kind uint8

const (
	KindConsole Kind = iota
	KindTranscription
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindConsole:
		return "console"
	case KindTranscription:
		return "transcription"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is the tagged payload of a successful job.
type Message struct {
	Kind Kind
	Text string
}

// Console builds a console message.
func Console(format string, args ...any) Message {
	return Message{Kind: KindConsole, Text: fmt.Sprintf(format, args...)}
}

// Outcome is what an observer receives once a job has been joined.
type Outcome struct {
	Job     string
	Message Message
	Err     error
}

// PanicError replaces the result of a job whose goroutine panicked.
type PanicError struct {
	Job   string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job %q panicked: %v", e.Job, e.Value)
}

// Job is a join handle for work already running on its own goroutine.
type Job struct {
	name    string
	done    chan struct{}
	outcome Outcome
}

// Spawn runs fn on a new goroutine and returns its join handle. A panic in fn
// is recovered and reported as a *PanicError.
func Spawn(name string, fn func() (Message, error)) *Job {
	j := &Job{name: name, done: make(chan struct{})}
	go func() {
		defer close(j.done)
		defer func() {
			if r := recover(); r != nil {
				j.outcome = Outcome{Job: name, Err: &PanicError{Job: name, Value: r}}
			}
		}()
		msg, err := fn()
		j.outcome = Outcome{Job: name, Message: msg, Err: err}
	}()
	return j
}

// Ready returns an already completed job carrying msg.
func Ready(name string, msg Message) *Job {
	j := &Job{name: name, done: make(chan struct{}), outcome: Outcome{Job: name, Message: msg}}
	close(j.done)
	return j
}

// Failed returns an already completed job carrying err.
func Failed(name string, err error) *Job {
	j := &Job{name: name, done: make(chan struct{}), outcome: Outcome{Job: name, Err: err}}
	close(j.done)
	return j
}

// Name returns the label given at creation.
func (j *Job) Name() string { return j.name }

// Done is closed when the job has completed.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job completes and returns its outcome.
func (j *Job) Wait() Outcome {
	<-j.done
	return j.outcome
}
