package task

import "errors"

var (
	ErrNoSuchProcess = errors.New("no such process")
	ErrNoChild       = errors.New("no child processes")
	ErrInvalidWait   = errors.New("invalid wait options")
	ErrThreadExited  = errors.New("thread has exited")
	ErrOtherThreads  = errors.New("process has other live threads")
)
