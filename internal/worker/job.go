package worker

import (
	"context"

	"resolvego/internal/service/inquiry"
)

type JobType int

const (
	Turn JobType = iota
	Stop
)

// TurnRequest asks for one orchestrated customer turn on an inquiry.
type TurnRequest struct {
	Context   context.Context
	UserID    int64
	InquiryID int64
	Message   string
}

type turnReturn struct {
	result *inquiry.TurnResult
	err    error
}

type turnTask struct {
	req      TurnRequest
	resultCh chan turnReturn
}

type Job struct {
	Type     JobType
	TurnTask *turnTask
}

func (job Job) userID() int64 {
	if job.Type == Turn && job.TurnTask != nil {
		return job.TurnTask.req.UserID
	}
	return 0
}
