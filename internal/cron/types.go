package cron

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	rcron "github.com/robfig/cron/v3"
)

const (
	KindCron  = "cron"
	KindEvery = "every"
	KindAt    = "at"
)

const (
	// ActionDigest summarizes a chat's log and posts the result back to it.
	ActionDigest = "digest"
	// ActionQuery answers Payload.Query over a chat's log.
	ActionQuery = "query"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// specParser accepts six-field expressions (with seconds), as the scheduler does.
var specParser = rcron.NewParser(
	rcron.Second | rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor,
)

type Schedule struct {
	Kind    string `json:"kind"`
	Expr    string `json:"expr,omitempty"`
	EveryMs int64  `json:"everyMs,omitempty"`
	AtMs    int64  `json:"atMs,omitempty"`
}

// Validate checks that the schedule can fire.
func (s Schedule) Validate() error {
	switch s.Kind {
	case KindCron:
		if _, err := specParser.Parse(s.Expr); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", s.Expr, err)
		}
	case KindEvery:
		if s.EveryMs <= 0 {
			return fmt.Errorf("every schedule needs a positive interval")
		}
	case KindAt:
		if s.AtMs <= 0 {
			return fmt.Errorf("at schedule needs a time")
		}
	default:
		return fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
	return nil
}

// Payload says what a job does and where its result goes.
type Payload struct {
	Action   string `json:"action"`
	Channel  string `json:"channel"`
	ChatID   string `json:"chatId"`
	ServerID int64  `json:"serverId"`
	Query    string `json:"query,omitempty"`
}

type JobState struct {
	LastRunAtMs int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
	LastError   string `json:"lastError,omitempty"`
}

type CronJob struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	State          JobState `json:"state"`
	CreatedAtMs    int64    `json:"createdAtMs"`
	DeleteAfterRun bool     `json:"deleteAfterRun,omitempty"`
}

// NewCronJob returns an enabled job. One-shot "at" jobs are removed after they run.
func NewCronJob(name string, schedule Schedule, payload Payload) CronJob {
	return CronJob{
		ID:             uuid.NewString(),
		Name:           name,
		Enabled:        true,
		Schedule:       schedule,
		Payload:        payload,
		CreatedAtMs:    time.Now().UnixMilli(),
		DeleteAfterRun: schedule.Kind == KindAt,
	}
}

// Targets reports whether the job posts to the given chat.
func (j CronJob) Targets(channel, chatID string) bool {
	return j.Payload.Channel == channel && j.Payload.ChatID == chatID
}
