package model

import (
	"time"
)

const (
	MinContestYear = 2000
	MaxContestYear = 2100
)

type Contest struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Year      int       `json:"year"`
	CreatedAt time.Time `json:"created_at"`
}

type ContestYearStat struct {
	Year         int   `json:"year"`
	ContestCount int64 `json:"contest_count"`
	TaskCount    int64 `json:"task_count"`
}
