package model

import (
	"time"
)

const (
	MinDifficulty     = 1
	MaxDifficulty     = 10
	DefaultDifficulty = 5
)

// Task is the read model: the tasks row plus the joined tag and contest names and ids.
type Task struct {
	ID                int64     `json:"id"`
	TitleRU           string    `json:"title_ru"`
	Slug              string    `json:"slug"`
	Description       string    `json:"description"`
	SolutionIdea      string    `json:"solution_idea"`
	PolygonURL        string    `json:"polygon_url"`
	Difficulty        int       `json:"difficulty"`
	Note              string    `json:"note"`
	IsCodeforcesReady bool      `json:"is_codeforces_ready"`
	IsYandexReady     bool      `json:"is_yandex_ready"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	Tags              string    `json:"tags"`     // comma-joined tag names
	Contests          string    `json:"contests"` // comma-joined contest names
	TagIDs            []int64   `json:"tag_ids"`
	ContestIDs        []int64   `json:"contest_ids"`
}

// TaskRef identifies a task in deletion results.
type TaskRef struct {
	ID      int64  `json:"id"`
	TitleRU string `json:"title_ru"`
}

// TaskFields are the scalar columns written on insert.
type TaskFields struct {
	TitleRU      string
	Slug         string
	Description  string
	SolutionIdea string
	PolygonURL   string
	Difficulty   int
	Note         string
}

// TaskChanges holds the columns an update sets; nil means untouched.
type TaskChanges struct {
	TitleRU      *string
	Slug         *string
	Description  *string
	SolutionIdea *string
	PolygonURL   *string
	Difficulty   *int
	Note         *string
}

func (c TaskChanges) IsEmpty() bool {
	return c.TitleRU == nil && c.Slug == nil && c.Description == nil &&
		c.SolutionIdea == nil && c.PolygonURL == nil && c.Difficulty == nil && c.Note == nil
}

// TaskDeleteFilter is the conjunctive filter for bulk deletion.
type TaskDeleteFilter struct {
	MinDifficulty     *int   `json:"minDifficulty,omitempty"`
	MaxDifficulty     *int   `json:"maxDifficulty,omitempty"`
	TagID             *int64 `json:"tagId,omitempty"`
	ContestID         *int64 `json:"contestId,omitempty"`
	IsCodeforcesReady *bool  `json:"isCodeforcesReady,omitempty"`
	IsYandexReady     *bool  `json:"isYandexReady,omitempty"`
}

// TaskDeletion reports what a delete removed.
type TaskDeletion struct {
	DeletedID       int64             `json:"deletedId,omitempty"`
	Title           string            `json:"title,omitempty"`
	DeletedCount    int64             `json:"deletedCount"`
	DeletedIDs      []int64           `json:"deletedIds,omitempty"`
	DeletedTitles   []string          `json:"deletedTitles,omitempty"`
	TagsDeleted     int64             `json:"tagsDeleted"`
	ContestsDeleted int64             `json:"contestsDeleted"`
	Filter          *TaskDeleteFilter `json:"filter,omitempty"`
}

type DifficultyStat struct {
	Difficulty      int     `json:"difficulty"`
	Count           int64   `json:"count"`
	AvgDifficulty   float64 `json:"avg_difficulty"`
	CodeforcesReady int64   `json:"codeforces_ready"`
	YandexReady     int64   `json:"yandex_ready"`
}

type OverallStat struct {
	TotalTasks           int64   `json:"total_tasks"`
	OverallAvgDifficulty float64 `json:"overall_avg_difficulty"`
	MinDifficulty        int     `json:"min_difficulty"`
	MaxDifficulty        int     `json:"max_difficulty"`
	CodeforcesReady      int64   `json:"codeforces_ready"`
	YandexReady          int64   `json:"yandex_ready"`
}

type TaskStats struct {
	ByDifficulty []DifficultyStat `json:"byDifficulty"`
	Overall      OverallStat      `json:"overall"`
}

func (f TaskDeleteFilter) IsEmpty() bool {
	return f.MinDifficulty == nil && f.MaxDifficulty == nil && f.TagID == nil &&
		f.ContestID == nil && f.IsCodeforcesReady == nil && f.IsYandexReady == nil
}
