package model

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TagStat is a tag with the number of tasks that carry it.
type TagStat struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	TaskCount int64  `json:"task_count"`
}
