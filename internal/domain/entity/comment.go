package entity

import "time"

// Comment is a remark posted on a request. Comments are never edited.
type Comment struct {
	ID         int64     `json:"id"`
	RequestID  int64     `json:"request_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	IsInternal bool      `json:"is_internal"`
	CreatedAt  time.Time `json:"created_at"`
}

// VisibleTo reports whether a viewer with the given privilege may see the comment
func (c *Comment) VisibleTo(elevated bool) bool {
	return elevated || !c.IsInternal
}
