package chat

import "time"

// Session captures one page-load conversation. It lives only in memory.
type Session struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"courseId"`
	CreatedAt time.Time `json:"createdAt"`
}
