package models

import "time"

// Chat is a one-to-one conversation between a student and a teacher.
// The (student_id, teacher_id) pair is unique, so at most one chat exists per pair.
type Chat struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	StudentID uint      `gorm:"not null;uniqueIndex:ux_chat_pair,priority:1" json:"student_id"`
	TeacherID uint      `gorm:"not null;uniqueIndex:ux_chat_pair,priority:2;index" json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasParticipant reports whether userID is the chat's student or teacher.
func (c *Chat) HasParticipant(userID uint) bool {
	return userID != 0 && (c.StudentID == userID || c.TeacherID == userID)
}

// OtherParticipant returns the participant that is not userID.
func (c *Chat) OtherParticipant(userID uint) uint {
	if c.StudentID == userID {
		return c.TeacherID
	}
	return c.StudentID
}

// ChatSummary is a chat with its unread count for a given reader.
type ChatSummary struct {
	Chat
	UnreadCount int64 `json:"unread_count"`
}
