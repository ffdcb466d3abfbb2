package storage

import "schoolchat/backend/internal/models"

// ResolvePair orders two users into (student, teacher). Any other role
// combination, admins included, is a conflict.
func ResolvePair(a, b *models.User) (studentID, teacherID uint, err error) {
	switch {
	case a.IsStudent() && b.IsTeacher():
		return a.ID, b.ID, nil
	case a.IsTeacher() && b.IsStudent():
		return b.ID, a.ID, nil
	}
	return 0, 0, ErrRoleConflict
}
