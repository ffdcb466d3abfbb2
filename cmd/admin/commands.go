package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"schoolchat/backend/internal/auth"
	"schoolchat/backend/internal/config"
	"schoolchat/backend/internal/models"
	"schoolchat/backend/internal/storage"

	"github.com/brianvoe/gofakeit/v6"
)

func issueToken(ctx context.Context, out io.Writer, s storage.Storage, v *auth.JWTVerifier, userID uint, ttl time.Duration) error {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	token, err := v.Issue(user.ID, user.Email, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func openChat(ctx context.Context, out io.Writer, s storage.Storage, userID, targetID uint) error {
	chat, err := s.FindOrCreateChat(ctx, userID, targetID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Chat %d: student %d, teacher %d\n", chat.ID, chat.StudentID, chat.TeacherID)
	return nil
}

func printHistory(ctx context.Context, out io.Writer, s storage.Storage, chatID uint, page, limit int) error {
	if _, err := s.GetChatByID(ctx, chatID); err != nil {
		return err
	}
	result, err := s.ListMessages(ctx, chatID, page, limit)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Chat %d, page %d/%d (%d messages)\n", chatID, result.Page, result.TotalPages, result.Total)
	for _, m := range result.Messages {
		read := " "
		if m.IsRead {
			read = "✓"
		}
		fmt.Fprintf(out, "[%s] %s user %d: %s\n", m.CreatedAt.Format(time.RFC3339), read, m.SenderID, m.Content)
	}
	return nil
}

func markRead(ctx context.Context, out io.Writer, s storage.Storage, chatID, readerID uint) error {
	chat, err := s.GetChatByID(ctx, chatID)
	if err != nil {
		return err
	}
	if !s.IsParticipant(chat, readerID) {
		return fmt.Errorf("user %d is not a participant of chat %d", readerID, chatID)
	}
	count, err := s.MarkRead(ctx, chatID, readerID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d messages marked read.\n", count)
	return nil
}

// seed creates fake students and teachers, one chat per student and a few messages in each.
func seed(ctx context.Context, out io.Writer, s storage.Storage, students, teachers int, randSeed int64) error {
	gofakeit.Seed(randSeed)

	teacherIDs := make([]uint, 0, teachers)
	for i := 0; i < teachers; i++ {
		u, err := createFakeUser(ctx, s, config.RoleTeacher)
		if err != nil {
			return err
		}
		teacherIDs = append(teacherIDs, u.ID)
	}

	messages := 0
	for i := 0; i < students; i++ {
		student, err := createFakeUser(ctx, s, config.RoleStudent)
		if err != nil {
			return err
		}
		teacherID := teacherIDs[gofakeit.Number(0, len(teacherIDs)-1)]
		chat, err := s.FindOrCreateChat(ctx, student.ID, teacherID)
		if err != nil {
			return err
		}

		for j, n := 0, gofakeit.Number(1, 5); j < n; j++ {
			sender := chat.StudentID
			if j%2 == 1 {
				sender = chat.TeacherID
			}
			if _, err := s.CreateMessage(ctx, chat.ID, sender, gofakeit.Sentence(gofakeit.Number(3, 12))); err != nil {
				return err
			}
			messages++
		}
	}

	fmt.Fprintf(out, "Seeded %d teachers, %d students, %d chats, %d messages.\n", teachers, students, students, messages)
	return nil
}

func createFakeUser(ctx context.Context, s storage.Storage, role int) (*models.User, error) {
	u := &models.User{
		Email:    fmt.Sprintf("%s.%s@%s", gofakeit.Username(), gofakeit.LetterN(6), gofakeit.DomainName()),
		Name:     gofakeit.Name(),
		RoleID:   role,
		Language: gofakeit.RandomString([]string{"es", "en"}),
	}
	if err := s.SaveUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
