package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"schoolchat/backend/internal/auth"
	"schoolchat/backend/internal/config"
	"schoolchat/backend/internal/storage"
)

const usage = `Usage: admin <command> [args]

Commands:
  token <user_id> [hours]             issue a bearer token for a user
  open-chat <user_id> <target_id>     find or create the chat between two users
  history <chat_id> [page] [limit]    print a page of chat history
  mark-read <chat_id> <reader_id>     mark a chat's messages read for a reader
  seed <students> [teachers]          create fake users, chats and messages`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg := config.Load()
	db, err := storage.OpenDB(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	storageSvc := storage.NewStorageService(db, nil) // No redis needed for admin CLI
	ctx := context.Background()
	args := os.Args[2:]

	switch os.Args[1] {
	case "token":
		if len(args) < 1 {
			fail("Usage: admin token <user_id> [hours]")
		}
		hours := optInt(args, 1, 24)
		verifier := auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)
		if err := issueToken(ctx, os.Stdout, storageSvc, verifier, mustUint(args[0]), time.Duration(hours)*time.Hour); err != nil {
			log.Fatalf("Error issuing token: %v", err)
		}
	case "open-chat":
		if len(args) != 2 {
			fail("Usage: admin open-chat <user_id> <target_id>")
		}
		if err := openChat(ctx, os.Stdout, storageSvc, mustUint(args[0]), mustUint(args[1])); err != nil {
			log.Fatalf("Error opening chat: %v", err)
		}
	case "history":
		if len(args) < 1 {
			fail("Usage: admin history <chat_id> [page] [limit]")
		}
		page, limit := optInt(args, 1, 1), optInt(args, 2, config.DefaultPageSize)
		if err := printHistory(ctx, os.Stdout, storageSvc, mustUint(args[0]), page, limit); err != nil {
			log.Fatalf("Error reading history: %v", err)
		}
	case "mark-read":
		if len(args) != 2 {
			fail("Usage: admin mark-read <chat_id> <reader_id>")
		}
		if err := markRead(ctx, os.Stdout, storageSvc, mustUint(args[0]), mustUint(args[1])); err != nil {
			log.Fatalf("Error marking messages read: %v", err)
		}
	case "seed":
		if len(args) < 1 {
			fail("Usage: admin seed <students> [teachers]")
		}
		students := int(mustUint(args[0]))
		teachers := optInt(args, 1, max(1, students/5))
		if err := seed(ctx, os.Stdout, storageSvc, students, teachers, time.Now().UnixNano()); err != nil {
			log.Fatalf("Error seeding: %v", err)
		}
	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}

func fail(msg string) {
	fmt.Println(msg)
	os.Exit(1)
}

func mustUint(s string) uint {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || v == 0 {
		fail(fmt.Sprintf("Invalid id %q. Please provide a positive integer.", s))
	}
	return uint(v)
}

func optInt(args []string, i, def int) int {
	if len(args) <= i {
		return def
	}
	v, err := strconv.Atoi(args[i])
	if err != nil || v <= 0 {
		fail(fmt.Sprintf("Invalid number %q.", args[i]))
	}
	return v
}
