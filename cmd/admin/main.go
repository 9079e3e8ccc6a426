package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"speakmatch/backend/internal/config"
	"speakmatch/backend/internal/logger"
	"speakmatch/backend/internal/models"
	"speakmatch/backend/internal/storage"
)

const usage = `Usage: admin <command> [args]

Commands:
  rooms [limit]        list the most recent rooms
  room <room_id>       show one room
  sessions <user_id>   list a user's completed sessions
  close-stale          close rooms left open by a stopped server
  watch                stream completed sessions from Redis`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg)

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	var rdb *redis.Client
	if os.Args[1] == "watch" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	}
	storageSvc := storage.NewStorageService(db, rdb, cfg.SessionsChannel, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, storageSvc, os.Args[1], os.Args[2:]); err != nil {
		log.Error().Err(err).Str("command", os.Args[1]).Msg("command failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, s *storage.Service, command string, args []string) error {
	switch command {
	case "rooms":
		limit := 20
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid limit %q", args[0])
			}
			limit = n
		}
		rooms, err := s.ListRooms(ctx, limit)
		if err != nil {
			return err
		}
		for _, r := range rooms {
			printRoom(r)
		}
		return nil

	case "room":
		if len(args) != 1 {
			return fmt.Errorf("usage: admin room <room_id>")
		}
		r, err := s.GetRoomByID(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(r)

	case "sessions":
		if len(args) != 1 {
			return fmt.Errorf("usage: admin sessions <user_id>")
		}
		sessions, err := s.ListCompletedSessions(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(sessions)

	case "close-stale":
		closed, err := s.CloseStaleRooms(ctx, time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("Closed %d stale rooms.\n", closed)
		return nil

	case "watch":
		fmt.Printf("Watching %s, Ctrl+C to stop.\n", s.Channel)
		return s.SubscribeCompletedSessions(ctx, func(cs models.CompletedSession) {
			_ = printJSON(cs)
		})

	default:
		fmt.Println(usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func printRoom(r models.RoomRecord) {
	fmt.Printf("%s  %-16s %-10s %v  %4ds  aborted=%t\n",
		r.RoomID, r.SessionType, r.Status, []string(r.ParticipantIDs), r.DurationSeconds, r.Aborted)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

