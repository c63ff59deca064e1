package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"rental-service/config"
	"rental-service/internal/models"
	"rental-service/internal/store"
	"rental-service/internal/util"

	"go.uber.org/zap"
)

const usage = `usage: migrate <command>

commands:
  up                 apply all pending migrations
  down [n]           roll back n migrations (default 1)
  version            print the current schema version
  role <user> <role> set a profile's role (user or admin)`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.MustLoad()
	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	db, err := store.NewStore(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	err = run(db, os.Args[1:])
	db.Close()
	if err != nil {
		logger.Error("Command failed", zap.String("command", os.Args[1]), zap.Error(err))
		util.SyncLogger()
		os.Exit(1)
	}
}

func run(db *store.Store, args []string) error {
	logger := util.GetLogger()

	switch args[0] {
	case "up":
		if err := db.Migrate(); err != nil {
			return err
		}
		logger.Info("Migrations applied")

	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return fmt.Errorf("invalid step count %q", args[1])
			}
			steps = n
		}
		if err := db.MigrateDown(steps); err != nil {
			return err
		}
		logger.Info("Migrations rolled back", zap.Int("steps", steps))

	case "version":
		v, dirty, err := db.MigrationVersion()
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%t\n", v, dirty)

	case "role":
		if len(args) != 3 {
			return fmt.Errorf("role needs <user> <role>")
		}
		role := args[2]
		if role != models.RoleUser && role != models.RoleAdmin {
			return fmt.Errorf("unknown role %q", role)
		}
		if err := db.SetProfileRole(context.Background(), args[1], role); err != nil {
			return err
		}
		logger.Info("Role updated", zap.String("user_id", args[1]), zap.String("role", role))

	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
	return nil
}
