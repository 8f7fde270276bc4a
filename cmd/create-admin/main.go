// Command create-admin creates an admin account or promotes an existing one
// and resets its password.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/storehub-api/internal/config"
	"github.com/flicky/storehub-api/internal/model"
	"github.com/flicky/storehub-api/internal/repository"
	"github.com/flicky/storehub-api/internal/service"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	email := flag.String("email", "", "admin email")
	password := flag.String("password", "", "admin password (min 8 characters)")
	firstName := flag.String("first", "Admin", "first name")
	lastName := flag.String("last", "User", "last name")
	flag.Parse()

	addr := strings.ToLower(strings.TrimSpace(*email))
	if addr == "" || len(*password) < 8 {
		log.Error("usage: create-admin -email <email> -password <password>")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DB.DSN())
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	hash, err := service.HashPassword(*password)
	if err != nil {
		log.Error("hash password", "error", err)
		os.Exit(1)
	}

	user := &model.User{Email: addr, PasswordHash: hash, FirstName: *firstName, LastName: *lastName}
	if err := repository.NewUserRepository(pool).UpsertAdmin(ctx, user); err != nil {
		log.Error("create admin", "error", err)
		os.Exit(1)
	}
	log.Info("admin ready", "id", user.ID, "email", user.Email)
}
