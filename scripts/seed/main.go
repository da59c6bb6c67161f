// Command seed bootstraps the first admin account so a fresh deployment
// can log in and provision everything else through the API.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/academia-portal-api/pkg/config"
	"github.com/noah-isme/academia-portal-api/pkg/database"
)

func main() {
	var (
		email    string
		password string
		fullName string
	)

	flag.StringVar(&email, "email", "admin@example.com", "Admin email")
	flag.StringVar(&password, "password", "", "Admin password (required)")
	flag.StringVar(&fullName, "name", "Portal Administrator", "Admin full name")
	flag.Parse()

	if password == "" {
		log.Fatal("missing required -password flag")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var existing string
	err = db.GetContext(ctx, &existing, `SELECT id FROM users WHERE email = $1`, email)
	if err == nil {
		log.Printf("admin %s already exists (%s), nothing to do", email, existing)
		return
	}
	if !errors.Is(err, sql.ErrNoRows) {
		log.Fatalf("failed to check existing admin: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, role, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'ADMIN', TRUE, $5, $5)`,
		id, email, string(hash), fullName, now)
	if err != nil {
		log.Fatalf("failed to create admin: %v", err)
	}

	log.Printf("admin %s created (%s)", email, id)
}
