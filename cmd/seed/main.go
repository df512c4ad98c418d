// seed inserts development users for local testing of the phone-number change flow. Run with go run ./cmd/seed.
// Idempotent: users that already exist (by email) are skipped. When JWT_PRIVATE_KEY is set it prints an
// access token per user for calling the API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zackweld/crAPI/internal/config"
	"github.com/zackweld/crAPI/internal/db"
	"github.com/zackweld/crAPI/internal/security"
	"github.com/zackweld/crAPI/internal/user/domain"
	userrepo "github.com/zackweld/crAPI/internal/user/repository"
)

var devUsers = []domain.User{
	{ID: "dev-user-001", Email: "dev@example.com", Name: "Dev User", Phone: "+10000000000"},
	{ID: "dev-user-002", Email: "member@example.com", Name: "Member User", Phone: "+10000000001"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := range devUsers {
		u := devUsers[i]
		existing, err := users.GetByEmail(ctx, u.Email)
		if err != nil {
			log.Fatalf("seed check %s: %v", u.Email, err)
		}
		if existing != nil {
			log.Printf("%s already exists (phone %s). Skipping.", u.Email, existing.Phone)
			devUsers[i] = *existing
			continue
		}
		u.Status = domain.UserStatusActive
		u.CreatedAt, u.UpdatedAt = now, now
		if err := users.Create(ctx, &u); err != nil {
			if errors.Is(err, userrepo.ErrPhoneTaken) {
				log.Fatalf("create %s: phone %s belongs to another user", u.Email, u.Phone)
			}
			log.Fatalf("create %s: %v", u.Email, err)
		}
		log.Printf("created %s (phone %s)", u.Email, u.Phone)
	}
	log.Println("Seed completed successfully.")

	if cfg.JWTPrivateKey == "" {
		return
	}
	tokens, err := security.NewTokenProviderFromPEM(cfg.JWTPrivateKey, cfg.JWTPublicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	if err != nil {
		log.Fatalf("token provider: %v", err)
	}
	for _, u := range devUsers {
		tok, exp, err := tokens.IssueAccess(u.ID, u.Email, "user")
		if err != nil {
			log.Fatalf("issue token for %s: %v", u.Email, err)
		}
		fmt.Printf("%s (expires %s):\n  Authorization: Bearer %s\n", u.Email, exp.Format(time.RFC3339), tok)
	}
}
