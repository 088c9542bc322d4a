package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/noah-isme/sma-bulletin-api/internal/models"
	"github.com/noah-isme/sma-bulletin-api/internal/service"
	"github.com/noah-isme/sma-bulletin-api/pkg/config"
)

// issue_token signs an access token with the configured JWT secret, for smoke tests and
// service accounts that call the bulletin API directly.
func main() {
	var (
		userID    string
		role      string
		studentID string
		expiry    time.Duration
	)

	flag.StringVar(&userID, "user", "", "User ID placed in the token (required)")
	flag.StringVar(&role, "role", string(models.RoleAdmin), "Role: SUPERADMIN, ADMIN, TEACHER or STUDENT")
	flag.StringVar(&studentID, "student", "", "Student ID for STUDENT tokens")
	flag.DurationVar(&expiry, "expiry", time.Hour, "Token lifetime")
	flag.Parse()

	if userID == "" {
		flag.Usage()
		os.Exit(2)
	}
	switch models.UserRole(role) {
	case models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher:
	case models.RoleStudent:
		if studentID == "" {
			log.Fatal("-student is required for STUDENT tokens")
		}
	default:
		log.Fatalf("unknown role %q", role)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	tokens := service.NewTokenService(service.TokenConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		Expiry: expiry,
	})
	token, expiresAt, err := tokens.IssueToken(userID, models.UserRole(role), studentID)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format(time.RFC3339))
	fmt.Println(token)
}
