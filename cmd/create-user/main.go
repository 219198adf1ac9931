package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/safar/peptide-shop/internal/config"
	"github.com/safar/peptide-shop/internal/database"
	"github.com/safar/peptide-shop/internal/models"
	"github.com/safar/peptide-shop/internal/store"
	"go.uber.org/zap"
)

func main() {
	emailFlag := flag.String("email", "", "User email")
	nameFlag := flag.String("name", "", "Display name")
	roleFlag := flag.String("role", models.RoleCustomer, "Role: customer, affiliate or admin")
	flag.Parse()

	email := strings.ToLower(strings.TrimSpace(*emailFlag))
	name := strings.TrimSpace(*nameFlag)
	role := strings.TrimSpace(*roleFlag)

	if email == "" || name == "" {
		fmt.Println("Usage:")
		fmt.Println("  go run ./cmd/create-user --email admin@example.com --name \"Shop Admin\" --role admin")
		os.Exit(1)
	}
	if !models.ValidRole(role) {
		fmt.Fprintf(os.Stderr, "Error: unknown role %q\n", role)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	st := store.New(db)

	user, err := st.CreateUser(ctx, email, name, role)
	if err != nil {
		logger.Fatal("Failed to create user", zap.String("email", email), zap.Error(err))
	}

	token, err := st.CreateAPIToken(ctx, user.ID)
	if err != nil {
		logger.Fatal("Failed to issue API token", zap.String("user_id", user.ID.String()), zap.Error(err))
	}

	fmt.Printf("User created\n\n")
	fmt.Printf("User ID: %s\n", user.ID)
	fmt.Printf("Email:   %s\n", user.Email)
	fmt.Printf("Role:    %s\n", user.Role)
	fmt.Printf("\nAPI token (shown once, only a hash is stored):\n")
	fmt.Printf("Authorization: Bearer %s\n", token)
}
