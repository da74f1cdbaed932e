// Command token mints bearer tokens for admins and internal callers.
//
//	go run ./cmd/token -sub <admin-id> -role super_admin -ttl 24h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/heartsound/report-backend-go/internal/middleware"
)

func main() {
	_ = godotenv.Load()

	subject := flag.String("sub", "", "admin id carried as the token subject")
	role := flag.String("role", middleware.RoleAdmin, "admin | super_admin | service")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is required")
		os.Exit(1)
	}
	if *subject == "" {
		fmt.Fprintln(os.Stderr, "-sub is required")
		os.Exit(1)
	}

	token, err := middleware.NewToken(secret, *subject, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to sign token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
