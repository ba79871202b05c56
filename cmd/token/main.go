package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dkeye/Talkie/internal/adapters/auth"
	"github.com/dkeye/Talkie/internal/domain"
)

func main() {
	var (
		booking = flag.String("booking", "", "booking code the token is valid for")
		role    = flag.String("role", "passenger", "driver | passenger")
		secret  = flag.String("secret", os.Getenv("TALKIE_AUTH_SECRET"), "HMAC secret (HS256)")
		ttl     = flag.Duration("ttl", auth.DefaultTTL, "token lifetime")
	)
	flag.Parse()

	if *booking == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "usage: token --booking=<code> --role=driver|passenger --secret='<secret>' [--ttl=2h]")
		os.Exit(2)
	}
	r, err := domain.ParseRole(*role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	m, err := auth.NewManager(*secret, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	token, err := m.Issue(domain.ConversationKey(*booking), r)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	claims, err := m.Parse(token)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Println("TOKEN:")
	fmt.Println(token)
	fmt.Println("\nCLAIMS:")
	fmt.Printf("  booking: %s\n", claims.BookingCode)
	fmt.Printf("  role:    %s\n", claims.Role)
	fmt.Printf("  exp:     %s\n", claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
}
