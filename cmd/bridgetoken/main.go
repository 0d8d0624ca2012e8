// bridgetoken issues an HS256 bearer token for a chat-platform bridge calling the relay ingress.
// INGRESS_JWT_SECRET must be set to the secret the relay runs with.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"dm-relay/internal/config"
	"dm-relay/internal/security"
)

func main() {
	bridge := flag.String("bridge", "discord-bridge", "Bridge name carried in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.IngressJWTSecret == "" {
		fmt.Fprintln(os.Stderr, "INGRESS_JWT_SECRET is not set; create a .env or set INGRESS_JWT_SECRET")
		os.Exit(1)
	}

	token, expiresAt, err := security.NewBridgeTokens(cfg.IngressJWTSecret, *ttl).Issue(*bridge)
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue:", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "token for %s expires at %s\n", *bridge, expiresAt.Format(time.RFC3339))
	fmt.Println(token)
}
