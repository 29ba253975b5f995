// Command token prints a signed bearer token for local testing.
//
//	go run ./cmd/token -sub 6f1c... -role ADMIN -ttl 1h
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/utilities"
)

func main() {
	sub := flag.String("sub", "", "principal id (user_id claim)")
	role := flag.String("role", "USER", "role claim")
	ttl := flag.Duration("ttl", 0, "token lifetime (default JWT_TTL)")
	flag.Parse()

	if *sub == "" {
		fmt.Fprintln(os.Stderr, "token: -sub is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	key, err := cfg.SigningKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "jwt secret: %v\n", err)
		os.Exit(1)
	}

	iss := auth.NewIssuer(key, cfg.Auth.Issuer, cfg.Auth.TTL, utilities.NewIDNode(cfg.SnowflakeNode))
	tok, exp, err := iss.Issue(auth.Principal{ID: *sub, Role: *role}, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Println(tok)
}
