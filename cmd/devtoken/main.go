// Command devtoken mints a bearer token for local testing of the HTTP API.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"tripplanner/internal/api"
	"tripplanner/internal/config"
)

func main() {
	account := flag.String("account", "", "account id to place in the token subject")
	ttl := flag.Duration("ttl", 0, "token lifetime; defaults to api.auth.token_ttl")
	flag.Parse()

	if *account == "" {
		fmt.Fprintln(os.Stderr, "usage: devtoken -account <id> [-ttl 1h]")
		os.Exit(2)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	authCfg := cfg.API.Auth
	if *ttl > 0 {
		authCfg.TokenTTL = *ttl
	}
	token, err := api.NewJWTAuth(authCfg).Issue(*account)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires in %s\n", authCfg.TokenTTL.Round(time.Second))
}
