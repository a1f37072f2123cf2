package main

import (
	"log"
	"strings"

	"github.com/nema-ac/worminal/internal/config"
	"github.com/nema-ac/worminal/internal/simulator"
)

func main() {
	cfg := config.Load()

	users := make(map[string]string)
	for _, pair := range strings.Split(cfg.SimUsers, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 && parts[0] != "" {
			users[parts[0]] = parts[1]
		}
	}

	srv, err := simulator.NewServer(simulator.ServerConfig{
		JWTSecret:       cfg.JWTSecret,
		Users:           users,
		Owner:           cfg.SimOwner,
		OpenForAnyone:   cfg.SimOpenToAnyone,
		SessionDuration: cfg.SimDuration,
		PromptLimit:     cfg.SimPromptLimit,
	})
	if err != nil {
		log.Fatalf("failed to build simulator: %v", err)
	}
	defer srv.Close()

	if err := srv.Run(":" + cfg.SimPort); err != nil {
		log.Fatalf("failed to start simulator: %v", err)
	}
}
