// Package main is the entry point for game-show-backend (HTTP + WebSocket).
package main

import (
	"log"

	"github.com/mbendtzen/game-show-backend/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
