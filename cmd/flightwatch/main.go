package main

import (
	"github.com/joho/godotenv"

	"flightwatch/internal/cli"
)

func main() {
	// Missing .env is fine; env vars may come from the environment.
	_ = godotenv.Load()

	cli.Execute()
}
