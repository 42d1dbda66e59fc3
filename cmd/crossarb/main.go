package main

import (
	"github.com/joho/godotenv"

	"crossarb/internal/cli"
)

func main() {
	// Missing .env is fine; environment variables may come from elsewhere.
	_ = godotenv.Load()

	cli.Execute()
}
