package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("REMINDBOT_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	client := newAPIClient(apiURL, os.Getenv("REMINDBOT_API_USERNAME"), os.Getenv("REMINDBOT_API_PASSWORD"))

	if err := server.ServeStdio(newServer(client)); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}
