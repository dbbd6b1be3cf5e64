package main

import "github.com/bradz86/carpenter-pro-backend/internal/cli"

func main() {
	cli.Execute()
}
