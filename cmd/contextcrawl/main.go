package main

import (
	cmd "github.com/contextcrawl/contextcrawl/internal/cli"
)

func main() {
	cmd.Execute()
}
