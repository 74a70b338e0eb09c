package main

import (
	"apy-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
