package main

import (
	"lodestar/cmd/cmd"
	"lodestar/internal/logger"
)

func main() {
	logger.Init("info")
	cmd.Execute()
}
