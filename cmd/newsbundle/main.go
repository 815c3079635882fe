package main

import (
	"newsbundle/cmd/handlers"
	"newsbundle/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger
	handlers.Execute()
}
