package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"croupier/internal/server"
)

func main() {
	srv := server.New()
	srv.RegisterFiberRoutes()

	port := getEnvAsInt("PORT", 8080)
	go func() {
		if err := srv.Listen(":" + strconv.Itoa(port)); err != nil {
			log.Fatalf("[MAIN] Server error: %v", err)
		}
	}()

	log.Printf("[MAIN] Listening on :%d", port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[MAIN] Shutdown signal received")
	if err := srv.App.Shutdown(); err != nil {
		log.Printf("[MAIN] Fiber shutdown: %v", err)
	}
	if err := srv.Shutdown(); err != nil {
		log.Printf("[MAIN] Shutdown: %v", err)
	}
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
