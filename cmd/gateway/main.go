package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/bz888/llamagate/internal/config"
	"github.com/bz888/llamagate/internal/database"
	"github.com/bz888/llamagate/internal/engine"
	"github.com/bz888/llamagate/internal/handlers"
	"github.com/bz888/llamagate/internal/middleware"
	"github.com/bz888/llamagate/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.LoadGateway()

	db, err := database.Connect(database.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Name:     cfg.DBName,
	})
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}

	eng, err := engine.NewClient(engine.Config{BaseURL: cfg.EngineURL})
	if err != nil {
		log.Fatal("Invalid engine configuration: ", err)
	}

	auth := middleware.NewAuth(cfg.JWTSecret)
	handler := handlers.NewHandler(handlers.Config{
		AdminUser:     cfg.AdminUser,
		AdminPassword: cfg.AdminPassword,
	}, database.NewProjectStore(db), eng, auth)

	srv := server.New(handler, auth)

	log.Printf("Gateway starting on port %s", cfg.Port)
	if err := srv.Listen(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}
