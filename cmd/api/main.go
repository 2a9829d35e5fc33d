package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/api/handlers"
	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/api/middleware"
	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/database"
	"github.com/progate-hackathon-strawberry-flavor/SCHNOZ-backend/internal/services/schnoz"
)

// defaultTurnDurationSeconds はターン制限時間のデフォルト値です。
const defaultTurnDurationSeconds = 30

func main() {
	if os.Getenv("APP_ENV") != "production" {
		err := godotenv.Load()
		if err != nil {
			log.Printf("warning: Error loading .env file (this is fine in production): %v", err)
		}
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	dbService, err := database.NewDatabaseService(databaseURL)
	if err != nil {
		log.Fatalf("データベースの初期化に失敗しました: %v", err)
	}
	defer dbService.Close()

	turnDuration := time.Duration(defaultTurnDurationSeconds) * time.Second
	if raw := os.Getenv("TURN_DURATION_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 0 {
			log.Fatalf("TURN_DURATION_SECONDS の値が不正です: %s", raw)
		}
		turnDuration = time.Duration(seconds) * time.Second
	}

	store := database.NewStore(dbService)
	sessionManager := schnoz.NewSessionManager(store, turnDuration)
	defer sessionManager.Shutdown()

	matchHandler := handlers.NewMatchHandler(store, sessionManager)

	r := mux.NewRouter()
	r.Use(middleware.CORSHandler())

	// マッチのセットアップ用REST API
	r.HandleFunc("/api/matches", matchHandler.CreateMatch).Methods("POST")
	r.HandleFunc("/api/matches/{matchID}/join", matchHandler.JoinMatch).Methods("POST")
	r.HandleFunc("/api/matches/{matchID}", matchHandler.GetMatch).Methods("GET")

	// ゲーム進行用WebSocketエンドポイント
	r.HandleFunc("/ws/match/{matchID}", matchHandler.HandleWebSocketConnection)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Server starting on :%s", port)
	log.Fatal(http.ListenAndServe(":"+port, r))
}
