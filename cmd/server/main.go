// @title           Chmura Plikow API
// @version         1.0
// @host            localhost
// @schemes         http https
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"log"
	"net/http"

	"chmura-plikow/internal/api"
	"chmura-plikow/internal/config"
	"chmura-plikow/internal/database"
	"chmura-plikow/internal/storage"
	"chmura-plikow/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Nie można wczytać konfiguracji: %v", err)
	}

	dbpool, err := pgxpool.New(context.Background(), cfg.DB.Source)
	if err != nil {
		log.Fatalf("Nie można połączyć się z bazą danych: %v", err)
	}
	defer dbpool.Close()

	if err := dbpool.Ping(context.Background()); err != nil {
		log.Fatalf("Nie można pingować bazy danych: %v", err)
	}
	log.Println("Pomyślnie połączono z bazą danych")

	localStorage, err := storage.NewLocalStorage(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Nie można zainicjować local storage: %v", err)
	}
	log.Printf("Pliki będą przechowywane w: %s", cfg.Storage.Path)

	wsHub := websocket.NewHub()
	go wsHub.Run()

	store := database.NewStore(dbpool)
	server := api.NewServer(cfg, store, localStorage, wsHub)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.MetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("https://localhost/swagger/doc.json"),
	))

	r.Get("/ws", server.ServeWsHandler)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Chmura plików działa! Dokumentacja dostępna pod /swagger/index.html"))
	})

	r.Post("/api/v1/auth/register", server.RegisterHandler)
	r.Post("/api/v1/auth/login", server.LoginHandler)
	r.Post("/api/v1/auth/refresh", server.RefreshTokenHandler)
	r.Post("/api/v1/auth/forgot-password", server.ForgotPasswordHandler)
	r.Post("/api/v1/auth/reset-password", server.ResetPasswordHandler)

	r.Get("/health", server.HealthCheckHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(server.AuthMiddleware)
		r.Get("/me", server.GetCurrentUserHandler)
		r.Patch("/me", server.UpdateProfileHandler)
		r.Delete("/me", server.DeleteAccountHandler)
		r.Get("/me/storage", server.GetStorageUsageHandler)
		r.Get("/sessions", server.ListSessionsHandler)
		r.Delete("/sessions", server.DeleteAllSessionsHandler)
		r.Delete("/sessions/{sessionId}", server.DeleteSessionHandler)
		r.Get("/files", server.ListEntriesHandler)
		r.Post("/files", server.UploadFileHandler)
		r.Post("/files/note", server.CreateNoteHandler)
		r.Post("/files/folder", server.CreateFolderHandler)
		r.Get("/files/recent", server.RecentHandler)
		r.Get("/files/favorites", server.ListFavoritesHandler)
		r.Get("/files/calendar", server.CalendarHandler)
		r.Get("/files/usage", server.GetStorageUsageHandler)
		r.Get("/files/shared-with-me", server.SharedWithMeHandler)
		r.Get("/files/{fileId}", server.GetEntryHandler)
		r.Get("/files/{fileId}/download", server.DownloadFileHandler)
		r.Patch("/files/{fileId}/rename", server.RenameEntryHandler)
		r.Patch("/files/{fileId}/favorite", server.ToggleFavoriteHandler)
		r.Post("/files/{fileId}/share", server.ShareEntryHandler)
		r.Post("/files/{fileId}/lock", server.LockEntryHandler)
		r.Post("/files/{fileId}/copy", server.CopyEntryHandler)
		r.Post("/files/{fileId}/duplicate", server.DuplicateEntryHandler)
		r.Delete("/files/{fileId}", server.DeleteEntryHandler)
		r.Get("/events", server.GetEventsHandler)
	})

	log.Println("Uruchamianie serwera na porcie :8080")
	if err := http.ListenAndServe(":8080", r); err != nil {
		log.Fatalf("Nie można uruchomić serwera: %v", err)
	}
}
