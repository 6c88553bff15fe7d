package api

import (
	"encoding/json"

	"chmura-plikow/internal/config"
	"chmura-plikow/internal/database"
	"chmura-plikow/internal/storage"
	"chmura-plikow/internal/websocket"
)

type Server struct {
	config  *config.Config
	store   *database.Store
	storage *storage.LocalStorage
	wsHub   *websocket.Hub
}

func NewServer(cfg *config.Config, store *database.Store, storage *storage.LocalStorage, wsHub *websocket.Hub) *Server {
	return &Server{
		config:  cfg,
		store:   store,
		storage: storage,
		wsHub:   wsHub,
	}
}

// publishEvent wypycha zdarzenie do podłączonych klientów WS. Wołane dopiero
// po zatwierdzeniu transakcji, żeby klient nie zobaczył zdarzenia, którego
// nie ma w dzienniku.
func (s *Server) publishEvent(userID int64, eventType string, payload interface{}) {
	eventMsg := map[string]interface{}{
		"event_type": eventType,
		"payload":    payload,
	}
	eventBytes, err := json.Marshal(eventMsg)
	if err != nil {
		return
	}
	s.wsHub.PublishEvent(userID, eventBytes)
}
