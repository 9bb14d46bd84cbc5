package rest

import (
	"net/http"
	"os"

	"carelink/internal/service"
	"carelink/internal/transport/rest/handler"
	"carelink/internal/transport/ws"

	"github.com/gorilla/mux"
)

// Container holds all dependencies for the router
type Container struct {
	CallService *service.CallService
	WSHandler   *ws.Handler
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	callHandler := handler.NewCallHandler(c.CallService)
	recordHandler := handler.NewRecordHandler(c.CallService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware)

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/calls", callHandler.Create).Methods("POST", "OPTIONS")
	v1.HandleFunc("/calls/active", callHandler.Active).Methods("GET", "OPTIONS")
	v1.HandleFunc("/calls/concluded", callHandler.Concluded).Methods("GET", "OPTIONS")
	v1.HandleFunc("/calls/stats", callHandler.Stats).Methods("GET", "OPTIONS")
	v1.HandleFunc("/calls/{id}", callHandler.Get).Methods("GET", "OPTIONS")
	v1.HandleFunc("/calls/{id}/answer", callHandler.Answer).Methods("POST", "OPTIONS")
	v1.HandleFunc("/calls/{id}/end", callHandler.End).Methods("POST", "OPTIONS")
	v1.HandleFunc("/calls/{id}/status", callHandler.UpdateStatus).Methods("POST", "OPTIONS")
	v1.HandleFunc("/calls/{id}/signals", callHandler.AppendSignal).Methods("POST", "OPTIONS")
	v1.HandleFunc("/calls/{id}/signals", callHandler.ReadSignals).Methods("GET", "OPTIONS")
	v1.HandleFunc("/records", recordHandler.List).Methods("GET", "OPTIONS")

	// WebSocket routes (observer id in query param)
	v1.HandleFunc("/ws/calls/{id}", c.WSHandler.ObserveWS).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		allowedMethods := os.Getenv("CORS_ALLOWED_METHODS")
		if allowedMethods == "" {
			allowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
		}

		allowedHeaders := os.Getenv("CORS_ALLOWED_HEADERS")
		if allowedHeaders == "" {
			allowedHeaders = "Content-Type, Authorization, X-User-ID"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
