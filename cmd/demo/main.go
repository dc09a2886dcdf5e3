package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/tokengate/tokengate/pkg/tokengate"
)

func main() {
	port := flag.String("port", "8080", "Port to run the server on")
	configFile := flag.String("config", "cmd/demo/config.yaml", "Path to configuration file")
	flag.Parse()

	log.Println("Loading configuration from:", *configFile)
	limiter, err := tokengate.NewRateLimiter(
		tokengate.WithConfigFile(*configFile),
	)
	if err != nil {
		log.Fatalf("Failed to create rate limiter: %v", err)
	}

	stopCleanup := limiter.StartBackgroundCleanup()
	defer stopCleanup()

	mux := http.NewServeMux()

	// Health check endpoint (no rate limiting)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// API endpoints with per-route rate limits from the config file
	mux.Handle("/api/search", limiter.Middleware(http.HandlerFunc(search)))
	mux.Handle("/api/create", limiter.Middleware(http.HandlerFunc(create)))
	mux.Handle("/api/login", limiter.Middleware(http.HandlerFunc(login)))
	mux.Handle("/api/update", limiter.Middleware(http.HandlerFunc(update)))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, `Rate limit demo server

Available endpoints:
  GET  /health       - Health check (no rate limit)
  GET  /api/search   - Lenient limit
  POST /api/create   - Moderate limit
  POST /api/login    - Strict limit (anti brute-force)
  PUT  /api/update   - Moderate limit

Rate limit headers:
  X-RateLimit-Limit     - Bucket capacity
  X-RateLimit-Remaining - Tokens left
  X-RateLimit-Reset     - Unix timestamp when the bucket refills
  Retry-After           - Seconds to wait (when rate limited)
`)
	})

	addr := ":" + *port
	log.Printf("Demo server listening on http://localhost%s", addr)
	log.Println("Try these commands:")
	log.Printf("  curl http://localhost%s/api/search?q=golang", *port)
	log.Printf("  curl -X POST http://localhost%s/api/login", *port)
	log.Println("")

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		query = "all"
	}
	writeJSON(w, map[string]interface{}{
		"query":   query,
		"results": []string{"result1", "result2", "result3"},
	})
}

func create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]string{"message": "resource created"})
}

func login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]string{"message": "login accepted"})
}

func update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]string{"message": "resource updated"})
}

func writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}
