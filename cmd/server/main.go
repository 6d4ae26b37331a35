/*
main.go - Application entry point

PURPOSE:

	Initializes and starts the inventory engine server. Handles
	configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
 1. Parse command-line flags
 2. Build the shared logger
 3. Initialize SQLite store
 4. Create API handler with dependencies
 5. Configure HTTP router
 6. Start server with graceful shutdown

COMMAND-LINE FLAGS:

	-port        HTTP server port (default: 8080)
	-db          SQLite database path (default: inventory.db)
	             Use ":memory:" for an in-memory database
	-jwt-secret  Secret for signing bearer tokens
	-access-key  Access key exchanged for tokens at /api/auth/login
	-log-level   debug | info | warn | error (default: info)

GRACEFUL SHUTDOWN:

	On SIGINT/SIGTERM:
	1. Stop accepting new connections
	2. Wait for active requests to complete (30s timeout)
	3. Close database connection
	4. Exit

EXAMPLES:

	# Run with file database
	./server -db="./data/inventory.db" -jwt-secret=... -access-key=...

	# Run with in-memory database
	./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trackline/inventory-engine/api"
	"github.com/trackline/inventory-engine/logging"
	"github.com/trackline/inventory-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "inventory.db", "SQLite database path")
	jwtSecret := flag.String("jwt-secret", "", "secret for signing bearer tokens")
	accessKey := flag.String("access-key", "", "access key exchanged for tokens")
	logLevel := flag.String("log-level", "info", "debug|info|warn|error")
	flag.Parse()

	if *jwtSecret == "" || *accessKey == "" {
		log.Fatal("both -jwt-secret and -access-key are required")
	}

	logger := logging.New(*logLevel)

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize handler and router
	handler := api.NewHandler(store, nil, api.Config{
		JWTSecret: *jwtSecret,
		AccessKey: *accessKey,
	}, logger)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.WithField("port", *port).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("server stopped")
}
