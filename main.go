package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"taskbot-project/taskbot-service/clients/slack"
	"taskbot-project/taskbot-service/handlers"
	"taskbot-project/taskbot-service/logging"
	"taskbot-project/taskbot-service/repositories"
	"taskbot-project/taskbot-service/services"
	"taskbot-project/taskbot-service/utils"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	logging.InitLogger()

	logging.Logger.Info("Event ID: SERVICE_START, Description: Starting Taskbot Service...")
	err := godotenv.Load(".env")
	if err != nil {
		logging.Logger.Fatalf("Event ID: ENV_LOAD_ERROR, Description: Error loading .env file: %v", err)
	}

	mongoURI := os.Getenv("MONGO_URI")
	mongoDBName := os.Getenv("MONGO_DB_NAME")
	slackToken := os.Getenv("SLACK_BOT_TOKEN")
	signingSecret := os.Getenv("SLACK_SIGNING_SECRET")
	if slackToken == "" || signingSecret == "" {
		logging.Logger.Fatalf("Event ID: CONFIG_ERROR, Description: SLACK_BOT_TOKEN and SLACK_SIGNING_SECRET must be set.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		logging.Logger.Fatalf("Event ID: DB_CONNECTION_FAILED, Description: Database connection for MongoDB failed: %v", err)
	}
	defer mongoClient.Disconnect(ctx)

	if err := mongoClient.Ping(ctx, nil); err != nil {
		logging.Logger.Fatalf("Event ID: DB_PING_FAILED, Description: MongoDB connection ping error: %v", err)
	}
	logging.Logger.Infof("Event ID: DB_CONNECTED, Description: Successfully connected to MongoDB at %s.", mongoURI)

	db := mongoClient.Database(mongoDBName)
	taskRepo := repositories.NewTaskRepository(db)
	cardRepo := repositories.NewThreadCardRepository(db)
	if err := taskRepo.EnsureIndexes(ctx); err != nil {
		logging.Logger.Fatalf("Event ID: DB_INDEX_FAILED, Description: %v", err)
	}
	if err := cardRepo.EnsureIndexes(ctx); err != nil {
		logging.Logger.Fatalf("Event ID: DB_INDEX_FAILED, Description: %v", err)
	}

	notificationRepo, err := repositories.NewNotificationRepo()
	if err != nil {
		logging.Logger.Fatalf("Event ID: CASSANDRA_INIT_FAILED, Description: Failed to initialize notification repository: %v", err)
	}
	defer notificationRepo.CloseSession()
	notificationRepo.CreateTable()

	neo4jUri := os.Getenv("NEO4J_URI")
	neo4jUser := os.Getenv("NEO4J_USERNAME")
	neo4jPassword := os.Getenv("NEO4J_PASSWORD")
	if neo4jUri == "" || neo4jUser == "" || neo4jPassword == "" {
		logging.Logger.Fatalf("Event ID: CONFIG_ERROR, Description: Neo4j connection details are missing in .env")
	}
	driver, err := neo4j.NewDriverWithContext(neo4jUri, neo4j.BasicAuth(neo4jUser, neo4jPassword, ""))
	if err != nil {
		logging.Logger.Fatalf("Event ID: NEO4J_CONNECTION_FAILED, Description: Failed to create Neo4j driver: %v", err)
	}
	defer driver.Close(context.Background())

	slackBreaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "SlackAPICB",
		MaxRequests: 1,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Logger.Infof("Event ID: CIRCUIT_BREAKER_STATE_CHANGE, Description: Circuit Breaker '%s' changed from '%s' to '%s'", name, from.String(), to.String())
		},
	})

	httpClient := utils.NewHTTPClient()
	slackClient := slack.NewClient(slackToken, httpClient, slackBreaker)

	directoryService := services.NewDirectoryService(driver)
	notificationService := services.NewNotificationService(notificationRepo, slackClient)
	cardService := services.NewThreadCardService(cardRepo, slackClient)
	homeService := services.NewHomeService(taskRepo, slackClient, directoryService)
	progressService := services.NewProgressService(taskRepo, notificationService)
	taskService := services.NewTaskService(taskRepo, cardService, progressService, notificationService, homeService, slackClient, slackClient, slackClient)

	slackHandler := handlers.NewSlackHandler(taskService, slackClient, os.Getenv("TRIGGER_EMOJI"))
	taskHandler := handlers.NewTaskHandler(taskService, notificationService)

	r := mux.NewRouter()

	slackRoutes := r.PathPrefix("/api/slack").Subrouter()
	slackRoutes.Use(handlers.NewSlackVerifier(signingSecret))
	slackRoutes.HandleFunc("/events", slackHandler.HandleEvents).Methods("POST")
	slackRoutes.HandleFunc("/interactions", slackHandler.HandleInteractions).Methods("POST")

	r.HandleFunc("/api/tasks/{teamID}/user/{userID}", taskHandler.GetTasksForUser).Methods("GET")
	r.HandleFunc("/api/tasks/{teamID}/{taskID}", taskHandler.GetTaskByID).Methods("GET")
	r.HandleFunc("/api/notifications/read", taskHandler.MarkNotificationAsRead).Methods("PUT")
	r.HandleFunc("/api/notifications/{userID}", taskHandler.GetNotificationsForUser).Methods("GET")
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Taskbot service is running"))
	}).Methods("GET")

	corsRouter := enableCORS(r)

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		logging.Logger.Fatalf("Event ID: CONFIG_ERROR, Description: SERVER_PORT is not set in the environment variables.")
	}

	serverAddress := fmt.Sprintf(":%s", serverPort)
	logging.Logger.Infof("Event ID: SERVER_START_INFO, Description: Server running on http://localhost%s", serverAddress)

	if err := http.ListenAndServe(serverAddress, corsRouter); err != nil {
		logging.Logger.Fatalf("Event ID: SERVER_FATAL_ERROR, Description: Server failed to start: %v", err)
	}
}
