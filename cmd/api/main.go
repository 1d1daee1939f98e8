package main

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	fbapp "firebase.google.com/go/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	"tradepost/internal/adapter/api"
	"tradepost/internal/adapter/api/handler"
	apimiddleware "tradepost/internal/adapter/api/middleware"
	"tradepost/internal/adapter/api/router"
	"tradepost/internal/adapter/repository"
	"tradepost/internal/infrastructure/ratelimit"
	"tradepost/internal/infrastructure/realtime"
	"tradepost/internal/infrastructure/storage"
	"tradepost/internal/infrastructure/websocket"
	"tradepost/internal/usecase"
	"tradepost/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	var opts []option.ClientOption
	if serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"); serviceAccountJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(serviceAccountJSON)))
	} else if serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH"); serviceAccountPath != "" {
		opts = append(opts, option.WithCredentialsFile(serviceAccountPath))
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	attachmentStore, err := storage.NewAttachmentStore(ctx, cfg.StorageBucket, opts...)
	if err != nil {
		log.Fatalf("Failed to initialize attachment storage: %v", err)
	}
	defer attachmentStore.Close()

	conversationRepo := repository.NewFirestoreConversationRepository(firestoreClient)
	messageRepo := repository.NewFirestoreMessageRepository(firestoreClient)
	profileRepo := repository.NewFirestoreProfileRepository(firestoreClient)

	hub := websocket.NewManager(cfg.TypingTTL)
	hub.Start(ctx)

	limiter := ratelimit.NewLimiter()
	limiter.StartCleanup(ctx)

	realtimeManager := realtime.NewManager(realtime.NewFirestoreSubscriber(firestoreClient))

	messagingUseCase := usecase.NewMessagingUseCase(
		conversationRepo,
		messageRepo,
		profileRepo,
		realtimeManager,
		hub,
		limiter,
		cfg.ActivateTimeout,
	)
	messagingUseCase.Init(ctx)
	defer messagingUseCase.Dispose()

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(authClient)

	messagingHandler := handler.NewMessagingHandler(messagingUseCase)
	wsHandler := handler.NewWebSocketHandler(hub, authMiddleware)
	attachmentHandler := handler.NewAttachmentHandler(attachmentStore)
	healthHandler := handler.NewHealthHandler()

	e.GET("/health", healthHandler.CheckHealth)

	router.SetupMessagingRouter(e, messagingHandler, authMiddleware)
	router.SetupAttachmentRouter(e, attachmentHandler, authMiddleware)
	router.SetupWebSocketRouter(e, wsHandler)

	log.Printf("Starting server on port %s...", cfg.ServerPort)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
