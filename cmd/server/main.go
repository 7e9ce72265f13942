package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/shopit/backend/internal/config"
	"github.com/shopit/backend/internal/es"
	"github.com/shopit/backend/internal/handlers"
	carthdl "github.com/shopit/backend/internal/handlers/cart"
	"github.com/shopit/backend/internal/logging"
	authmw "github.com/shopit/backend/internal/middleware/auth"
	loggingmw "github.com/shopit/backend/internal/middleware/logging"
	"github.com/shopit/backend/internal/mykafka"
	cartsvc "github.com/shopit/backend/internal/service/cart"
	"github.com/shopit/backend/internal/service/checkout"
	"github.com/shopit/backend/internal/service/token"
	"github.com/shopit/backend/internal/tokens"
	httpserver "github.com/shopit/backend/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("database init error: %v", err)
	}

	var prod *mykafka.Producer
	if configuration.KAFKA_ADDRESS != "" {
		prod = mykafka.NewProducer([]string{configuration.KAFKA_ADDRESS})
	} else {
		logger.Warn("KAFKA_ADDRESS is not set, domain events are disabled")
	}

	var indexer *es.Indexer
	var searchHandler *handlers.SearchHandler
	if configuration.ES_URL != "" {
		esClient, err := es.NewClient(configuration)
		if err != nil {
			log.Fatalf("elasticsearch init error: %v", err)
		}
		indexer = &es.Indexer{Client: esClient, Index: "products"}
		searchHandler = &handlers.SearchHandler{ES: esClient, Index: "products"}
	} else {
		logger.Warn("ES_URL is not set, product search is disabled")
		searchHandler = &handlers.SearchHandler{}
	}

	issuer := tokens.NewIssuer(configuration.JWTSecret, configuration.AccessTokenTTL)
	refresh := &token.Manager{
		DB:      db,
		HMACKey: configuration.RefreshHashSecret,
		TTL:     configuration.RefreshTokenTTL,
		Issuer:  issuer,
	}

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(loggingmw.RequestLogger(logger))

	deps := httpserver.Deps{
		DB: db,
		SessionFilter: &authmw.SessionFilter{
			DB:             db,
			Issuer:         issuer,
			PublicPrefixes: httpserver.PublicPrefixes,
		},
		AuthHandler:     &handlers.AuthHandler{DB: db, Issuer: issuer, Refresh: refresh, Producer: prod},
		ProductHandler:  &handlers.ProductHandler{DB: db, Producer: prod, Indexer: indexer},
		CategoryHandler: &handlers.CategoryHandler{DB: db},
		AddressHandler:  &handlers.AddressHandler{DB: db},
		CartHandler:     &carthdl.CartHandler{Cart: &cartsvc.Service{DB: db}, Producer: prod},
		OrderHandler:    &handlers.OrderHandler{Engine: &checkout.Engine{DB: db}, Producer: prod},
		SearchHandler:   searchHandler,
	}

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         configuration.HTTP_ADDR,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	} else {
		log.Printf("db() error: %v", err)
	}

	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	logger.Info("shutdown complete")
}
