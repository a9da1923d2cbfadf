// Command gateway is the process entrypoint: it loads configuration, opens
// the sqlite-backed stores, wires one breaker registry and one router shared
// by all app families, and serves the HTTP surface described in spec §6.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/cliproxy/gateway/common/client"
	"github.com/cliproxy/gateway/common/config"
	"github.com/cliproxy/gateway/common/logger"
	"github.com/cliproxy/gateway/controller"
	"github.com/cliproxy/gateway/monitor"
	"github.com/cliproxy/gateway/relay/adaptor"
	"github.com/cliproxy/gateway/relay/adaptor/claude"
	"github.com/cliproxy/gateway/relay/adaptor/codex"
	"github.com/cliproxy/gateway/relay/adaptor/gemini"
	"github.com/cliproxy/gateway/relay/billing"
	"github.com/cliproxy/gateway/relay/breaker"
	"github.com/cliproxy/gateway/relay/forwarder"
	"github.com/cliproxy/gateway/relay/model"
	"github.com/cliproxy/gateway/relay/pricing"
	"github.com/cliproxy/gateway/relay/routing"
	"github.com/cliproxy/gateway/relay/store"
	"github.com/cliproxy/gateway/router"
)

func main() {
	config.Load()

	if err := monitor.InitMonitoring(); err != nil {
		logger.Logger.Fatal("init monitoring failed", zap.Error(err))
	}

	client.Init()

	priceTable := pricing.NewTable()
	pricing.Seed(priceTable)

	defaultMultiplier, err := decimal.NewFromString(config.DefaultCostMultiplier)
	if err != nil {
		defaultMultiplier = decimal.NewFromInt(1)
	}

	providerStore, err := store.OpenProviderStore(config.SqlitePath, priceTable, defaultMultiplier, config.DefaultPricingSource)
	if err != nil {
		logger.Logger.Fatal("open provider store failed", zap.Error(err))
	}
	logStore, err := store.OpenLogStore(config.SqlitePath)
	if err != nil {
		logger.Logger.Fatal("open log store failed", zap.Error(err))
	}
	store.SetBackfillPricingTable(priceTable)

	breakerCfg := model.DefaultCircuitBreakerConfig()
	breakers := breaker.NewRegistry(breakerCfg)
	breakers.RecordStateMetrics()

	routerInstance := routing.New(providerStore, breakers)
	statuses := model.NewStatusRegistry()

	adapters := map[model.AppFamily]adaptor.Adapter{
		model.AppFamilyClaude: &claude.Adaptor{},
		model.AppFamilyCodex:  &codex.Adaptor{},
		model.AppFamilyGemini: &gemini.Adaptor{},
	}

	httpClient := client.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	fw := forwarder.New(routerInstance, breakers, providerStore, statuses, adapters, httpClient)
	billingLogger := billing.NewLogger(logStore, priceTable, defaultMultiplier, config.DefaultPricingSource)

	deps := &controller.Deps{
		Router:     routerInstance,
		Breakers:   breakers,
		Providers:  providerStore,
		Status:     statuses,
		Adapters:   adapters,
		Client:     httpClient,
		Forwarder:  fw,
		Billing:    billingLogger,
		MaxRetries: config.MaxRetries,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	router.SetAPIRouter(engine, deps)

	addr := fmt.Sprintf("127.0.0.1:%d", config.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		logger.Logger.Info("gateway listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
