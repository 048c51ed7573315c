package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cryptobot/config"
	"cryptobot/internal/engine"
	"cryptobot/internal/exchange/binance"
	"cryptobot/internal/gateway"
	"cryptobot/internal/journal"
	"cryptobot/internal/logger"
	"cryptobot/internal/metrics"
	redisstore "cryptobot/internal/store/redis"
	"cryptobot/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("cryptobot", slog.LevelInfo)
	log.Println("[bot] starting...")

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Metrics & health ----
	prom := metrics.New()
	health := metrics.NewHealthStatus(cfg.RedisAddr != "")
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Exchange client (loads contracts up front) ----
	bootCtx, bootCancel := context.WithTimeout(ctx, 30*time.Second)
	client, err := binance.NewClient(bootCtx, binance.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		BaseURL:   cfg.BinanceBaseURL,
		WSURL:     cfg.BinanceWSURL,
	})
	bootCancel()
	if err != nil {
		log.Fatalf("[bot] binance client: %v", err)
	}

	// ---- Feed ----
	feed := binance.NewFeed(binance.Config{WSURL: cfg.BinanceWSURL})
	feed.OnReconnect = func() { prom.WSReconnects.Inc() }

	// ---- Trade journal ----
	jnl, err := journal.New(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[bot] journal: %v", err)
	}
	defer jnl.Close()

	// ---- Optional Redis publisher ----
	var pub *redisstore.Publisher
	if cfg.RedisAddr != "" {
		pub, err = redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Fatalf("[bot] redis: %v", err)
		}
		defer pub.Close()
		health.StartLivenessChecker(ctx, pub.Client(), jnl.DB(), 15*time.Second)
	} else {
		log.Println("[bot] REDIS_ADDR empty, dashboard streams disabled")
		health.StartLivenessChecker(ctx, nil, jnl.DB(), 15*time.Second)
	}

	// ---- Engine ----
	exec := strategy.NewExecutor(client, jnl, prom)
	eng := engine.New(engine.Config{
		Client:    client,
		Feed:      feed,
		Executor:  exec,
		Metrics:   prom,
		Health:    health,
		Publisher: pub,
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		feed.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		eng.Run(ctx)
	}()

	// ---- Dashboard gateway ----
	gw := gateway.NewServer(eng, jnl, cfg.GatewayTOTPSecret, gateway.Defaults{
		TakeProfit: cfg.DefaultTakeProfit,
		StopLoss:   cfg.DefaultStopLoss,
		BuyPct:     cfg.DefaultBuyPct,
		SeedLimit:  cfg.SeedCandles,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.Run(ctx, cfg.GatewayAddr, gw); err != nil {
			log.Printf("[bot] gateway: %v", err)
		}
	}()

	log.Printf("[bot] ready: gateway %s, metrics %s, exchange %s",
		cfg.GatewayAddr, cfg.MetricsAddr, cfg.BinanceBaseURL)

	// ---- Wait for shutdown signal ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[bot] shutdown signal received, cleaning up...")
	cancel()

	// Engine liquidates open positions on its way out.
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[bot] shutdown complete.")
}
