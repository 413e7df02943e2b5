package main

import (
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	daprd "github.com/dapr/go-sdk/service/http"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/hanamichi-me/DW-traffic/api"
	_ "github.com/hanamichi-me/DW-traffic/docs"
	"github.com/hanamichi-me/DW-traffic/logger"
	"github.com/hanamichi-me/DW-traffic/service"
	"github.com/hanamichi-me/DW-traffic/service/config"
)

// @title Road Fatality Association Rule Mining API
// @version 1.0
// @description 道路死亡事故数据关联规则挖掘服务，提供单次挖掘、参数扫描和定时调度功能
// @BasePath /
func main() {
	configPath := flag.String("config", "", "YAML configuration file (overrides "+config.EnvConfigFile+")")
	flag.Parse()

	logger.InitLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("configuration", "error", err)
		os.Exit(1)
	}
	if err := service.Init(cfg); err != nil {
		slog.Error("service initialisation", "error", err)
		os.Exit(1)
	}
	defer service.Shutdown()

	mux := chi.NewRouter()
	if cfg.Server.BaseContext != "" {
		mux.Route(cfg.Server.BaseContext, func(r chi.Router) {
			subMux := r.(*chi.Mux)
			api.InitRoute(subMux)
			r.Handle("/metrics", promhttp.Handler())
			r.Handle("/swagger*", httpSwagger.WrapHandler)
		})
	} else {
		api.InitRoute(mux)
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/swagger*", httpSwagger.WrapHandler)
	}

	s := daprd.NewServiceWithMux(":"+strconv.Itoa(cfg.Server.Port), mux)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		slog.Info("shutting down")
		if err := s.GracefulStop(); err != nil {
			slog.Error("graceful stop", "error", err)
		}
	}()

	slog.Info("listening", "port", cfg.Server.Port, "base_context", cfg.Server.BaseContext)
	if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server", "error", err)
		os.Exit(1)
	}
}
