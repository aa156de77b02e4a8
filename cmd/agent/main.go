package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/KimMachineGun/automemlimit"
	_ "go.uber.org/automaxprocs"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsclientset "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/costscope/costscope-agent/internal/config"
	"github.com/costscope/costscope-agent/internal/errors"
	"github.com/costscope/costscope-agent/internal/health"
	"github.com/costscope/costscope-agent/internal/observability"
	"github.com/costscope/costscope-agent/internal/pricing"
	"github.com/costscope/costscope-agent/internal/publisher"
	"github.com/costscope/costscope-agent/internal/scraper"
	"github.com/costscope/costscope-agent/internal/snapshot"
)

func main() {
	// 1. Load and validate config.
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// 2. Create context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown signal received", "signal", sig)
		cancel()
	}()

	slog.Info("costscope-agent starting",
		"cluster_name", cfg.ClusterName,
		"instance_id", cfg.InstanceID,
		"pricing_url", cfg.PricingURL,
		"scrape_interval", cfg.ScrapeInterval,
	)

	// 3. Create shared infrastructure.
	metrics := observability.NewMetrics()
	errCollector := errors.NewErrorCollector(errors.RealClock{})

	// 4. Build Kubernetes clients.
	restCfg := buildKubeConfig()
	kubeClient := kubernetes.NewForConfigOrDie(restCfg)
	metricsClient := metricsclientset.NewForConfigOrDie(restCfg)

	// 5. Wire the cycle pipeline: reader -> price cache -> publisher.
	reader := snapshot.NewReaderFromClients(
		kubeClient, metricsClient.MetricsV1beta1(),
		cfg.ClusterName, cfg.IgnoreNamespaces,
		errCollector, metrics,
	)
	priceClient := pricing.NewClient(cfg.PricingURL, cfg.PricingTimeout)
	priceCache := pricing.NewCache(priceClient, cfg.PriceTTL, errors.RealClock{}, errCollector, metrics)
	pub := publisher.NewPublisher(metrics.Registry)

	scr := scraper.NewScraper(reader, priceCache, pub,
		cfg.ScrapeInterval, cfg.GatherConcurrency, errCollector, metrics)

	// 6. Start the exposition and health server.
	healthSrv := health.NewServer(cfg.MetricsPort, metrics, scr, errCollector, priceCache, cfg.DebugEndpoints)
	if err := healthSrv.Start(); err != nil {
		slog.Error("failed to start health server", "error", err)
		os.Exit(1)
	}

	// 7. Run the scrape loop (blocks until the context is canceled).
	if err := scr.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("scraper exited with error", "error", err)
	}

	// 8. Graceful shutdown.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Stop(shutdownCtx); err != nil {
		slog.Error("health server shutdown error", "error", err)
	}

	slog.Info("costscope-agent stopped")
}

// buildKubeConfig creates a Kubernetes REST config.
// It tries in-cluster config first, then falls back to kubeconfig file
// (from $KUBECONFIG or the default ~/.kube/config).
func buildKubeConfig() *rest.Config {
	cfg, err := rest.InClusterConfig()
	if err == nil {
		slog.Info("using in-cluster kubernetes config")
		return cfg
	}

	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		kubeconfig = clientcmd.RecommendedHomeFile
	}

	cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		slog.Error("failed to build kubernetes config", "error", err)
		os.Exit(1)
	}
	slog.Info("using kubeconfig file", "path", kubeconfig)
	return cfg
}
