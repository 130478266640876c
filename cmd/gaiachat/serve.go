package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"gaiachat/internal/config"
	"gaiachat/internal/logger"
	"gaiachat/internal/network"
	"gaiachat/internal/server"
	"gaiachat/internal/services"
	"gaiachat/internal/state"
)

func (a *app) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP chat proxy",
		Long: `Serve the chat, system prompt and storage API.

Configuration comes from flags, the environment (PORT, GAIA_NODE_URL,
GAIA_API_KEY, AUTODRIVE_API_KEY, REOWN_PROJECT_ID, ...) and .env files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg)
		},
	}

	flags := cmd.Flags()
	flags.Int("port", config.DefaultPort, "Port to listen on")
	flags.String("gaia-node-url", "", "Base URL of the Gaia node")
	mustBind(a.v, config.KeyPort, flags.Lookup("port"))
	mustBind(a.v, config.KeyGaiaNodeURL, flags.Lookup("gaia-node-url"))
	return cmd
}

// stack is the wired server and the services behind it.
type stack struct {
	server   *server.Server
	node     *services.GaiaNodeClient
	registry *services.Registry
}

// buildStack wires the services for cfg and initializes them.
func buildStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	catalog, err := network.LoadEmbedded()
	if err != nil {
		return nil, err
	}
	chain := catalog.Default()

	httpClient := &http.Client{Timeout: cfg.UpstreamTimeout}
	store := state.NewSessionStore()
	markdown := services.NewMarkdownService()

	node := services.NewGaiaNodeClient(services.GaiaNodeConfig{
		BaseURL:    cfg.GaiaNodeURL,
		APIKey:     cfg.GaiaAPIKey,
		HTTPClient: httpClient,
	})
	chat := services.NewChatService(node, store, state.NewPromptOverride(), markdown, services.ChatServiceOptions{
		ModelCacheTTL: cfg.ModelCacheTTL,
		NodeConfigTTL: cfg.NodeConfigTTL,
	})
	storage := services.NewLazyAutoDrive(services.AutoDriveConfig{
		APIKey:     cfg.AutoDriveAPIKey,
		APIURL:     cfg.AutoDriveAPIURL,
		HTTPClient: httpClient,
	})
	transcripts := services.NewTranscriptService(store, storage, services.TranscriptServiceOptions{
		Chain:       chain,
		GatewayURL:  cfg.AutoDriveGatewayURL,
		GaiaNodeURL: cfg.GaiaNodeURL,
	})

	registry := services.NewRegistry()
	for _, svc := range []services.Service{markdown, chat, transcripts} {
		if err := registry.RegisterService(svc); err != nil {
			return nil, err
		}
	}
	if err := registry.InitializeAll(ctx); err != nil {
		return nil, err
	}

	srv := server.New(chat, transcripts, server.Options{
		GaiaNodeURL:    cfg.GaiaNodeURL,
		ReownProjectID: cfg.ReownProjectID,
		Chain:          chain,
	})
	return &stack{server: srv, node: node, registry: registry}, nil
}

// serve runs the HTTP server until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config) error {
	st, err := buildStack(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("Services initialized", "count", len(st.registry.GetAllServices()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return st.server.ListenAndServe(gctx, cfg.Addr())
	})
	g.Go(func() error {
		probeNode(gctx, cfg, st.node)
		return nil
	})
	return g.Wait()
}

// probeNode reports whether the node answers, without touching the caches.
func probeNode(ctx context.Context, cfg *config.Config, node *services.GaiaNodeClient) {
	if cfg.AutoDriveAPIKey == "" {
		logger.Warn("AUTODRIVE_API_KEY is not set; storing transcripts will fail")
	}
	if cfg.GaiaNodeURL == "" {
		logger.Warn("GAIA_NODE_URL is not set; chat requests will fail until it is configured")
		return
	}
	if _, err := node.FetchNodeConfig(ctx); err != nil {
		if ctx.Err() == nil {
			logger.Warn("Gaia node is not reachable yet", "node", cfg.GaiaNodeURL, "error", err)
		}
		return
	}
	logger.Info("Gaia node reachable", "node", cfg.GaiaNodeURL)
}
