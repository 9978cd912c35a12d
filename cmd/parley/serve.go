package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parleylabs/parley/internal/config"
	"github.com/parleylabs/parley/internal/llm"
	"github.com/parleylabs/parley/internal/server"
	"github.com/parleylabs/parley/internal/state"
	"github.com/parleylabs/parley/pkg/models"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve negotiations over HTTP",
	Long: `Start the HTTP API.

POST /api/negotiations           start a negotiation from a scenario body
GET  /api/negotiations/{id}/events    live SSE event stream
GET  /api/negotiations/{id}/decision  final decision once committed
GET  /health                     liveness and version`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	client, err := llm.NewClient(llm.ClientConfig{
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Bedrock.Enabled,
		AWSRegion:     cfg.Bedrock.Region,
		Limiter:       llm.NewLimiter(cfg.Limits.FastSlots, cfg.Limits.ReasoningSlots),
	})
	if err != nil {
		return err
	}

	db, err := state.Open(state.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	manager := server.NewManager(db, client, server.Defaults{
		MaxRounds:     cfg.Negotiation.MaxRounds,
		WeightProfile: models.WeightProfile(cfg.Negotiation.WeightProfile),
	})

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	return server.New(manager, db).ListenAndServe(addr)
}
