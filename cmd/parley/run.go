package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/parleylabs/parley/internal/config"
	"github.com/parleylabs/parley/internal/counterparty"
	"github.com/parleylabs/parley/internal/llm"
	"github.com/parleylabs/parley/internal/orchestrator"
	"github.com/parleylabs/parley/internal/scenario"
	"github.com/parleylabs/parley/internal/state"
	"github.com/parleylabs/parley/pkg/models"
)

var (
	runProfile   string
	runMaxRounds int
	runDBPath    string
	runQuiet     bool
)

var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Run a negotiation scenario to completion",
	Long: `Run a negotiation scenario from a YAML file.

The scenario defines the baseline quotation, the counterparties, the
reference counterparty for round 1 staging, and an optional scripted
disruption. Rounds stream to stdout as they complete, and the final
decision is printed as a scored allocation report.

Drop a file named "halt" into <run_dir>/signals to stop the negotiation
at the next round boundary.`,
	Args: cobra.ExactArgs(1),
	RunE: runNegotiation,
}

func init() {
	runCmd.Flags().StringVar(&runProfile, "profile", "", "Decision weight profile: balanced, cost_focused, quality_focused, speed_focused, or cashflow_focused")
	runCmd.Flags().IntVar(&runMaxRounds, "max-rounds", 0, "Round budget (overrides config and scenario)")
	runCmd.Flags().StringVar(&runDBPath, "db", "", "Path to the state database (defaults to the XDG state dir)")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "Suppress per-round progress, print only the final report")
}

func runNegotiation(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	scn, err := scenario.Load(args[0])
	if err != nil {
		return err
	}

	maxRounds := cfg.Negotiation.MaxRounds
	if scn.MaxRounds > 0 {
		maxRounds = scn.MaxRounds
	}
	if runMaxRounds > 0 {
		maxRounds = runMaxRounds
	}

	profile := models.WeightProfile(cfg.Negotiation.WeightProfile)
	if scn.WeightProfile != "" {
		profile = scn.WeightProfile
	}
	if runProfile != "" {
		profile = models.WeightProfile(runProfile)
	}
	if !profile.Valid() {
		return fmt.Errorf("unknown weight profile %q", profile)
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

	dbPath := runDBPath
	if dbPath == "" {
		dbPath = state.DefaultDBPath()
	}
	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	halt, err := orchestrator.NewHaltWatcher(cfg.Negotiation.RunDir)
	if err != nil {
		return fmt.Errorf("watch halt signals: %w", err)
	}
	defer halt.Close()

	opts := []orchestrator.Option{
		orchestrator.WithMaxRounds(maxRounds),
		orchestrator.WithWeightProfile(profile),
		orchestrator.WithHaltWatcher(halt),
	}
	if scn.Disruption != nil {
		opts = append(opts, orchestrator.WithDisruption(scn.Disruption.TargetID, scn.Disruption.Condition))
		if scn.Disruption.Round > 0 {
			opts = append(opts, orchestrator.WithDisruptionRound(scn.Disruption.Round))
		}
		if scn.Disruption.CapacityFraction > 0 {
			opts = append(opts, orchestrator.WithDisruptionCapacity(scn.Disruption.CapacityFraction))
		}
	}

	orch, err := orchestrator.New(orchestrator.RequiredConfig{
		Completer:      client,
		Store:          db,
		Responder:      counterparty.NewSimulatedAgent(client, scn.Baseline),
		Baseline:       scn.Baseline,
		Counterparties: scn.Counterparties,
		ReferenceID:    scn.ReferenceID,
	}, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt, shutting down...")
		cancel()
	}()

	names := make(map[string]string, len(scn.Counterparties))
	for _, p := range scn.Counterparties {
		names[p.ID] = p.Name
	}

	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		consumeEvents(orch.Events(), names)
	}()

	fmt.Printf("Scenario: %s\n", scn.Name)
	fmt.Printf("  Negotiation: %s\n", orch.ID())
	fmt.Printf("  Counterparties: %d (reference: %s)\n", len(scn.Counterparties), names[scn.ReferenceID])
	fmt.Printf("  Rounds: %d, profile: %s\n\n", maxRounds, profile)

	decision, err := orch.Run(ctx)
	<-eventsDone
	if err != nil {
		return fmt.Errorf("negotiation failed: %w", err)
	}

	printDecision(decision, names)
	printUsage(orch.Usage())
	return nil
}

// consumeEvents prints the lifecycle stream until the channel closes.
func consumeEvents(events <-chan orchestrator.Event, names map[string]string) {
	for ev := range events {
		if runQuiet {
			continue
		}
		name := names[ev.CounterpartyID]
		switch ev.Type {
		case orchestrator.EventRoundStart:
			fmt.Printf("Round %d: negotiating with %s\n", ev.Round, name)
		case orchestrator.EventOfferExtracted:
			if ev.Offer != nil {
				fmt.Printf("Round %d: %s offers $%.2f (lead %dd, %s)\n",
					ev.Round, name, ev.Offer.TotalCost, ev.Offer.LeadTimeDays, ev.Offer.PaymentTerms)
			}
		case orchestrator.EventDisruptionDetected:
			color.Yellow("Disruption: %s hit by capacity constraint", name)
		case orchestrator.EventDisruptionAnalysis:
			if ev.Analysis != nil {
				fmt.Printf("Disruption analysis: %s\n", ev.Analysis.Recommendation)
			}
		case orchestrator.EventError:
			color.Red("Error: %s", ev.Message)
		}
	}
}

// printDecision renders the final decision as a scored allocation report.
func printDecision(d *models.FinalDecision, names map[string]string) {
	bold := color.New(color.Bold)

	fmt.Println()
	bold.Println("=== Final Decision ===")
	fmt.Println()

	ids := make([]string, 0, len(d.Scores))
	for id := range d.Scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return d.Scores[ids[i]].Total > d.Scores[ids[j]].Total
	})

	fmt.Printf("%-24s %8s %8s %8s %8s %8s\n", "Counterparty", "Cost", "Quality", "Lead", "Terms", "Total")
	for _, id := range ids {
		s := d.Scores[id]
		line := fmt.Sprintf("%-24s %8.1f %8.1f %8.1f %8.1f %8.1f",
			displayName(names, id), s.Cost, s.Quality, s.LeadTime, s.Terms, s.Total)
		if id == d.Recommendation.Primary {
			color.Green("%s", line)
		} else {
			fmt.Println(line)
		}
	}

	fmt.Println()
	if d.Recommendation.SplitOrder {
		bold.Println("Split order:")
	} else {
		bold.Printf("Award: %s\n", displayName(names, d.Recommendation.Primary))
	}
	for _, a := range d.Recommendation.Allocations {
		fmt.Printf("  %s: %.1f%% at $%.2f (lead %dd, %s)\n",
			displayName(names, a.CounterpartyID), a.Percent, a.Cost, a.LeadTimeDays, a.PaymentTerms)
		for _, item := range a.Items {
			fmt.Printf("    %-12s x%d\n", item.SKU, item.Quantity)
		}
	}

	if d.Summary != "" {
		fmt.Printf("\n%s\n", d.Summary)
	}
	if d.Tradeoffs != "" {
		fmt.Printf("\nTradeoffs: %s\n", d.Tradeoffs)
	}
}

func printUsage(usage *llm.UsageTracker) {
	in, out := usage.Totals()
	fmt.Printf("\nUsage: %d calls, %d in / %d out tokens, ~$%.4f\n",
		usage.Calls(), in, out, usage.Cost())
}

func displayName(names map[string]string, id string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return id
}
