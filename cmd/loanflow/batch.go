package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/nilayparikh/loanflow/escalation"
	"github.com/nilayparikh/loanflow/fixtures"
	"github.com/nilayparikh/loanflow/loan"
	"github.com/nilayparikh/loanflow/pipeline"
	"github.com/nilayparikh/loanflow/riskmodel"
)

// runBatch pushes the sample applicants through the pipeline and prints
// the routing table. It runs against an in-memory review queue, so it
// needs no database; when the scoring endpoint is unreachable the runs
// degrade to rule-only scoring and still complete.
func runBatch(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	concurrency := fs.Int("concurrency", 0, "parallel runs (0 uses the configured batch concurrency)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	store := escalation.NewMemoryStore()
	defer store.Close()

	provider := riskmodel.NewClient(riskmodel.Config{
		ProviderName: cfg.RiskModel.ProviderName,
		BaseURL:      cfg.RiskModel.BaseURL,
		APIKey:       cfg.RiskModel.APIKey,
		Model:        cfg.RiskModel.Model,
		EndpointPath: cfg.RiskModel.EndpointPath,
		Timeout:      cfg.RiskModel.Timeout,
		Temperature:  cfg.RiskModel.Temperature,
		MaxTokens:    cfg.RiskModel.MaxTokens,
	}, logger)

	pipe, err := pipeline.New(pipeline.Config{
		Thresholds: loan.Thresholds{
			Approve: cfg.Pipeline.ApproveThreshold,
			Decline: cfg.Pipeline.DeclineThreshold,
		},
		ModelTimeout: cfg.Pipeline.ModelTimeout,
	}, pipeline.Dependencies{
		Provider: provider,
		Store:    store,
		Logger:   logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipeline error: %v\n", err)
		os.Exit(1)
	}

	workers := *concurrency
	if workers <= 0 {
		workers = cfg.Pipeline.BatchConcurrency
	}

	apps := fixtures.SampleApplications()
	logger.Info("processing sample batch",
		zap.Int("applications", len(apps)),
		zap.Int("concurrency", workers),
	)

	items := pipe.ProcessBatch(context.Background(), apps, workers)
	printBatchTable(items)
}

func printBatchTable(items []pipeline.BatchItem) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "APPLICANT\tNAME\tOUTCOME\tSCORE\tREASON")

	var approved, declined, escalated, rejected, degraded, failed int
	for _, item := range items {
		if item.Err != nil {
			failed++
			fmt.Fprintf(w, "%s\t%s\tERROR\t-\t%v\n", item.Application.ApplicantID, item.Application.FullName, item.Err)
			continue
		}

		result := item.Result
		score := "-"
		if result.Assessment != nil {
			score = fmt.Sprintf("%.1f", result.Assessment.CompositeScore)
			if result.Assessment.Degraded {
				score += "*"
				degraded++
			}
		}

		outcome := result.Outcome()
		switch outcome {
		case loan.OutcomeApproved:
			approved++
		case loan.OutcomeDeclined:
			declined++
		case loan.OutcomePendingReview:
			escalated++
		case loan.OutcomeRejected:
			rejected++
		}

		reason := ""
		if result.Decision != nil {
			reason = result.Decision.Reason
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			item.Application.ApplicantID, item.Application.FullName, outcome, score, reason)
	}
	w.Flush()

	fmt.Printf("\n%d processed: %d approved, %d declined, %d escalated, %d rejected",
		len(items), approved, declined, escalated, rejected)
	if failed > 0 {
		fmt.Printf(", %d failed", failed)
	}
	fmt.Println()
	if degraded > 0 {
		fmt.Printf("* %d run(s) scored rules-only because the model was unavailable\n", degraded)
	}
}
