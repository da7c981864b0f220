package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ascribo/internal/browser"
	"github.com/ternarybob/ascribo/internal/common"
	"github.com/ternarybob/ascribo/internal/loader"
	"github.com/ternarybob/ascribo/internal/models"
	"github.com/ternarybob/ascribo/internal/notify"
	"github.com/ternarybob/ascribo/internal/processor"
	"github.com/ternarybob/ascribo/internal/results"
	"github.com/ternarybob/ascribo/internal/scheduler"
	storagebadger "github.com/ternarybob/ascribo/internal/storage/badger"
	"github.com/ternarybob/ascribo/internal/strategies"
)

func newRunCmd() *cobra.Command {
	var (
		domainsFile string
		emailsFile  string
		concurrency int
		batchSize   int
		startBatch  int
		dryRun      bool
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a signup campaign over a domain list",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			common.ApplyFlagOverrides(config, domainsFile, emailsFile, concurrency, batchSize)

			logger := common.InitLogger(config)
			common.PrintBanner(common.GetVersion())

			domains, err := loader.LoadDomains(config.Inputs.DomainsFile)
			if err != nil {
				return err
			}
			emails, err := loader.LoadEmails(config.Inputs.EmailsFile)
			if err != nil {
				return err
			}

			if dryRun {
				return printPlan(config, domains, emails, startBatch)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if config.Campaign.Schedule != "" {
				return runScheduled(ctx, config, logger, domains, emails, startBatch)
			}
			return runCampaign(ctx, config, logger, domains, emails, startBatch)
		},
	}

	runCmd.Flags().StringVar(&domainsFile, "domains", "", "Domains file (overrides config)")
	runCmd.Flags().StringVar(&emailsFile, "emails", "", "Emails file (overrides config)")
	runCmd.Flags().IntVar(&concurrency, "concurrency", 0, "Session pool concurrency (overrides config)")
	runCmd.Flags().IntVar(&batchSize, "batch-size", 0, "Batch size (overrides config)")
	runCmd.Flags().IntVar(&startBatch, "start-batch", 1, "Resume from this batch number (1-based)")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the run plan without touching the provider")

	return runCmd
}

// runCampaign wires the full pipeline and executes one campaign run
func runCampaign(ctx context.Context, config *common.Config, logger arbor.ILogger, domains []models.Domain, emails *models.EmailPool, startBatch int) error {
	db, err := storagebadger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return err
	}
	defer db.Close()
	runStore := storagebadger.NewRunStorage(db, logger)

	writer, err := results.NewWriter(&config.Results)
	if err != nil {
		return err
	}
	defer writer.Close()

	specs := strategies.DefaultStrategies()
	if config.Strategies.File != "" {
		specs, err = strategies.LoadStrategies(config.Strategies.File)
		if err != nil {
			return err
		}
		logger.Info().Str("file", config.Strategies.File).Int("strategies", len(specs)).Msg("Loaded strategy overrides")
	}

	stats := models.NewRunStats()
	provider := browser.NewProviderClient(&config.Provider)
	pool := browser.NewSessionPool(provider, config.Pool.MaxSize, stats)
	defer pool.Shutdown(context.Background())

	connector := browser.NewConnector(&config.Browser)
	chain := strategies.NewChain(specs, &config.Browser)
	proc := processor.NewProcessor(pool, connector, chain, emails, config)
	notifier := notify.NewNotifier(&config.Notify)

	sched := scheduler.NewScheduler(proc, writer, runStore, notifier, stats, config)
	_, err = sched.Run(ctx, domains, startBatch)
	return err
}

// runScheduled executes the campaign on a cron schedule until the context
// is cancelled. Overlapping runs are skipped, never queued.
func runScheduled(ctx context.Context, config *common.Config, logger arbor.ILogger, domains []models.Domain, emails *models.EmailPool, startBatch int) error {
	var running sync.Mutex

	c := cron.New()
	_, err := c.AddFunc(config.Campaign.Schedule, func() {
		if !running.TryLock() {
			logger.Warn().Msg("Previous scheduled run still in progress, skipping this trigger")
			return
		}
		defer running.Unlock()

		logger.Info().Str("schedule", config.Campaign.Schedule).Msg("Scheduled run triggered")
		if err := runCampaign(ctx, config, logger, domains, emails, startBatch); err != nil {
			logger.Error().Err(err).Msg("Scheduled run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", config.Campaign.Schedule, err)
	}

	logger.Info().Str("schedule", config.Campaign.Schedule).Msg("Running on schedule, interrupt to stop")
	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

func printPlan(config *common.Config, domains []models.Domain, emails *models.EmailPool, startBatch int) error {
	batchSize := config.EffectiveBatchSize()
	totalBatches := (len(domains) + batchSize - 1) / batchSize

	fmt.Printf("Dry run plan\n")
	fmt.Printf("  domains:      %d\n", len(domains))
	fmt.Printf("  emails:       %d\n", emails.Len())
	fmt.Printf("  batch size:   %d\n", batchSize)
	fmt.Printf("  batches:      %d (starting at %d)\n", totalBatches, startBatch)
	fmt.Printf("  max retries:  %d\n", config.Campaign.MaxRetries)
	fmt.Printf("  provider:     %s\n", config.Provider.BaseURL)
	fmt.Printf("  results dir:  %s\n", config.Results.Dir)
	return nil
}
