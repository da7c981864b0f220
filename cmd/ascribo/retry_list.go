package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ternarybob/ascribo/internal/common"
	"github.com/ternarybob/ascribo/internal/results"
	storagebadger "github.com/ternarybob/ascribo/internal/storage/badger"
)

func newRetryListCmd() *cobra.Command {
	var (
		outFile string
		fromDB  bool
	)

	retryCmd := &cobra.Command{
		Use:   "retry-list",
		Short: "Extract failed domains into a list ready for a retry run",
		Long: "Reads the failure log (or the run-state database with --from-db) and emits the unique " +
			"failed domains, one per line, suitable as a --domains input for the next run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger := common.InitLogger(config)

			var domains []string
			if fromDB {
				db, err := storagebadger.NewBadgerDB(logger, &config.Storage.Badger)
				if err != nil {
					return err
				}
				defer db.Close()

				domains, err = storagebadger.NewRunStorage(db, logger).ListFailedDomains(context.Background())
				if err != nil {
					return err
				}
				sort.Strings(domains)
			} else {
				failurePath := filepath.Join(config.Results.Dir, config.Results.FailureFile)
				domains, err = results.ExtractRetryList(failurePath)
				if err != nil {
					return err
				}
			}

			if len(domains) == 0 {
				logger.Info().Msg("No failed domains found")
				return nil
			}

			output := strings.Join(domains, "\n") + "\n"
			if outFile == "" {
				fmt.Print(output)
				return nil
			}
			if err := os.WriteFile(outFile, []byte(output), 0644); err != nil {
				return fmt.Errorf("failed to write retry list: %w", err)
			}
			logger.Info().Str("file", outFile).Int("domains", len(domains)).Msg("Wrote retry list")
			return nil
		},
	}

	retryCmd.Flags().StringVarP(&outFile, "out", "o", "", "Write the list to a file instead of stdout")
	retryCmd.Flags().BoolVar(&fromDB, "from-db", false, "Read failed domains from the run-state database instead of the failure log")

	return retryCmd
}
