package loader

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/ascribo/internal/common"
	"github.com/ternarybob/ascribo/internal/models"
)

// LoadDomains reads the domain list file, normalizes each row into an
// absolute URL, and silently drops rows that cannot be normalized. Silent
// here means the run continues; every dropped row is still logged at warn
// so bad input is visible without aborting a large batch.
func LoadDomains(path string) ([]models.Domain, error) {
	log := common.GetLogger()

	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}

	domains := make([]models.Domain, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	skipped := 0

	for i, raw := range rows {
		if i == 0 && isHeaderRow(raw, "domain") {
			continue
		}

		normalized, err := models.NormalizeDomain(raw)
		if err != nil {
			log.Warn().Str("row", raw).Int("line", i+1).Msg("Skipping malformed domain row")
			skipped++
			continue
		}
		if seen[normalized] {
			log.Debug().Str("domain", normalized).Msg("Skipping duplicate domain")
			continue
		}
		seen[normalized] = true

		domains = append(domains, models.Domain{
			Raw:    raw,
			URL:    normalized,
			Status: models.DomainStatusUnprocessed,
		})
	}

	if len(domains) == 0 {
		return nil, fmt.Errorf("no valid domains in %s", path)
	}

	log.Info().
		Str("file", path).
		Int("loaded", len(domains)).
		Int("skipped", skipped).
		Msg("Loaded domain list")

	return domains, nil
}

// LoadEmails reads the sender address file into a rotation pool. At least
// one valid address is required; rows without an @ are dropped with a
// warning.
func LoadEmails(path string) (*models.EmailPool, error) {
	log := common.GetLogger()

	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}

	accounts := make([]models.EmailAccount, 0, len(rows))
	for i, raw := range rows {
		if i == 0 && isHeaderRow(raw, "email") {
			continue
		}

		addr := strings.TrimSpace(raw)
		if !strings.Contains(addr, "@") || strings.HasPrefix(addr, "@") || strings.HasSuffix(addr, "@") {
			log.Warn().Str("row", raw).Int("line", i+1).Msg("Skipping malformed email row")
			continue
		}
		accounts = append(accounts, models.EmailAccount{Address: addr})
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("no valid email addresses in %s", path)
	}

	log.Info().
		Str("file", path).
		Int("loaded", len(accounts)).
		Msg("Loaded email accounts")

	return models.NewEmailPool(accounts), nil
}

// readRows returns non-empty trimmed lines from a file. The first line is
// stripped of a UTF-8 BOM when present since exported spreadsheets often
// carry one.
func readRows(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var rows []string
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		// Tolerate single-column CSV exports with trailing commas
		line = strings.TrimRight(strings.TrimSpace(line), ",")
		if line == "" {
			continue
		}
		rows = append(rows, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return rows, nil
}

func isHeaderRow(row, column string) bool {
	return strings.EqualFold(strings.TrimSpace(row), column)
}
