package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leadscope/enrich/internal/persist"
)

// newRunCmd enriches a single domain and prints the result as JSON.
func newRunCmd() *cobra.Command {
	var (
		moduleIDs    []string
		forceRefresh bool
		save         bool
	)
	cmd := &cobra.Command{
		Use:   "run <domain>",
		Short: "Enrich one domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := eng.scheduler.Enrich(ctx, eng.jobSpec(args[0], moduleIDs, forceRefresh))
			if err != nil {
				return err
			}

			if save && eng.cfg.PostgresDSN != "" {
				store, serr := persist.Open(ctx, eng.cfg.PostgresDSN)
				if serr != nil {
					return serr
				}
				defer store.Close()
				if serr := store.SaveAll(ctx, result.Results); serr != nil {
					return serr
				}
				eng.log.Info().Str("domain", result.Domain).Msg("results persisted")
			}

			out := json.NewEncoder(os.Stdout)
			out.SetIndent("", "  ")
			if err := out.Encode(result); err != nil {
				return err
			}
			if result.Status == "failed" {
				return fmt.Errorf("enrichment failed: %s", strings.Join(result.Errors, "; "))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&moduleIDs, "modules", nil, "subset of module ids to run")
	cmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "bypass the response cache")
	cmd.Flags().BoolVar(&save, "save", false, "persist results to postgres (needs postgres_dsn)")
	return cmd
}

// newBatchCmd enriches many domains from args or a file, one per line.
func newBatchCmd() *cobra.Command {
	var (
		file         string
		moduleIDs    []string
		forceRefresh bool
	)
	cmd := &cobra.Command{
		Use:   "batch [domains...]",
		Short: "Enrich many domains under the concurrency bound",
		RunE: func(cmd *cobra.Command, args []string) error {
			domains := args
			if file != "" {
				fromFile, err := readDomains(file)
				if err != nil {
					return err
				}
				domains = append(domains, fromFile...)
			}
			if len(domains) == 0 {
				return fmt.Errorf("no domains given")
			}

			eng, err := buildEngine()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			template := eng.jobSpec("placeholder.invalid", moduleIDs, forceRefresh)
			results := eng.batch.EnrichBatch(ctx, domains, *template, func(domain string, completed, total int) {
				eng.log.Info().Str("domain", domain).
					Int("completed", completed).Int("total", total).Msg("domain finished")
			})

			out := json.NewEncoder(os.Stdout)
			out.SetIndent("", "  ")
			return out.Encode(results)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "file with one domain per line")
	cmd.Flags().StringSliceVar(&moduleIDs, "modules", nil, "subset of module ids to run")
	cmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "bypass the response cache")
	return cmd
}

// readDomains loads one domain per line, ignoring blanks and # comments.
func readDomains(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var domains []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		domains = append(domains, line)
	}
	return domains, scanner.Err()
}
