package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentinela-br/sentinela/internal/models"
)

var (
	investigateUserID    string
	investigateSessionID string
	investigateJSON      bool
)

var investigateCmd = &cobra.Command{
	Use:   "investigate <query>",
	Short: "Run an investigation for a free-text query",
	Long: `Runs the full pipeline for a pt-BR query, for example:

  sentinela investigate "Contratos de saúde em MG acima de 1 milhão em 2024"

Ctrl-C cancels cooperatively: the current federation stage finishes, later
stages are skipped and the investigation finalizes as cancelled.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInvestigate,
}

func init() {
	investigateCmd.Flags().StringVar(&investigateUserID, "user", "cli", "user id recorded on the investigation")
	investigateCmd.Flags().StringVar(&investigateSessionID, "session", "", "session id (defaults to a fresh one)")
	investigateCmd.Flags().BoolVar(&investigateJSON, "json", false, "print the full result as JSON")
}

func runInvestigate(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	result := p.aggregator.Run(ctx, query, investigateUserID, investigateSessionID)

	if investigateJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printSummary(result)
	return nil
}

func printSummary(result *models.InvestigationResult) {
	fmt.Printf("Investigation %s\n", result.InvestigationID)
	fmt.Printf("%s\n", strings.Repeat("═", 60))
	fmt.Printf("Status:  %s\n", result.Status)
	fmt.Printf("Intent:  %s (%.0f%%, %s)\n", result.Intent.Intent, result.Intent.Confidence*100, result.Intent.Path)
	if result.Error != "" {
		fmt.Printf("Error:   %s\n", result.Error)
	}

	if len(result.Entities) > 0 {
		fmt.Printf("\nEntities:\n")
		for _, e := range result.Entities {
			if e.NumericValue != 0 {
				fmt.Printf("  %-15s %q -> %.0f\n", e.Kind, e.RawText, e.NumericValue)
			} else {
				fmt.Printf("  %-15s %q -> %s\n", e.Kind, e.RawText, e.Normalized)
			}
		}
	}

	if len(result.StageResults) > 0 {
		fmt.Printf("\nSources:\n")
		for _, sr := range result.StageResults {
			line := fmt.Sprintf("  %-22s %-20s %-8s %4d records", sr.Stage, sr.Adapter, sr.Status, sr.RecordCount)
			if sr.Error != "" {
				line += "  (" + sr.Error + ")"
			}
			fmt.Println(line)
		}
	}

	fmt.Printf("\nAnomalies: %d\n", len(result.Anomalies))
	for _, a := range result.Anomalies {
		fmt.Printf("  [%s] %s (%.0f%%) %s\n", strings.ToUpper(string(a.Severity)), a.Type, a.Confidence*100, a.Evidence)
	}

	if len(result.KnownIssues) > 0 {
		fmt.Printf("\nKnown issues:\n")
		for _, issue := range result.KnownIssues {
			fmt.Printf("  - %s\n", issue)
		}
	}
	fmt.Printf("\nDuration: %s\n", result.Duration.Round(time.Millisecond))
}
