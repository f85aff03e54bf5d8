package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sentinela-br/sentinela/internal/investigation"
)

var statusCmd = &cobra.Command{
	Use:   "status <investigation-id>",
	Short: "Show the latest known state of an investigation",
	Long: `Reads the local checkpoint store, so it answers even while an
investigation is still running or after a crash.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	checkpoints, err := investigation.OpenCheckpointStore(cfg.Storage.CheckpointPath)
	if err != nil {
		return err
	}
	defer checkpoints.Close()

	snapshot, err := checkpoints.Load(args[0])
	if err != nil {
		return err
	}
	if snapshot == nil {
		return fmt.Errorf("no investigation with id %s", args[0])
	}

	fmt.Printf("Investigation %s\n", snapshot.InvestigationID)
	fmt.Printf("%s\n", strings.Repeat("═", 60))
	fmt.Printf("Query:    %s\n", snapshot.Query)
	fmt.Printf("Status:   %s\n", snapshot.Status)
	if snapshot.Phase != "" {
		fmt.Printf("Phase:    %s\n", snapshot.Phase)
	}
	fmt.Printf("Progress: %.0f%%\n", snapshot.Progress*100)
	if snapshot.Error != "" {
		fmt.Printf("Error:    %s\n", snapshot.Error)
	}
	fmt.Printf("Created:  %s\n", snapshot.CreatedAt.Format("2006-01-02 15:04:05"))
	if snapshot.CompletedAt != nil {
		fmt.Printf("Finished: %s\n", snapshot.CompletedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Anomalies: %d\n", len(snapshot.Anomalies))
	}
	return nil
}
