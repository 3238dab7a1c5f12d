// =============================================================================
// FILE: internal/cli/submit.go
// PURPOSE: `harmonydl submit`: reads a batch request (JSON file, or a single
//          --artist/--title pair), submits it to the orchestrator, waits for
//          the result, and prints a human-readable summary.
// =============================================================================

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"harmonydl/internal/hdm/model"
	"harmonydl/internal/logging"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a download batch and wait for it to finish",
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().String("file", "", "Path to a JSON batch request file")
	submitCmd.Flags().String("artist", "", "Single-item submission: artist name")
	submitCmd.Flags().String("title", "", "Single-item submission: track title")
	submitCmd.Flags().String("album", "", "Single-item submission: album name")
	submitCmd.Flags().String("requested-by", "cli", "requested_by recorded on the batch")

	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")

	if err := logging.Init(&logging.Options{Level: logLevel, Color: !logJSON}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.shutdown()

	req, err := buildBatchRequest(cmd)
	if err != nil {
		return err
	}

	handle, err := a.orchestrator.SubmitBatch(*req)
	if err != nil {
		return fmt.Errorf("failed to submit batch: %w", err)
	}

	summary, err := handle.Wait()
	if err != nil {
		return fmt.Errorf("failed to await batch completion: %w", err)
	}

	fmt.Print(FormatSummary(summary))
	if summary.Status == model.BatchFailure {
		os.Exit(1)
	}
	return nil
}

func buildBatchRequest(cmd *cobra.Command) (*model.BatchRequest, error) {
	filePath, _ := cmd.Flags().GetString("file")
	requestedBy, _ := cmd.Flags().GetString("requested-by")

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read batch request file %s: %w", filePath, err)
		}
		var req model.BatchRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("failed to parse batch request file %s: %w", filePath, err)
		}
		if req.RequestedBy == "" {
			req.RequestedBy = requestedBy
		}
		return &req, nil
	}

	artist, _ := cmd.Flags().GetString("artist")
	title, _ := cmd.Flags().GetString("title")
	album, _ := cmd.Flags().GetString("album")
	if artist == "" || title == "" {
		return nil, &model.ValidationError{Reason: "either --file or both --artist and --title must be given"}
	}

	return &model.BatchRequest{
		RequestedBy: requestedBy,
		Items:       []model.ItemRequest{{Artist: artist, Title: title, Album: album}},
	}, nil
}
