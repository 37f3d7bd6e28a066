package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/registrar-data/entityproc/internal/registry"
)

// newFetchCmd creates and configures the 'fetch' subcommand. It resolves the
// control number and request id from the workflow environment, runs the
// retrieval, and writes the output document.
func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch [control-number]",
		Short: "Retrieves one entity filing and writes its JSON document",
		Long: `Runs the full retrieval pipeline for a single control number: pass the
portal's anti-bot challenge, search, open the detail page, and extract the
filing into processed_data_<request_id>.json in the output directory.

The control number comes from the positional argument; the CONTROL_NUMBER
environment variable overrides it when set. REQUEST_ID, when set, pins the
run's identifier; otherwise one is generated.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runFetchCommand,
	}
	return cmd
}

func runFetchCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()

	req, err := buildRequest(appInstance, args)
	if err != nil {
		return err
	}
	logger.Info("Retrieval starting",
		zap.String("request_id", req.RequestID),
		zap.String("control_number", req.ControlNumber))

	outcome := appInstance.Run(cmd.Context(), req)

	path, err := appInstance.Emit(req, outcome)
	if err != nil {
		return fmt.Errorf("write output document: %w", err)
	}

	if outcome.Succeeded() {
		logger.Info("Retrieval succeeded",
			zap.String("request_id", req.RequestID),
			zap.Int("attempts", outcome.Attempts),
			zap.String("output", path))
		return nil
	}

	logger.Error("Retrieval exhausted",
		zap.String("request_id", req.RequestID),
		zap.Int("attempts", outcome.Attempts),
		zap.String("failure_kind", string(outcome.LastKind)),
		zap.Error(outcome.LastErr),
		zap.Strings("diagnostics", outcome.Diagnostics),
		zap.String("output", path))
	exitCode = 1
	return nil
}

// buildRequest resolves the run's identity. CONTROL_NUMBER overrides the
// positional argument so the same workflow template can drive every step;
// REQUEST_ID is passed through when the caller correlates runs itself.
func buildRequest(appInstance App, args []string) (registry.Request, error) {
	controlNumber := ""
	if len(args) == 1 {
		controlNumber = strings.TrimSpace(args[0])
	}
	if env := strings.TrimSpace(os.Getenv("CONTROL_NUMBER")); env != "" {
		controlNumber = env
	}
	if controlNumber == "" {
		return registry.Request{}, fmt.Errorf("no control number: pass it as an argument or set CONTROL_NUMBER")
	}

	requestID := strings.TrimSpace(os.Getenv("REQUEST_ID"))
	if requestID == "" {
		id, err := appInstance.NewRequestID()
		if err != nil {
			return registry.Request{}, fmt.Errorf("mint request id: %w", err)
		}
		requestID = id
	}

	return registry.Request{RequestID: requestID, ControlNumber: controlNumber}, nil
}
