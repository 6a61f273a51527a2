package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ghodss/yaml"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/opsmatic/opsmatic-handler/pkg/chef"
	"github.com/opsmatic/opsmatic-handler/pkg/collector"
	"github.com/opsmatic/opsmatic-handler/pkg/config"
	"github.com/opsmatic/opsmatic-handler/pkg/report"
)

var (
	runStatusFile string
	dryRun        bool
	outputFormat  string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Report a finished Chef run",
	Long: `Report reads the run status document written at the end of a Chef run
and reports it to Opsmatic. Use "-" to read the document from stdin.

The command exits 0 whatever happens to the report itself so that it can
never fail the Chef run; problems are logged as warnings.`,
	Example: `  opsmatic-handler report --run-status /var/chef/cache/run_status.json
  opsmatic-handler report --run-status - --dry-run --output yaml < run_status.json`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if outputFormat != "json" && outputFormat != "yaml" {
			return fmt.Errorf("unsupported output format %q, must be json or yaml", outputFormat)
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		runReport(cmd.Context(), afero.NewOsFs(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	reportCmd.Flags().StringVarP(&runStatusFile, "run-status", "f", "", "Path to the run status document, or - for stdin")
	reportCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the event instead of posting it and write no files")
	reportCmd.Flags().StringVarP(&outputFormat, "output", "o", "json", "Dry run output format: json or yaml")
	reportCmd.MarkFlagRequired("run-status")
	RootCmd.AddCommand(reportCmd)
}

func runReport(ctx context.Context, fs afero.Fs, stdin io.Reader, out io.Writer) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := loadConfig()
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.WithFields(logrus.Fields{
		"collectorUrl":     cfg.CollectorURL,
		"agentDir":         cfg.AgentDir,
		"timeout":          cfg.Timeout,
		"integrationToken": cfg.MaskedToken(),
	}).Debug("Loaded configuration")

	run, err := chef.Load(fs, runStatusFile, stdin)
	if err != nil {
		logrus.Warnf("Unable to load Chef run status, nothing reported to Opsmatic: %v", err)
		return
	}

	if dryRun {
		reporter := report.NewReporter(cfg, collector.MockClient{}, afero.NewReadOnlyFs(fs))
		if err := printEvent(out, reporter.Event(run)); err != nil {
			logrus.Warnf("Unable to print event: %v", err)
		}
		return
	}

	client, err := collector.NewClient(cfg)
	if err != nil {
		logrus.Warnf("Unable to create Opsmatic collector client: %v", err)
		return
	}

	result := report.NewReporter(cfg, client, fs).Report(ctx, run)
	if result.Disabled {
		return
	}
	for _, step := range result.Steps {
		logrus.WithFields(logrus.Fields{
			"step":    step.Step,
			"outcome": step.Outcome,
			"reason":  step.Reason,
		}).Debug("Report step finished")
	}
	if err := result.Err(); err != nil {
		logrus.Infof("Opsmatic report finished with errors: %v", err)
		return
	}
	logrus.Info("Opsmatic report finished")
}

// loadConfig falls back to the defaults, which leave the handler disabled,
// when the configuration cannot be loaded.
func loadConfig() config.Config {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		logrus.Warnf("Unable to load Opsmatic configuration, report handler disabled: %v", err)
		return config.Default()
	}
	return *cfg
}

func printEvent(out io.Writer, event any) error {
	payload, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return err
	}
	if outputFormat == "yaml" {
		payload, err = yaml.JSONToYAML(payload)
		if err != nil {
			return err
		}
	} else {
		payload = append(payload, '\n')
	}
	_, err = out.Write(payload)
	return err
}
