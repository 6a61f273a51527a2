package report

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/opsmatic/opsmatic-handler/pkg/collector"
	"github.com/opsmatic/opsmatic-handler/pkg/config"
	"github.com/opsmatic/opsmatic-handler/pkg/hints"
	"github.com/opsmatic/opsmatic-handler/pkg/models"
)

// Reporter summarizes a finished run to the collector and the local agent.
type Reporter struct {
	config   config.Config
	client   collector.Client
	writer   *hints.Writer
	hostname func() (string, error)
}

func NewReporter(cfg config.Config, client collector.Client, fs afero.Fs) *Reporter {
	return &Reporter{
		config:   cfg,
		client:   client,
		writer:   hints.NewWriter(fs, cfg.AgentDir),
		hostname: os.Hostname,
	}
}

// Report runs every step for the run. It never fails: problems are logged
// as warnings and recorded in the returned Result.
func (r *Reporter) Report(ctx context.Context, run *models.RunResult) *Result {
	if !r.config.Enabled() {
		logrus.Warn("Opsmatic integration token missing, report handler disabled")
		return &Result{Disabled: true}
	}

	result := &Result{}
	if run == nil {
		logrus.Warn("No run data to report to Opsmatic")
		result.skipped(StepSubmit, "no run data")
		return result
	}

	event := r.Event(run)
	result.Event = &event

	watchFiles := hints.CollectWatchFiles(run.AllResources, r.config.WatchResourceTypes)

	r.submit(ctx, event, result)
	r.writeWatchList(run, watchFiles, result)
	r.writeAttributes(run, result)
	r.writeCookbooks(run, result)

	return result
}

// Event is the payload Report would submit for run.
func (r *Reporter) Event(run *models.RunResult) models.ReportEvent {
	return BuildEvent(run, r.subject(run))
}

func (r *Reporter) subject(run *models.RunResult) string {
	if run.Node != nil && run.Node.FQDN != "" {
		return run.Node.FQDN
	}
	hostname, err := r.hostname()
	if err != nil {
		logrus.Warnf("Unable to determine hostname: %v", err)
		return ""
	}
	return hostname
}

func (r *Reporter) submit(ctx context.Context, event models.ReportEvent, result *Result) {
	logrus.Info("Posting chef run report to Opsmatic")
	err := safely(func() error { return r.client.Submit(ctx, event) })
	if err == nil {
		result.ok(StepSubmit)
		return
	}

	var statusErr *collector.StatusError
	var timeoutErr *collector.TimeoutError
	switch {
	case errors.As(err, &statusErr):
		logrus.Warnf("Got a %d from Opsmatic event service, chef run wasn't recorded", statusErr.StatusCode)
		logrus.Info(statusErr.Body)
	case errors.As(err, &timeoutErr):
		logrus.Warn("Timed out connecting to Opsmatic event service, chef run wasn't recorded")
	default:
		logrus.Warnf("An unhandled exception occurred while posting event to Opsmatic event service: %v", err)
	}
	result.failed(StepSubmit, err)
}

func (r *Reporter) writeWatchList(run *models.RunResult, watchFiles hints.WatchSet, result *Result) {
	if len(run.AllResources) == 0 {
		result.skipped(StepWatchList, "no resources in run")
		return
	}
	err := safely(func() error { return r.writer.WriteWatchList(watchFiles) })
	switch {
	case err == nil:
		logrus.WithFields(logrus.Fields{"files": len(watchFiles), "path": r.writer.ResourcesPath()}).Debug("Wrote agent file watch list")
		result.ok(StepWatchList)
	case errors.Is(err, hints.ErrAgentDirMissing):
		logrus.Debugf("Agent directory %s not found, skipping file watch list", r.config.AgentDir)
		result.skipped(StepWatchList, err.Error())
	default:
		logrus.Warnf("Unable to save opsmatic agent file watch list: %v", err)
		result.failed(StepWatchList, err)
	}
}

func (r *Reporter) writeAttributes(run *models.RunResult, result *Result) {
	if run.Node == nil {
		result.skipped(StepAttributes, "no node data in run")
		return
	}
	if err := safely(func() error { return r.writer.WriteAttributes(run.Node) }); err != nil {
		logrus.Warnf("Unable to save node attributes for the opsmatic agent: %v", err)
		result.failed(StepAttributes, err)
		return
	}
	result.ok(StepAttributes)
}

func (r *Reporter) writeCookbooks(run *models.RunResult, result *Result) {
	if run.Cookbooks == nil {
		result.skipped(StepCookbooks, "no cookbook versions in run")
		return
	}
	if err := safely(func() error { return r.writer.WriteCookbooks(run.Cookbooks) }); err != nil {
		logrus.Warnf("Unable to save cookbook versions for the opsmatic agent: %v", err)
		result.failed(StepCookbooks, err)
		return
	}
	result.ok(StepCookbooks)
}

// safely turns a panic in fn into an error so one step cannot take the
// provisioning run down with it.
func safely(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}
