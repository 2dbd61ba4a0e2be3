package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-orz/orz"
	"go.uber.org/zap"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/config"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/service"
)

// errAuditDone stops the framework once the one-shot sweep has finished;
// the audit command never serves HTTP.
var errAuditDone = errors.New("audit completed")

// RunAudit executes a single audit sweep against the configured database
// and exits. dryRun forces classification-only regardless of config.
func RunAudit(configPath string, dryRun bool) error {
	app := &auditApp{dryRun: dryRun}

	framework, err := orz.NewFramework(
		orz.WithConfig(configPath),
		orz.WithLoggerFromConfig(),
		orz.WithDatabase(),
		orz.WithApplication(app),
	)
	if err != nil {
		if errors.Is(err, errAuditDone) {
			return app.err
		}
		return err
	}

	if err := framework.Run(); err != nil && !errors.Is(err, errAuditDone) {
		return err
	}
	return app.err
}

type auditApp struct {
	dryRun bool
	err    error
}

var _ orz.Application = (*auditApp)(nil)

func (r *auditApp) Configure(app *orz.App) error {
	logger := app.Logger()
	db := app.GetDatabase()

	var conf config.Config
	if err := app.GetConfig().App.Unmarshal(&conf); err != nil {
		return fmt.Errorf("failed to unmarshal config: %v", err)
	}
	if r.dryRun {
		conf.Audit.DryRun = true
	}

	alerter := provideAlerter(logger, &conf)
	audit := service.NewAuditService(db, alerter, conf.Audit, logger)

	report, err := audit.Sweep(context.Background())
	if err != nil {
		r.err = err
		return errAuditDone
	}

	logger.Info("one-shot audit finished",
		zap.Int("checked", report.Checked),
		zap.Int("problems", report.Problems),
		zap.Int("repaired", report.Repaired),
		zap.Int("errors", len(report.Errors)))
	for _, finding := range report.Findings {
		if finding.Issue == service.AuditOK {
			continue
		}
		logger.Warn("finding",
			zap.String("execution_id", finding.ExecutionID),
			zap.String("issue", string(finding.Issue)),
			zap.String("expected", finding.Expected.String()),
			zap.String("recorded", finding.Recorded.String()),
			zap.Bool("repaired", finding.Repaired))
	}
	return errAuditDone
}
