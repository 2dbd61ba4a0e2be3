// Package alert delivers operator notifications: invariant violations stop
// the presses, audit reports summarize what the sweep found. Delivery is
// telegram; a nil *Alerter is safe to call so wiring stays optional.
package alert

import (
	"time"

	"github.com/spf13/cast"
	"github.com/valyala/fasttemplate"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
	"gopkg.in/telebot.v3/middleware"
)

const (
	invariantTemplate = `*LEDGER INVARIANT VIOLATED*
vault: {{vault}}
asset: {{asset}}
detail: {{detail}}

Processing for this vault/asset is halted until an operator intervenes.`

	auditTemplate = `*AUDIT SWEEP REPORT*
executions checked: {{total}}
problems found: {{problems}}
fixed: {{fixed}}
errors: {{errors}}`
)

type Settings struct {
	Token  string
	ChatID string
}

type Alerter struct {
	logger   *zap.Logger
	settings Settings
	client   *tele.Bot
}

func NewAlerter(logger *zap.Logger, settings Settings) (*Alerter, error) {
	client, err := tele.NewBot(tele.Settings{
		ParseMode: tele.ModeMarkdown,
		Token:     settings.Token,
		Poller:    &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}

	client.Use(middleware.AutoRespond())

	return &Alerter{
		logger:   logger,
		settings: settings,
		client:   client,
	}, nil
}

func (r *Alerter) send(msg string) {
	if r == nil || r.client == nil {
		return
	}
	chatID := cast.ToInt64(r.settings.ChatID)
	if _, err := r.client.Send(tele.ChatID(chatID), msg, &tele.SendOptions{ParseMode: tele.ModeMarkdown}); err != nil {
		r.logger.Error("failed to send alert", zap.Error(err))
	}
}

// InvariantViolated reports a fatal ledger state for one (vault, asset).
func (r *Alerter) InvariantViolated(vaultID, asset, detail string) {
	if r == nil {
		return
	}
	msg := fasttemplate.New(invariantTemplate, "{{", "}}").
		ExecuteString(map[string]any{
			"vault":  vaultID,
			"asset":  asset,
			"detail": detail,
		})
	r.send(msg)
}

// AuditReport summarizes a completed sweep. Only sent when there was
// something to report.
func (r *Alerter) AuditReport(total, problems, fixed, errCount int) {
	if r == nil {
		return
	}
	msg := fasttemplate.New(auditTemplate, "{{", "}}").
		ExecuteString(map[string]any{
			"total":    cast.ToString(total),
			"problems": cast.ToString(problems),
			"fixed":    cast.ToString(fixed),
			"errors":   cast.ToString(errCount),
		})
	r.send(msg)
}
