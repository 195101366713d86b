/**
 * @description
 * Billing-drift audit. A scheduled job that reports active agents whose
 * subscription period has already lapsed, which indicates a missed or stuck
 * provider cancellation event. The audit is read-only: subscription rows and
 * agent status are owned by the billing reconciler, so drift is escalated in
 * the logs for operator follow-up rather than auto-corrected here.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Vladurka/TelegramAICloud/internal/store"
)

// DriftAuditor periodically scans for billing drift.
type DriftAuditor struct {
	repo store.Repository
	cron *cron.Cron
}

// NewDriftAuditor creates an auditor bound to the repository.
func NewDriftAuditor(repo store.Repository) *DriftAuditor {
	return &DriftAuditor{repo: repo}
}

// Start schedules the hourly audit. Returns immediately; Stop shuts the
// scheduler down.
func (a *DriftAuditor) Start() error {
	a.cron = cron.New()
	if _, err := a.cron.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.RunOnce(ctx)
	}); err != nil {
		return err
	}
	a.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running audit to finish.
func (a *DriftAuditor) Stop() {
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
}

// RunOnce executes a single audit pass.
func (a *DriftAuditor) RunOnce(ctx context.Context) {
	agents, err := a.repo.FindAgentsWithLapsedSubscriptions(ctx, time.Now())
	if err != nil {
		log.Printf("level=error component=drift_audit msg=\"audit query failed\" err=%v", err)
		return
	}
	for _, agent := range agents {
		log.Printf("level=warn component=drift_audit msg=\"active agent past subscription period end\" container_id=%d agent_id=%s", agent.APIID, agent.ID)
	}
	if len(agents) == 0 {
		log.Printf("level=info component=drift_audit msg=\"no billing drift detected\"")
	}
}
