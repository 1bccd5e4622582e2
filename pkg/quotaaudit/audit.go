// Package quotaaudit finds projects holding more grants than their owner's
// plan allows. Quota is only enforced when a grant is made, so a plan
// downgrade leaves existing collaborators in place; the audit reports those
// projects without revoking anything.
package quotaaudit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/collab/pkg/async"
	"github.com/platinummonkey/collab/pkg/directory"
	"github.com/platinummonkey/collab/pkg/grants"
	"github.com/platinummonkey/collab/pkg/observability"
	"github.com/platinummonkey/collab/pkg/plans"
	"github.com/platinummonkey/collab/pkg/projects"
)

// GrantCounter reports per-project grant counts
type GrantCounter interface {
	CountsAbove(ctx context.Context, min int) ([]grants.ProjectCount, error)
}

// ProjectLookup loads a single project
type ProjectLookup interface {
	GetProject(ctx context.Context, projectID string) (*projects.Project, error)
}

// Violation is a project over its owner's collaborator limit
type Violation struct {
	ProjectID string     `json:"project_id"`
	OwnerID   string     `json:"owner_id"`
	Plan      plans.Tier `json:"plan"`
	Limit     int        `json:"limit"`
	Count     int        `json:"count"`
}

// Report is the outcome of one audit run
type Report struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Scanned    int           `json:"scanned"`
	Violations []Violation   `json:"violations"`
}

// Auditor compares grant counts against the plan table
type Auditor struct {
	counts   GrantCounter
	projects ProjectLookup
	users    directory.PlanLookup
	table    *plans.Table
	metrics  *observability.Metrics
	logger   *observability.Logger
	workers  int
}

// DefaultWorkers is the number of projects evaluated concurrently
const DefaultWorkers = 4

// NewAuditor creates an auditor. The owner's plan is read from users at
// audit time so downgrades are seen immediately. metrics and logger may be nil.
func NewAuditor(counts GrantCounter, repo ProjectLookup, users directory.PlanLookup, table *plans.Table, metrics *observability.Metrics, logger *observability.Logger) *Auditor {
	if table == nil {
		table = plans.DefaultTable()
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Auditor{
		counts:   counts,
		projects: repo,
		users:    users,
		table:    table,
		metrics:  metrics,
		logger:   logger,
		workers:  DefaultWorkers,
	}
}

// SetWorkers changes how many projects are evaluated concurrently
func (a *Auditor) SetWorkers(n int) {
	if n > 0 {
		a.workers = n
	}
}

// Run audits every project with grants and returns the violations ordered
// by project id
func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: time.Now().UTC(), Violations: []Violation{}}

	err := a.run(ctx, report)
	report.Duration = time.Since(report.StartedAt)
	if err != nil {
		a.recordRun("error")
		return nil, err
	}

	a.recordRun("success")
	a.recordViolations(report.Violations)
	a.logger.WithFields(map[string]interface{}{
		"scanned":     report.Scanned,
		"violations":  len(report.Violations),
		"duration_ms": report.Duration.Milliseconds(),
	}).Info("Quota audit completed")
	return report, nil
}

type evaluation struct {
	scanned   bool
	violation *Violation
}

func (a *Auditor) run(ctx context.Context, report *Report) error {
	counts, err := a.counts.CountsAbove(ctx, a.minLimit())
	if err != nil {
		return fmt.Errorf("failed to count grants: %w", err)
	}

	results, err := async.Map(ctx, counts, a.workers, a.evaluate)
	if err != nil {
		return err
	}

	for _, res := range results {
		if !res.scanned {
			continue
		}
		report.Scanned++
		if v := res.violation; v != nil {
			report.Violations = append(report.Violations, *v)
			a.logger.WithFields(map[string]interface{}{
				"project_id": v.ProjectID,
				"owner_id":   v.OwnerID,
				"plan":       string(v.Plan),
				"limit":      v.Limit,
				"count":      v.Count,
			}).Warn("Project over collaborator quota")
		}
	}
	return nil
}

func (a *Auditor) evaluate(ctx context.Context, pc grants.ProjectCount) (evaluation, error) {
	project, err := a.projects.GetProject(ctx, pc.ProjectID)
	if errors.Is(err, projects.ErrProjectNotFound) {
		// Deleted since the count; its grants go with it
		return evaluation{}, nil
	}
	if err != nil {
		return evaluation{}, fmt.Errorf("failed to load project %s: %w", pc.ProjectID, err)
	}

	plan, err := a.users.UserPlan(ctx, project.OwnerID)
	if errors.Is(err, directory.ErrUserNotFound) {
		plan = plans.TierFree
	} else if err != nil {
		return evaluation{}, fmt.Errorf("failed to load plan for %s: %w", project.OwnerID, err)
	}

	limit := a.table.MaxCollaborators(plan)
	if pc.Count <= limit {
		return evaluation{scanned: true}, nil
	}
	return evaluation{scanned: true, violation: &Violation{
		ProjectID: project.ID,
		OwnerID:   project.OwnerID,
		Plan:      plans.ParseTier(string(plan)),
		Limit:     limit,
		Count:     pc.Count,
	}}, nil
}

// minLimit is the smallest limit in the table; projects at or below it
// cannot be over quota on any plan
func (a *Auditor) minLimit() int {
	lowest := -1
	for _, tier := range a.table.Tiers() {
		if limit := a.table.MaxCollaborators(tier); lowest < 0 || limit < lowest {
			lowest = limit
		}
	}
	if lowest < 0 {
		return 0
	}
	return lowest
}

func (a *Auditor) recordRun(status string) {
	if a.metrics != nil {
		a.metrics.QuotaAuditRunsTotal.WithLabelValues(status).Inc()
	}
}

func (a *Auditor) recordViolations(violations []Violation) {
	if a.metrics == nil {
		return
	}
	byPlan := make(map[plans.Tier]int)
	for _, tier := range a.table.Tiers() {
		byPlan[tier] = 0
	}
	for _, v := range violations {
		byPlan[v.Plan]++
	}
	for tier, n := range byPlan {
		a.metrics.ProjectsOverQuota.WithLabelValues(string(tier)).Set(float64(n))
	}
}
