package health

import (
	"context"
	"sort"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an auxiliary dependency is failing.
	Degraded Status = "degraded"
	// Unhealthy indicates the index database is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// CheckDatabase is the name of the index database check.
const CheckDatabase = "database"

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type namedCheck struct {
	name string
	p    Pinger
}

// Service coordinates health checks.
type Service struct {
	db     Pinger
	checks []namedCheck
}

// New creates a Service around the index database check.
func New(db Pinger) *Service {
	return &Service{db: db}
}

// WithCheck adds an auxiliary check (equivalence store, ingestion stream).
// Its failure degrades the report without making it unhealthy.
func (s *Service) WithCheck(name string, p Pinger) *Service {
	if p != nil && name != "" && name != CheckDatabase {
		s.checks = append(s.checks, namedCheck{name: name, p: p})
	}
	return s
}

// Names lists the configured checks, database first.
func (s *Service) Names() []string {
	names := make([]string, 0, len(s.checks))
	for _, c := range s.checks {
		names = append(names, c.name)
	}
	sort.Strings(names)
	return append([]string{CheckDatabase}, names...)
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, len(s.checks)+1)
	status := Healthy

	if err := s.db.Ping(ctx); err != nil {
		checks[CheckDatabase] = CheckError
		status = Unhealthy
	} else {
		checks[CheckDatabase] = CheckOK
	}

	for _, c := range s.checks {
		if err := c.p.Ping(ctx); err != nil {
			checks[c.name] = CheckError
			if status == Healthy {
				status = Degraded
			}
			continue
		}
		checks[c.name] = CheckOK
	}

	return Report{Status: status, Checks: checks}
}
