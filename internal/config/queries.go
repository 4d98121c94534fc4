package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NamedQuery is an allow-listed analytics statement exposed by the API.
// Params names the bind parameters the caller must supply, in order.
type NamedQuery struct {
	SQL    string   `yaml:"sql"`
	Params []string `yaml:"params"`
}

// QueryCatalog maps query names to their statements.
type QueryCatalog struct {
	Queries map[string]NamedQuery `yaml:"queries"`
}

// LoadQueryCatalog reads the named-query catalog from a YAML file.
func LoadQueryCatalog(path string) (*QueryCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read query catalog: %w", err)
	}

	var catalog QueryCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse query catalog: %w", err)
	}

	for name, q := range catalog.Queries {
		if q.SQL == "" {
			return nil, fmt.Errorf("query %s: sql is required", name)
		}
	}
	return &catalog, nil
}

// Get returns the named query, or false when absent.
func (c *QueryCatalog) Get(name string) (NamedQuery, bool) {
	if c == nil {
		return NamedQuery{}, false
	}
	q, ok := c.Queries[name]
	return q, ok
}

// DefaultQueryCatalog returns the built-in analytics queries used when no
// catalog file is configured.
func DefaultQueryCatalog() *QueryCatalog {
	return &QueryCatalog{
		Queries: map[string]NamedQuery{
			"project_contributors": {
				SQL:    "SELECT contributor_id, contributions FROM analytics.project_contributors WHERE project_id = ? ORDER BY contributions DESC LIMIT 100",
				Params: []string{"project_id"},
			},
			"project_activity": {
				SQL:    "SELECT activity_date, commits, pull_requests, issues FROM analytics.project_activity WHERE project_id = ? AND activity_date >= ? ORDER BY activity_date",
				Params: []string{"project_id", "since"},
			},
			"organization_summary": {
				SQL:    "SELECT org_id, org_name, total_contributors, total_commits FROM analytics.organization_summary WHERE org_id = ?",
				Params: []string{"org_id"},
			},
			"meeting_attendance": {
				SQL:    "WITH sessions AS (SELECT meeting_id, participant_id, duration_minutes FROM analytics.meeting_sessions WHERE meeting_id = ?) SELECT participant_id, SUM(duration_minutes) AS minutes FROM sessions GROUP BY participant_id",
				Params: []string{"meeting_id"},
			},
		},
	}
}
