package store

import (
	"context"
	"fmt"

	"github.com/harbinger-sec/warden/internal/config"
)

// LoadRuleSettings reads per-rule overrides from the rule_settings table and
// returns them keyed by rule name, ready to merge into the effective config.
func (s *Store) LoadRuleSettings(ctx context.Context) (map[string]config.RuleSetting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_name, enabled, action, severity
		FROM rule_settings`)
	if err != nil {
		return nil, fmt.Errorf("LoadRuleSettings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	settings := make(map[string]config.RuleSetting)
	for rows.Next() {
		var (
			name     string
			enabled  *bool
			action   *string
			severity *string
		)
		if err := rows.Scan(&name, &enabled, &action, &severity); err != nil {
			return nil, fmt.Errorf("LoadRuleSettings: %w", err)
		}
		rs := config.RuleSetting{Enabled: enabled}
		if action != nil {
			rs.Action = *action
		}
		if severity != nil {
			rs.Severity = *severity
		}
		settings[name] = rs
	}

	return settings, rows.Err()
}

// UpsertRuleSetting writes one rule override.
func (s *Store) UpsertRuleSetting(ctx context.Context, name string, rs config.RuleSetting) error {
	var action, severity *string
	if rs.Action != "" {
		action = &rs.Action
	}
	if rs.Severity != "" {
		severity = &rs.Severity
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rule_settings (rule_name, enabled, action, severity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (rule_name) DO UPDATE
		SET enabled = EXCLUDED.enabled,
		    action = EXCLUDED.action,
		    severity = EXCLUDED.severity,
		    updated_at = now()`,
		name, rs.Enabled, action, severity,
	)
	if err != nil {
		return fmt.Errorf("UpsertRuleSetting: %w", err)
	}
	return nil
}
