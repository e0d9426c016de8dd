package store

import (
	"context"
	"fmt"
	"sort"
)

// Settings keys read by the revisit controller.
const (
	SettingThresholdDays   = "threshold_days"
	SettingRevisitTime     = "revisit_time"
	SettingRevisitFeatures = "revisit_features"
)

// LoadSettings returns all rows of the settings table.
func (s *Store) LoadSettings(ctx context.Context, q Querier) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name, value FROM "+settingsTable)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	settings := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan settings: %w", err)
		}
		settings[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// DeleteSettings removes the named settings rows.
func (s *Store) DeleteSettings(ctx context.Context, q Querier, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE name IN (%s)",
		settingsTable, placeholders(s.dialect, 1, len(names)))

	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete settings: %w", err)
	}
	return nil
}

// ActivityMethods maps a method name to the activities it counts towards.
type ActivityMethods map[string][]string

// Activities returns the activities mapped to method.
func (m ActivityMethods) Activities(method string) []string {
	return m[method]
}

// Methods returns, per activity, the sorted list of methods mapped to it.
func (m ActivityMethods) Methods() map[string][]string {
	out := make(map[string][]string)
	for method, activities := range m {
		for _, a := range activities {
			out[a] = append(out[a], method)
		}
	}
	for _, methods := range out {
		sort.Strings(methods)
	}
	return out
}

// LoadActivityMethods reads the static activity to method relation.
func (s *Store) LoadActivityMethods(ctx context.Context, q Querier) (ActivityMethods, error) {
	rows, err := q.QueryContext(ctx, "SELECT activity, method FROM "+activityMethodMapTable)
	if err != nil {
		return nil, fmt.Errorf("load activity map: %w", err)
	}
	defer func() { _ = rows.Close() }()

	m := make(ActivityMethods)
	for rows.Next() {
		var activity, method string
		if err := rows.Scan(&activity, &method); err != nil {
			return nil, fmt.Errorf("scan activity map: %w", err)
		}
		m[method] = append(m[method], activity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load activity map: %w", err)
	}
	for _, activities := range m {
		sort.Strings(activities)
	}
	return m, nil
}
