// Package config provides configuration models and helpers for songlake runs.
//
// This file adds a lightweight linter for Pipeline values. It performs static
// checks over a resolved Pipeline and returns a list of issues (errors and
// warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "warehouse.dsn").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// knownSchemes are the URI schemes accepted for input_root and output_root.
// An empty scheme is a local path.
var knownSchemes = map[string]struct{}{
	"":     {},
	"file": {},
	"s3":   {},
	"s3a":  {},
	"s3n":  {},
}

// ValidatePipeline performs static validation of a Pipeline. It does not
// mutate the pipeline.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateRoot("input_root", p.InputRoot)...)
	issues = append(issues, validateRoot("output_root", p.OutputRoot)...)

	if strings.TrimSpace(p.InputRoot) != "" && strings.TrimSuffix(p.InputRoot, "/") == strings.TrimSuffix(p.OutputRoot, "/") {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "output_root",
			Message:  "output_root must differ from input_root; tables are written with overwrite semantics",
		})
	}

	if p.TimeZone != "" {
		if _, err := time.LoadLocation(p.TimeZone); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "time_zone",
				Message:  fmt.Sprintf("unknown time zone %q: %v", p.TimeZone, err),
			})
		}
	}

	switch p.OnBadRecord {
	case "", "fail", "skip":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "on_bad_record",
			Message:  fmt.Sprintf("on_bad_record must be fail or skip, got %q", p.OnBadRecord),
		})
	}

	switch p.UsersDedupe {
	case "", "keep-first", "keep-last":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "users_dedupe",
			Message:  fmt.Sprintf("users_dedupe must be empty, keep-first or keep-last, got %q", p.UsersDedupe),
		})
	}

	issues = append(issues, validateRuntime(p.Runtime)...)
	issues = append(issues, validateWarehouse(p.Warehouse)...)
	issues = append(issues, validateMetrics(p.Metrics)...)
	return issues
}

func validateRoot(path, root string) []Issue {
	if strings.TrimSpace(root) == "" {
		return []Issue{{
			Severity: SeverityError,
			Path:     path,
			Message:  path + " must not be empty",
		}}
	}
	u, err := url.Parse(root)
	if err != nil {
		return []Issue{{
			Severity: SeverityError,
			Path:     path,
			Message:  fmt.Sprintf("cannot parse %q: %v", root, err),
		}}
	}
	scheme := strings.ToLower(u.Scheme)
	// Windows drive letters parse as a one-letter scheme.
	if len(scheme) == 1 {
		scheme = ""
	}
	if _, ok := knownSchemes[scheme]; !ok {
		return []Issue{{
			Severity: SeverityError,
			Path:     path,
			Message:  fmt.Sprintf("unsupported scheme %q; use a local path or s3://, s3a://, s3n://", u.Scheme),
		}}
	}
	if strings.HasPrefix(scheme, "s3") && u.Host == "" {
		return []Issue{{
			Severity: SeverityError,
			Path:     path,
			Message:  "s3 URI must name a bucket",
		}}
	}
	return nil
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	if r.WriteParallelism < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.write_parallelism",
			Message:  "runtime.write_parallelism must be >= 0 (0 means default)",
		})
	}
	if r.RowGroupMB < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.row_group_mb",
			Message:  "runtime.row_group_mb must be >= 0 (0 means default)",
		})
	}
	if r.WriteParallelism > 64 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.write_parallelism",
			Message:  "runtime.write_parallelism is very high; each writer buffers one partition file in memory",
		})
	}
	return issues
}

func validateWarehouse(w WarehouseConfig) []Issue {
	if !w.Enabled() {
		return nil
	}
	var issues []Issue

	known := map[string]struct{}{
		"postgres": {},
		"sqlite":   {},
		"mssql":    {},
	}
	if _, ok := known[w.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "warehouse.kind",
			Message:  fmt.Sprintf("unknown warehouse kind %q; expected postgres, sqlite or mssql", w.Kind),
		})
	}
	if strings.TrimSpace(w.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "warehouse.dsn",
			Message:  "warehouse.dsn must not be empty when a warehouse is configured",
		})
	}
	if w.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "warehouse.batch_size",
			Message:  "warehouse.batch_size must be >= 0 (0 means default)",
		})
	}
	if !w.AutoCreate {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "warehouse.auto_create",
			Message:  "auto_create is off; target tables must exist and their rows are deleted before loading",
		})
	}
	return issues
}

func validateMetrics(m MetricsConfig) []Issue {
	switch m.Backend {
	case "", "none":
		return nil
	case "pushgateway":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			return []Issue{{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "pushgateway backend requires metrics.pushgateway_url",
			}}
		}
	case "datadog":
		if strings.TrimSpace(m.DatadogAddr) == "" {
			return []Issue{{
				Severity: SeverityError,
				Path:     "metrics.datadog_addr",
				Message:  "datadog backend requires metrics.datadog_addr",
			}}
		}
	default:
		return []Issue{{
			Severity: SeverityWarning,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; metrics will be disabled", m.Backend),
		}}
	}
	return nil
}
