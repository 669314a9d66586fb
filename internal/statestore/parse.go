package statestore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xiaot623/runview/internal/domain"
)

// DefaultAgentID is the agent assumed for requester keys that name no agent.
const DefaultAgentID = "main"

type runsDocument struct {
	Version json.RawMessage `json:"version"`
	Runs    json.RawMessage `json:"runs"`
}

type rawRecord struct {
	key  string
	data json.RawMessage
}

// ParseRuns decodes a runs file. Malformed records are skipped with one
// RUN_ENTRY_INVALID diagnostic each; a file that cannot be decoded at all
// yields RUNS_FILE_INVALID and no runs.
func ParseRuns(data []byte, source string) ([]domain.Run, []domain.Diagnostic) {
	records, err := splitRecords(data)
	if err != nil {
		return nil, []domain.Diagnostic{diagnostic(domain.DiagRunsFileInvalid, domain.SeverityError, source,
			fmt.Sprintf("runs file is not valid: %v", err))}
	}

	var runs []domain.Run
	var diags []domain.Diagnostic
	for i, rec := range records {
		run, err := parseRecord(rec)
		if err != nil {
			where := rec.key
			if where == "" {
				where = "#" + strconv.Itoa(i)
			}
			diags = append(diags, diagnostic(domain.DiagRunEntryInvalid, domain.SeverityError, source,
				fmt.Sprintf("run entry %s skipped: %v", where, err)))
			continue
		}
		runs = append(runs, run)
	}
	return runs, diags
}

func splitRecords(data []byte) ([]rawRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		return arrayRecords(trimmed)
	case '{':
		var doc runsDocument
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, err
		}
		runs := bytes.TrimSpace(doc.Runs)
		if len(runs) == 0 || bytes.Equal(runs, []byte("null")) {
			return nil, nil
		}
		switch runs[0] {
		case '[':
			return arrayRecords(runs)
		case '{':
			var byID map[string]json.RawMessage
			if err := json.Unmarshal(runs, &byID); err != nil {
				return nil, err
			}
			keys := make([]string, 0, len(byID))
			for k := range byID {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			records := make([]rawRecord, 0, len(keys))
			for _, k := range keys {
				records = append(records, rawRecord{key: k, data: byID[k]})
			}
			return records, nil
		}
		return nil, fmt.Errorf("\"runs\" must be an object or an array")
	}
	return nil, fmt.Errorf("expected an object or an array")
}

func arrayRecords(data []byte) ([]rawRecord, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	records := make([]rawRecord, 0, len(list))
	for _, item := range list {
		records = append(records, rawRecord{data: item})
	}
	return records, nil
}

type fields map[string]json.RawMessage

func parseRecord(rec rawRecord) (domain.Run, error) {
	var f fields
	if err := json.Unmarshal(rec.data, &f); err != nil || f == nil {
		return domain.Run{}, fmt.Errorf("not an object")
	}

	var run domain.Run
	var err error

	if run.RunID, err = f.str("runId"); err != nil {
		return domain.Run{}, err
	}
	if run.RunID == "" {
		run.RunID = rec.key
	}
	if run.RunID == "" {
		return domain.Run{}, fmt.Errorf("missing runId")
	}
	if run.ChildSessionKey, err = f.str("childSessionKey"); err != nil {
		return domain.Run{}, err
	}
	if run.ChildSessionKey == "" {
		return domain.Run{}, fmt.Errorf("missing childSessionKey")
	}
	if run.RequesterSessionKey, err = f.str("requesterSessionKey"); err != nil {
		return domain.Run{}, err
	}
	if run.Task, err = f.str("task"); err != nil {
		return domain.Run{}, err
	}
	if run.Label, err = f.str("label"); err != nil {
		return domain.Run{}, err
	}

	created, err := f.timestamp("createdAt")
	if err != nil {
		return domain.Run{}, err
	}
	if created == nil {
		return domain.Run{}, fmt.Errorf("missing createdAt")
	}
	run.CreatedAt = *created
	if run.StartedAt, err = f.timestamp("startedAt"); err != nil {
		return domain.Run{}, err
	}
	if run.EndedAt, err = f.timestamp("endedAt"); err != nil {
		return domain.Run{}, err
	}
	if run.CleanupCompletedAt, err = f.timestamp("cleanupCompletedAt"); err != nil {
		return domain.Run{}, err
	}

	cleanup, err := f.str("cleanup")
	if err != nil {
		return domain.Run{}, err
	}
	run.Cleanup = domain.CleanupKeep
	if domain.CleanupPolicy(cleanup) == domain.CleanupDelete {
		run.Cleanup = domain.CleanupDelete
	}

	if run.Status, err = f.status(run.EndedAt != nil); err != nil {
		return domain.Run{}, err
	}

	if run.ChildAgentID, err = f.str("childAgentId"); err != nil {
		return domain.Run{}, err
	}
	if run.ChildAgentID == "" {
		run.ChildAgentID = AgentIDFromSessionKey(run.ChildSessionKey)
	}
	if run.ParentAgentID, err = f.str("parentAgentId"); err != nil {
		return domain.Run{}, err
	}
	if run.ParentAgentID == "" {
		run.ParentAgentID = AgentIDFromSessionKey(run.RequesterSessionKey)
	}
	if run.ParentAgentID == "" {
		run.ParentAgentID = DefaultAgentID
	}
	return run, nil
}

// AgentIDFromSessionKey extracts <id> from keys shaped "agent:<id>:...".
func AgentIDFromSessionKey(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 || parts[0] != "agent" {
		return ""
	}
	return parts[1]
}

func (f fields) str(key string) (string, error) {
	raw, ok := f[key]
	if !ok || isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return s, nil
}

// timestamp accepts epoch milliseconds as a number or numeric string, or an
// RFC 3339 string.
func (f fields) timestamp(key string) (*int64, error) {
	raw, ok := f[key]
	if !ok || isNull(raw) {
		return nil, nil
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] != '"' {
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return nil, fmt.Errorf("%s must be a timestamp", key)
		}
		ms, err := epochMillis(n)
		if err != nil {
			return nil, fmt.Errorf("%s %w", key, err)
		}
		return domain.Int64Ptr(ms), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%s must be a timestamp", key)
	}
	if ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return domain.Int64Ptr(ms), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("%s must be a timestamp", key)
	}
	return domain.Int64Ptr(t.UnixMilli()), nil
}

func (f fields) status(ended bool) (domain.RunStatus, error) {
	explicit, err := f.str("status")
	if err != nil {
		return "", err
	}
	switch domain.RunStatus(explicit) {
	case domain.RunStatusActive, domain.RunStatusOK, domain.RunStatusError:
		return domain.RunStatus(explicit), nil
	}

	if !ended {
		return domain.RunStatusActive, nil
	}
	var outcome struct {
		Status string `json:"status"`
	}
	if raw, ok := f["outcome"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &outcome); err != nil {
			return "", fmt.Errorf("outcome must be an object")
		}
	}
	if outcome.Status == string(domain.RunStatusOK) {
		return domain.RunStatusOK, nil
	}
	return domain.RunStatusError, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func diagnostic(code string, severity domain.DiagnosticSeverity, source, message string) domain.Diagnostic {
	return domain.Diagnostic{
		Code:     code,
		Severity: severity,
		Message:  message,
		Source:   source,
	}
}

// epochMillis accepts whole numbers in int64 range, including exponent forms
// such as 1.7e12.
func epochMillis(n json.Number) (int64, error) {
	if ms, err := n.Int64(); err == nil {
		return ms, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("must be whole epoch milliseconds, got %s", n)
	}
	return int64(f), nil
}
