// Package statestore reads the multi-agent runtime's filesystem state.
//
// Unreadable files and malformed records become diagnostics next to whatever
// could be parsed. Only context cancellation is returned as an error.
package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/xiaot623/runview/internal/domain"
)

// Result is everything parsed from one read of the state directory.
type Result struct {
	Runs        []domain.Run
	Entities    []domain.Entity
	Diagnostics []domain.Diagnostic
}

// Reader reads a state directory laid out as
//
//	<root>/subagents/runs.json
//	<root>/agents/<agentId>/agent.json
type Reader struct {
	root string
}

// NewReader creates a new Reader rooted at root.
func NewReader(root string) *Reader {
	return &Reader{root: root}
}

// Root returns the state directory.
func (r *Reader) Root() string {
	return r.root
}

func (r *Reader) runsPath() string {
	return filepath.Join(r.root, "subagents", "runs.json")
}

func (r *Reader) agentsDir() string {
	return filepath.Join(r.root, "agents")
}

// Read parses the state directory.
func (r *Reader) Read(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := &Result{}

	runs, diags := r.readRuns()
	result.Runs = runs
	result.Diagnostics = append(result.Diagnostics, diags...)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entities, diags := r.readAgents()
	result.Entities = entities
	result.Diagnostics = append(result.Diagnostics, diags...)

	return result, nil
}

func (r *Reader) readRuns() ([]domain.Run, []domain.Diagnostic) {
	path := r.runsPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, []domain.Diagnostic{diagnostic(domain.DiagSourceRunsAbsent, domain.SeverityInfo, path,
				"no subagent runs recorded yet")}
		}
		return nil, []domain.Diagnostic{diagnostic(domain.DiagRunsFileUnreadable, domain.SeverityError, path,
			fmt.Sprintf("failed to read runs file: %v", err))}
	}
	return ParseRuns(data, path)
}

type agentFile struct {
	Name string `json:"name"`
}

func (r *Reader) readAgents() ([]domain.Entity, []domain.Diagnostic) {
	dir := r.agentsDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, []domain.Diagnostic{diagnostic(domain.DiagSourceAgentsAbsent, domain.SeverityInfo, dir,
				"no agents directory")}
		}
		return nil, []domain.Diagnostic{diagnostic(domain.DiagAgentsDirUnreadable, domain.SeverityError, dir,
			fmt.Sprintf("failed to list agents: %v", err))}
	}

	var entities []domain.Entity
	var diags []domain.Diagnostic
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		entity := domain.Entity{ID: entry.Name(), Kind: string(domain.NodeKindAgent)}

		path := filepath.Join(dir, entry.Name(), "agent.json")
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			diags = append(diags, diagnostic(domain.DiagEntityEntryInvalid, domain.SeverityError, path,
				fmt.Sprintf("failed to read agent file: %v", err)))
		default:
			var meta agentFile
			if err := json.Unmarshal(data, &meta); err != nil {
				diags = append(diags, diagnostic(domain.DiagEntityEntryInvalid, domain.SeverityError, path,
					fmt.Sprintf("agent file is not valid: %v", err)))
			} else {
				entity.Name = meta.Name
			}
		}
		entities = append(entities, entity)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	return entities, diags
}
