package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sentra/schematron/internal/engine"
)

// WriteRun archives a completed run: the run row, its active patterns
// and every firing record, in a single transaction. Returns whether a
// new run was inserted; archiving a token that already exists is a
// no-op (idempotent).
func (s *Store) WriteRun(ctx context.Context, rep *engine.Report, verdict engine.Verdict) (inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("archive run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (token, schema_title, phase, verdict, record_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`,
		rep.RunToken,
		rep.SchemaTitle,
		rep.Phase,
		verdict.String(),
		len(rep.Records),
	)
	if err != nil {
		return false, fmt.Errorf("archive run: insert run: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("archive run: rows affected: %w", err)
	}
	if rows == 0 {
		slog.Debug("run already archived, skipping", "run", rep.RunToken)
		return false, nil
	}

	for i, id := range rep.ActivePatterns {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO active_patterns (run_token, position, pattern_id)
			VALUES (?, ?, ?)
		`, rep.RunToken, i, id); err != nil {
			return false, fmt.Errorf("archive run: insert active pattern: %w", err)
		}
	}

	for _, rec := range rep.Records {
		diags, err := marshalDiagnostics(rec.Diagnostics)
		if err != nil {
			return false, fmt.Errorf("archive run: seq %d: %w", rec.Seq, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO firings
			(run_token, seq, pattern_id, rule_id, rule_context, assertion_id,
			 kind, test, location, outcome, message, role, flag, diagnostics)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rep.RunToken,
			rec.Seq,
			rec.PatternID,
			rec.RuleID,
			rec.RuleContext,
			rec.AssertionID,
			rec.Kind.String(),
			rec.Test,
			rec.Location,
			boolInt(rec.Outcome),
			rec.Message,
			rec.Role,
			rec.Flag,
			diags,
		); err != nil {
			return false, fmt.Errorf("archive run: insert firing seq %d: %w", rec.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("archive run: commit: %w", err)
	}

	slog.Info("run archived",
		"run", rep.RunToken,
		"verdict", verdict.String(),
		"records", len(rep.Records),
	)
	return true, nil
}

func marshalDiagnostics(diags []engine.DiagnosticText) (string, error) {
	if len(diags) == 0 {
		return "[]", nil
	}
	out, err := json.Marshal(diags)
	if err != nil {
		return "", fmt.Errorf("marshal diagnostics: %w", err)
	}
	return string(out), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
