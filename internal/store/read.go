package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sentra/schematron/internal/engine"
	"github.com/sentra/schematron/internal/schema"
)

// ErrRunNotFound is returned by ReadRun for an unknown token.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is one row of the archive listing.
type RunSummary struct {
	Token       string    `json:"token"`
	SchemaTitle string    `json:"schema_title"`
	Phase       string    `json:"phase"`
	Verdict     string    `json:"verdict"`
	RecordCount int       `json:"record_count"`
	ArchivedAt  time.Time `json:"archived_at"`
}

// ReadRun reconstructs an archived run: the full report plus the
// verdict recorded at archive time. Returns ErrRunNotFound for an
// unknown token.
func (s *Store) ReadRun(ctx context.Context, token string) (*engine.Report, engine.Verdict, error) {
	var (
		rep     engine.Report
		verdict string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT token, schema_title, phase, verdict
		FROM runs WHERE token = ?
	`, token).Scan(&rep.RunToken, &rep.SchemaTitle, &rep.Phase, &verdict)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.VerdictValid, fmt.Errorf("read run %s: %w", token, ErrRunNotFound)
	}
	if err != nil {
		return nil, engine.VerdictValid, fmt.Errorf("read run %s: %w", token, err)
	}

	v, err := engine.ParseVerdict(verdict)
	if err != nil {
		return nil, engine.VerdictValid, fmt.Errorf("read run %s: %w", token, err)
	}

	rep.ActivePatterns, err = s.readActivePatterns(ctx, token)
	if err != nil {
		return nil, engine.VerdictValid, fmt.Errorf("read run %s: %w", token, err)
	}

	rep.Records, err = s.readFirings(ctx, token)
	if err != nil {
		return nil, engine.VerdictValid, fmt.Errorf("read run %s: %w", token, err)
	}

	return &rep, v, nil
}

// ListRuns returns archive summaries, most recently archived first.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, schema_title, phase, verdict, record_count, archived_at
		FROM runs
		ORDER BY archived_at DESC, token
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			sum RunSummary
			at  string
		)
		if err := rows.Scan(&sum.Token, &sum.SchemaTitle, &sum.Phase, &sum.Verdict, &sum.RecordCount, &at); err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		sum.ArchivedAt, err = time.Parse(time.DateTime, at)
		if err != nil {
			return nil, fmt.Errorf("list runs: archived_at: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

func (s *Store) readActivePatterns(ctx context.Context, token string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pattern_id FROM active_patterns
		WHERE run_token = ?
		ORDER BY position
	`, token)
	if err != nil {
		return nil, fmt.Errorf("active patterns: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("active patterns: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) readFirings(ctx context.Context, token string) ([]engine.FiringRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, pattern_id, rule_id, rule_context, assertion_id,
		       kind, test, location, outcome, message, role, flag, diagnostics
		FROM firings
		WHERE run_token = ?
		ORDER BY seq
	`, token)
	if err != nil {
		return nil, fmt.Errorf("firings: %w", err)
	}
	defer rows.Close()

	var recs []engine.FiringRecord
	for rows.Next() {
		var (
			rec     engine.FiringRecord
			kind    string
			outcome int
			diags   string
		)
		if err := rows.Scan(
			&rec.Seq, &rec.PatternID, &rec.RuleID, &rec.RuleContext, &rec.AssertionID,
			&kind, &rec.Test, &rec.Location, &outcome, &rec.Message, &rec.Role, &rec.Flag, &diags,
		); err != nil {
			return nil, fmt.Errorf("firings: scan: %w", err)
		}
		rec.Kind, err = parseKind(kind)
		if err != nil {
			return nil, fmt.Errorf("firings: seq %d: %w", rec.Seq, err)
		}
		rec.Outcome = outcome != 0
		if diags != "" && diags != "[]" {
			if err := json.Unmarshal([]byte(diags), &rec.Diagnostics); err != nil {
				return nil, fmt.Errorf("firings: seq %d: diagnostics: %w", rec.Seq, err)
			}
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func parseKind(s string) (schema.Kind, error) {
	switch s {
	case "assert":
		return schema.KindAssert, nil
	case "report":
		return schema.KindReport, nil
	default:
		return 0, fmt.Errorf("unknown record kind %q", s)
	}
}
