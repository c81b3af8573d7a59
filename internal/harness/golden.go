package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/sentra/schematron/internal/svrl"
)

// RunWithGolden executes a scenario and compares its SVRL report
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files:
//
//	go test ./internal/harness -update
//
// Golden comparison is byte-exact, which is what makes it a
// determinism check: the fixed run token plus the engine's stable
// ordering must reproduce the identical document every time.
func RunWithGolden(t *testing.T, sc *Scenario) *Result {
	t.Helper()

	res, err := Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("scenario %s: %v", sc.Name, err)
	}
	for _, f := range res.Failures {
		t.Errorf("scenario %s: %s", sc.Name, f)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, sc.Name, svrl.Bytes(res.Report))

	return res
}
