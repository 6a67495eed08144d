package domain

import "testing"

// TestDiagnosticReportProblems verifies passing items are left out.
func TestDiagnosticReportProblems(t *testing.T) {
	report := DiagnosticReport{Items: []DiagnosticItem{
		{ID: "browser", Status: DiagnosticStatusPass},
		{ID: "download_dir", Status: DiagnosticStatusFail},
		{ID: "listen_addr", Status: DiagnosticStatusWarn},
	}}

	problems := report.Problems()
	if len(problems) != 2 || problems[0].ID != "download_dir" || problems[1].ID != "listen_addr" {
		t.Fatalf("problems = %+v", problems)
	}

	item, ok := report.Item("listen_addr")
	if !ok || item.Status != DiagnosticStatusWarn {
		t.Fatalf("Item(listen_addr) = %+v, %v", item, ok)
	}
	if _, ok := report.Item("missing"); ok {
		t.Fatal("expected missing item lookup to fail")
	}
}

// TestJobStateIsTerminal verifies only done and failed are terminal.
func TestJobStateIsTerminal(t *testing.T) {
	for _, state := range []JobState{JobStatePending, JobStateRevealing, JobStateExtracting, JobStateDownloading, JobStateArchiving} {
		if state.IsTerminal() {
			t.Fatalf("%s reported terminal", state)
		}
	}
	if !JobStateDone.IsTerminal() || !JobStateFailed.IsTerminal() {
		t.Fatal("done and failed must be terminal")
	}
}
