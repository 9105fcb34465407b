package domain

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"
)

func TestNormalizeTagsDropsDuplicatesAndBlanks(t *testing.T) {
	got := NormalizeTags([]string{"Smoking Gun", " Smoking Gun ", "", "smoking gun", "Exhibit A"})
	want := []string{"Smoking Gun", "smoking gun", "Exhibit A"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeTags() = %v, want %v", got, want)
	}
}

func TestEditTagsRemovesBeforeAdding(t *testing.T) {
	got := EditTags([]string{"a", "b", "c"}, []string{"b", "d", "d"}, []string{"b", "c"})
	want := []string{"a", "b", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("EditTags() = %v, want %v", got, want)
	}
}

func TestParseCategory(t *testing.T) {
	cases := map[string]Category{
		"contract":           CategoryContract,
		"Medical Record":     CategoryMedicalRecord,
		"financial-document": CategoryFinancialDocument,
		"spreadsheet":        CategoryOther,
		"":                   CategoryOther,
	}
	for raw, want := range cases {
		if got := ParseCategory(raw); got != want {
			t.Fatalf("ParseCategory(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestMergeRemoteObjectNeverRegressesCompleted(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	local := Evidence{
		ID:              "obj-1",
		RemoteObjectID:  "obj-1",
		Filename:        "contract.pdf",
		Category:        CategoryContract,
		Tags:            []string{"agreement"},
		Summary:         "Signed agreement.",
		RelevanceScore:  80,
		IngestionStatus: IngestionCompleted,
	}

	for _, remote := range []RemoteStatus{RemotePending, RemoteProcessing, RemoteFailed} {
		merged, _ := MergeRemoteObject(local, RemoteObject{ID: "obj-1", IngestionStatus: remote}, now)
		if merged.IngestionStatus != IngestionCompleted {
			t.Fatalf("remote %s regressed status to %s", remote, merged.IngestionStatus)
		}
		if merged.Category != CategoryContract || merged.Summary != "Signed agreement." || merged.RelevanceScore != 80 {
			t.Fatalf("remote %s overwrote classification: %+v", remote, merged)
		}
	}
}

func TestMergeRemoteObjectAdvancesUnfinishedRecord(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	local := Evidence{ID: "obj-1", RemoteObjectID: "obj-1", IngestionStatus: IngestionPending}

	merged, changed := MergeRemoteObject(local, RemoteObject{ID: "obj-1", IngestionStatus: RemoteCompleted, SizeBytes: 42}, now)
	if !changed {
		t.Fatalf("expected change")
	}
	if merged.IngestionStatus != IngestionProcessing {
		t.Fatalf("expected processing while classification is outstanding, got %s", merged.IngestionStatus)
	}
	if merged.SizeBytes != 42 || !merged.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected merge result: %+v", merged)
	}
}

func TestEffectiveDatePrefersDetectedDate(t *testing.T) {
	created := time.Date(2025, 5, 6, 23, 0, 0, 0, time.UTC)
	rec := Evidence{CreatedAt: created}
	if got := rec.EffectiveDate(); got != "2025-05-06" {
		t.Fatalf("EffectiveDate() = %s", got)
	}
	rec.DateDetected = "2019-03-04"
	if got := rec.EffectiveDate(); got != "2019-03-04" {
		t.Fatalf("EffectiveDate() = %s", got)
	}
}

func TestTruncateTextCountsRunes(t *testing.T) {
	if got := TruncateText("résumé", 3); got != "rés" {
		t.Fatalf("TruncateText() = %q", got)
	}
	if got := TruncateText("short", 100); got != "short" {
		t.Fatalf("TruncateText() = %q", got)
	}
}

func TestStillProcessingErrorIsKind(t *testing.T) {
	err := fmt.Errorf("classify: %w", NewStillProcessing(RemoteProcessing))
	if !errors.Is(err, ErrStillProcessing) {
		t.Fatalf("expected ErrStillProcessing kind")
	}
	status, ok := StillProcessingStatus(err)
	if !ok || status != RemoteProcessing {
		t.Fatalf("expected processing hint, got %q %v", status, ok)
	}
}

func TestIsImage(t *testing.T) {
	if !IsImage("image/png", "x.bin") || !IsImage("", "scan.JPG") {
		t.Fatalf("expected image detection")
	}
	if IsImage("application/pdf", "contract_v2.pdf") {
		t.Fatalf("pdf is not an image")
	}
}

func TestPatchOnlyIfNotCompletedSkipsCompletedRecord(t *testing.T) {
	rec := NewPendingEvidence("case-1", "obj-1", "a.pdf", "application/pdf", 1, time.Now())
	rec.IngestionStatus = IngestionCompleted
	rec.Category = CategoryContract

	if WaitingStatusPatch(IngestionProcessing).Apply(&rec) {
		t.Fatalf("expected waiting patch to be skipped on a completed record")
	}
	if rec.IngestionStatus != IngestionCompleted {
		t.Fatalf("completed record regressed to %s", rec.IngestionStatus)
	}

	rec.IngestionStatus = IngestionPending
	if !WaitingStatusPatch(IngestionProcessing).Apply(&rec) || rec.IngestionStatus != IngestionProcessing {
		t.Fatalf("expected pending record to advance, got %s", rec.IngestionStatus)
	}
}

func TestPatchAddTagsKeepsCurrentTags(t *testing.T) {
	rec := NewPendingEvidence("case-1", "obj-1", "a.pdf", "application/pdf", 1, time.Now())
	rec.Tags = []string{"Smoking Gun"}

	EvidencePatch{AddTags: []string{"agreement", "Smoking Gun", "signed"}}.Apply(&rec)

	want := []string{"Smoking Gun", "agreement", "signed"}
	if len(rec.Tags) != len(want) {
		t.Fatalf("tags = %v, want %v", rec.Tags, want)
	}
	for i := range want {
		if rec.Tags[i] != want[i] {
			t.Fatalf("tags = %v, want %v", rec.Tags, want)
		}
	}
}

func TestMergeRemoteListingSkipsCompletedAndAddsUnknown(t *testing.T) {
	done := NewPendingEvidence("case-1", "obj-1", "a.pdf", "application/pdf", 1, time.Now())
	done.IngestionStatus = IngestionCompleted
	now := time.Now()

	changed, added := MergeRemoteListing("case-1", []Evidence{done}, []RemoteObject{
		{ID: "obj-1", IngestionStatus: RemoteProcessing},
		{ID: "obj-2", Filename: "b.pdf", IngestionStatus: RemotePending},
	}, now)

	if added != 1 || len(changed) != 1 || changed[0].ID != "obj-2" {
		t.Fatalf("unexpected merge: added=%d changed=%+v", added, changed)
	}
}

func TestClampRelevanceFloatHandlesOutOfRange(t *testing.T) {
	cases := map[float64]int{1e20: 100, -1e20: 0, 72.4: 72, 99.5: 100, math.Inf(1): 100}
	for in, want := range cases {
		if got := ClampRelevanceFloat(in); got != want {
			t.Fatalf("ClampRelevanceFloat(%v) = %d, want %d", in, got, want)
		}
	}
	if got := ClampRelevanceFloat(math.NaN()); got != DefaultRelevance {
		t.Fatalf("NaN should map to default, got %d", got)
	}
}
