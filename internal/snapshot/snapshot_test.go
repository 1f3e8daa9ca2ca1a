package snapshot

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coursestats/gather/internal/milestone"
)

func sampleCommit(date string) CommitActivity {
	return CommitActivity{
		Message: "change " + date,
		Date:    date,
		Link:    "https://example.test/commit",
		Diff:    DiffSummary{Files: 1, Total: 2},
	}
}

func TestContributorMapFinalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	contributors := NewContributorMap[CommitActivity]()
	contributors.Add("zoe", "Zoe Z", sampleCommit("2025-10-02 10:00:00"))
	contributors.Add("alice", "Alice A", sampleCommit("2025-10-03 10:00:00"))
	contributors.Add("alice", "Alice A", sampleCommit("2025-10-01 10:00:00"))
	contributors.Add("bob", "Bob B", sampleCommit("2025-10-02 09:00:00"))

	contributors.Finalize()
	first, err := json.Marshal(contributors)
	if err != nil {
		t.Fatalf("marshal after first finalize: %v", err)
	}

	contributors.Finalize()
	second, err := json.Marshal(contributors)
	if err != nil {
		t.Fatalf("marshal after second finalize: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Fatalf("finalize is not idempotent:\nfirst:  %s\nsecond: %s", first, second)
	}

	wantKeys := []string{"alice", "bob", "zoe"}
	gotKeys := contributors.Keys()
	if len(gotKeys) != len(wantKeys) {
		t.Fatalf("keys = %v, want %v", gotKeys, wantKeys)
	}
	for i, want := range wantKeys {
		if gotKeys[i] != want {
			t.Fatalf("keys = %v, want %v", gotKeys, wantKeys)
		}
	}

	alice := contributors.Get("alice")
	if alice.Count != 2 {
		t.Fatalf("alice count = %d, want 2", alice.Count)
	}
	if alice.List[0].Date != "2025-10-01 10:00:00" {
		t.Fatalf("alice list not date-ascending: %v", alice.List)
	}
}

func TestContributorMapMarshalPreservesKeyOrder(t *testing.T) {
	t.Parallel()

	contributors := NewContributorMap[CommitActivity]()
	contributors.Add("zoe", "Zoe Z", sampleCommit("2025-10-01 10:00:00"))
	contributors.Add("alice", "Alice A", sampleCommit("2025-10-02 10:00:00"))

	encoded, err := json.Marshal(contributors)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if zoe, alice := bytes.Index(encoded, []byte(`"zoe"`)), bytes.Index(encoded, []byte(`"alice"`)); zoe > alice {
		t.Fatalf("insertion order not preserved before finalize: %s", encoded)
	}

	contributors.Finalize()
	encoded, err = json.Marshal(contributors)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if zoe, alice := bytes.Index(encoded, []byte(`"zoe"`)), bytes.Index(encoded, []byte(`"alice"`)); alice > zoe {
		t.Fatalf("alphabetical order not applied after finalize: %s", encoded)
	}
}

func TestSnapshotJSONShape(t *testing.T) {
	t.Parallel()

	milestones := []time.Time{
		time.Date(2025, 10, 15, 0, 0, 0, 0, milestone.DisplayZone),
	}
	snap := New(milestones)
	snap.Buckets[0].Commits.Add("alice", "Alice Ärvelö", CommitActivity{
		Message: "fix <escaping> & unicode",
		Date:    "2025-10-01 10:00:00",
		Link:    "https://example.test/commit?a=1&b=2",
		Diff:    DiffSummary{Files: 3, Total: 17},
	})
	snap.Buckets[0].Issues.Add("bob", "Bob B", IssueActivity{
		Title:             "widget breaks",
		Desc:              "details",
		Date:              "2025-10-02 11:00:00",
		Labels:            []string{"bug"},
		Assignees:         []string{"alice"},
		AssigneeFullNames: []string{"Alice Ärvelö"},
		Link:              "https://example.test/issues/7",
		State:             "open",
		Comments: []CommentRecord{
			{Author: "carol", AuthorFullName: "Carol C", Body: "same here"},
		},
	})
	snap.Finalize()

	encoded, err := Encode(snap)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	for _, want := range []string{
		`"date": "2025-10-15 00:00:00"`,
		`"count": 1`,
		`"full_name": "Alice Ärvelö"`,
		`"author_full_name": "Carol C"`,
		`"assignee_full_names"`,
		`"files": 3`,
		`"total": 17`,
		"\n    ",
		"fix <escaping> & unicode",
		"https://example.test/commit?a=1&b=2",
	} {
		if !bytes.Contains(encoded, []byte(want)) {
			t.Fatalf("encoded snapshot missing %q:\n%s", want, encoded)
		}
	}
	if bytes.Contains(encoded, []byte(`\u003c`)) || bytes.Contains(encoded, []byte(`\u0026`)) {
		t.Fatalf("encoded snapshot must not HTML-escape: %s", encoded)
	}

	var restored Snapshot
	if err := json.Unmarshal(encoded, &restored); err != nil {
		t.Fatalf("unmarshal round trip: %v", err)
	}
	if len(restored.Buckets) != 1 {
		t.Fatalf("restored buckets = %d, want 1", len(restored.Buckets))
	}
	if restored.Buckets[0].Commits.Get("alice") == nil {
		t.Fatalf("restored snapshot lost alice's commits")
	}
}

func TestWriterPersistReplacesWholeFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "acme-widget.json")

	snap := New([]time.Time{time.Date(2025, 10, 15, 0, 0, 0, 0, milestone.DisplayZone)})
	writer := Writer{}

	snap.Buckets[0].Commits.Add("alice", "Alice A", sampleCommit("2025-10-01 10:00:00"))
	if err := writer.Persist(snap, path); err != nil {
		t.Fatalf("first persist: %v", err)
	}

	snap.Buckets[0].Commits.Add("bob", "Bob B", sampleCommit("2025-10-02 10:00:00"))
	if err := writer.Persist(snap, path); err != nil {
		t.Fatalf("second persist: %v", err)
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var restored Snapshot
	if err := json.Unmarshal(payload, &restored); err != nil {
		t.Fatalf("parse persisted snapshot: %v", err)
	}
	if restored.Buckets[0].Commits.Len() != 2 {
		t.Fatalf("persisted contributors = %d, want 2", restored.Buckets[0].Commits.Len())
	}

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp-*"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}
