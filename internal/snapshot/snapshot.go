// Package snapshot holds the per-repository milestone-bucketed activity
// structure and its durable JSON form.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/coursestats/gather/internal/milestone"
)

// DiffSummary is the persisted projection of per-commit diff statistics.
type DiffSummary struct {
	Files int `json:"files"`
	Total int `json:"total"`
}

// CommitActivity is one commit attributed to one contributor identity.
type CommitActivity struct {
	Message string      `json:"message"`
	Date    string      `json:"date"`
	Link    string      `json:"link"`
	Diff    DiffSummary `json:"diff"`
}

// DateKey returns the sort key used at finalization.
func (a CommitActivity) DateKey() string { return a.Date }

// CommentRecord is one resolved comment on an issue or pull request.
type CommentRecord struct {
	Author         string `json:"author"`
	AuthorFullName string `json:"author_full_name"`
	Body           string `json:"body"`
}

// IssueActivity is one issue or pull request attributed to its author. Diff
// is set for pull requests only.
type IssueActivity struct {
	Title             string          `json:"title"`
	Desc              string          `json:"desc"`
	Date              string          `json:"date"`
	Labels            []string        `json:"labels"`
	Assignees         []string        `json:"assignees"`
	AssigneeFullNames []string        `json:"assignee_full_names"`
	Link              string          `json:"link"`
	State             string          `json:"state"`
	Comments          []CommentRecord `json:"comments"`
	Diff              *DiffSummary    `json:"diff,omitempty"`
}

// DateKey returns the sort key used at finalization.
func (a IssueActivity) DateKey() string { return a.Date }

type dated interface {
	DateKey() string
}

// Entry is one contributor's accumulated activity.
type Entry[T dated] struct {
	Count    int
	FullName string
	List     []T
}

// ContributorMap maps contributor identities to their activity, preserving
// explicit key order so that the alphabetical-after-finalize contract is
// visible in the persisted bytes.
type ContributorMap[T dated] struct {
	keys    []string
	entries map[string]*Entry[T]
}

// NewContributorMap creates an empty contributor map.
func NewContributorMap[T dated]() *ContributorMap[T] {
	return &ContributorMap[T]{entries: make(map[string]*Entry[T])}
}

// Add appends one activity record under the given identity, creating the
// entry on first use.
func (m *ContributorMap[T]) Add(identity, fullName string, item T) {
	entry, ok := m.entries[identity]
	if !ok {
		entry = &Entry[T]{FullName: fullName, List: []T{}}
		m.entries[identity] = entry
		m.keys = append(m.keys, identity)
	}
	entry.List = append(entry.List, item)
	entry.Count++
}

// Len reports the number of contributor identities.
func (m *ContributorMap[T]) Len() int {
	return len(m.keys)
}

// Total reports the number of activity records across all identities.
func (m *ContributorMap[T]) Total() int {
	total := 0
	for _, entry := range m.entries {
		total += entry.Count
	}
	return total
}

// Keys returns the identities in current map order.
func (m *ContributorMap[T]) Keys() []string {
	return slices.Clone(m.keys)
}

// Get returns the entry for an identity, or nil.
func (m *ContributorMap[T]) Get(identity string) *Entry[T] {
	return m.entries[identity]
}

// Finalize sorts identities alphabetically and each activity list by date
// ascending. Idempotent.
func (m *ContributorMap[T]) Finalize() {
	slices.Sort(m.keys)
	for _, entry := range m.entries {
		slices.SortStableFunc(entry.List, func(a, b T) int {
			return bytes.Compare([]byte(a.DateKey()), []byte(b.DateKey()))
		})
	}
}

type entryJSON[T dated] struct {
	Count    int    `json:"count"`
	List     []T    `json:"list"`
	FullName string `json:"full_name"`
}

// MarshalJSON emits the map as a JSON object in current key order. Values go
// through an escape-disabled encoder so the no-HTML-escaping contract of the
// persisted form survives the nested marshal.
func (m *ContributorMap[T]) MarshalJSON() ([]byte, error) {
	buf := bytes.Buffer{}
	buf.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodedKey, err := encodeNoEscape(key)
		if err != nil {
			return nil, err
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		entry := m.entries[key]
		encodedEntry, err := encodeNoEscape(entryJSON[T]{
			Count:    entry.Count,
			List:     entry.List,
			FullName: entry.FullName,
		})
		if err != nil {
			return nil, err
		}
		buf.Write(encodedEntry)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeNoEscape(v any) ([]byte, error) {
	buf := bytes.Buffer{}
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON restores a map from its persisted object form. Key order
// follows the document order.
func (m *ContributorMap[T]) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	token, err := decoder.Token()
	if err != nil {
		return err
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("contributor map: expected object")
	}

	m.keys = nil
	m.entries = make(map[string]*Entry[T])
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return err
		}
		key, _ := keyToken.(string)
		var entry entryJSON[T]
		if err := decoder.Decode(&entry); err != nil {
			return err
		}
		m.keys = append(m.keys, key)
		m.entries[key] = &Entry[T]{
			Count:    entry.Count,
			FullName: entry.FullName,
			List:     entry.List,
		}
	}
	return nil
}

// Bucket holds one milestone's contributor maps.
type Bucket struct {
	Date    string                          `json:"date"`
	Commits *ContributorMap[CommitActivity] `json:"commits"`
	Issues  *ContributorMap[IssueActivity]  `json:"issues"`
	PRs     *ContributorMap[IssueActivity]  `json:"prs"`
}

// Snapshot is the full ordered bucket sequence for one repository.
type Snapshot struct {
	Buckets []*Bucket
}

// New creates an empty snapshot with one bucket per milestone instant, in
// the given order.
func New(milestones []time.Time) *Snapshot {
	snap := &Snapshot{}
	for _, instant := range milestones {
		snap.Buckets = append(snap.Buckets, &Bucket{
			Date:    milestone.DisplayTime(instant),
			Commits: NewContributorMap[CommitActivity](),
			Issues:  NewContributorMap[IssueActivity](),
			PRs:     NewContributorMap[IssueActivity](),
		})
	}
	return snap
}

// Finalize sorts every bucket's contributor maps. Finalizing twice produces
// the same bytes.
func (s *Snapshot) Finalize() {
	for _, bucket := range s.Buckets {
		bucket.Commits.Finalize()
		bucket.Issues.Finalize()
		bucket.PRs.Finalize()
	}
}

// MarshalJSON emits the snapshot as the ordered bucket array.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return encodeNoEscape(s.Buckets)
}

// UnmarshalJSON restores the ordered bucket array.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &s.Buckets)
}
