package controllers

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/weaveworks/apptrust-promoter/api/v1alpha1"
)

// StateSink hands the flat run state to later pipeline steps.
type StateSink interface {
	Persist(values map[string]string) error
}

// RunState is the state of one pipeline run. Keyed values can only be overwritten, the promoted stages log can
// only be appended to. It's written by the ProgressionController only.
type RunState struct {
	mu       sync.Mutex
	values   map[string]string
	promoted []v1alpha1.Stage
	sink     StateSink
}

// NewRunState creates an empty run state. A nil sink keeps the state in memory only.
func NewRunState(sink StateSink) *RunState {
	return &RunState{
		values: map[string]string{},
		sink:   sink,
	}
}

// RunStateFromEnv creates a run state seeded with what previous steps of the same run persisted.
func RunStateFromEnv(sink StateSink, lookup func(string) (string, bool)) *RunState {
	s := NewRunState(sink)
	for _, key := range []string{v1alpha1.CurrentStageKey, v1alpha1.ReleaseStatusKey, v1alpha1.DidReleaseKey} {
		if v, ok := lookup(key); ok {
			s.values[key] = v
		}
	}
	if v, ok := lookup(v1alpha1.PromotedStagesKey); ok {
		for _, stage := range strings.Split(v, ",") {
			if stage = strings.TrimSpace(stage); stage != "" {
				s.promoted = append(s.promoted, v1alpha1.Stage(stage))
			}
		}
	}
	return s
}

// Set overwrites the value stored under key.
func (s *RunState) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *RunState) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// AppendPromoted records that stage has been reached.
func (s *RunState) AppendPromoted(stage v1alpha1.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promoted = append(s.promoted, stage)
}

// PromotedStages returns a copy of the promoted stages log.
func (s *RunState) PromotedStages() []v1alpha1.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]v1alpha1.Stage, len(s.promoted))
	copy(out, s.promoted)
	return out
}

// Snapshot returns the flat key/value form of the state.
func (s *RunState) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.values)+1)
	for k, v := range s.values {
		out[k] = v
	}
	names := make([]string, len(s.promoted))
	for i, stage := range s.promoted {
		names[i] = string(stage)
	}
	out[v1alpha1.PromotedStagesKey] = strings.Join(names, ",")
	return out
}

// Persist writes the snapshot to the sink.
func (s *RunState) Persist() error {
	if s.sink == nil {
		return nil
	}
	return s.sink.Persist(s.Snapshot())
}

// EnvFileSink appends KEY=VALUE lines to a file, as consumed through GITHUB_ENV. Later lines win.
type EnvFileSink struct {
	Path string
}

// Persist writes all values or none of them.
func (e EnvFileSink) Persist(values map[string]string) error {
	var b strings.Builder
	for _, key := range sortedKeys(values) {
		value := values[key]
		if strings.ContainsAny(value, "\r\n") {
			return fmt.Errorf("value of %s spans multiple lines", key)
		}
		fmt.Fprintf(&b, "%s=%s\n", key, value)
	}

	f, err := os.OpenFile(e.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed opening state file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed writing state file: %w", err)
	}
	return nil
}

// JSONSink writes the state as a JSON object.
type JSONSink struct {
	W io.Writer
}

func (j JSONSink) Persist(values map[string]string) error {
	enc := json.NewEncoder(j.W)
	enc.SetIndent("", "  ")
	return enc.Encode(values)
}

// MultiSink persists to every sink, stopping at the first error.
type MultiSink []StateSink

func (m MultiSink) Persist(values map[string]string) error {
	for _, s := range m {
		if err := s.Persist(values); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
