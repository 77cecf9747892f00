package maintenance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakePurger struct {
	mu         sync.Mutex
	characters int
	members    int
	memberErr  error
	calls      map[string]int
}

func (f *fakePurger) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
}

func (f *fakePurger) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakePurger) PurgeInactiveCharacters(context.Context) (int, error) {
	f.record(JobInactiveCharacters)
	return f.characters, nil
}

func (f *fakePurger) PurgeKickedMembers(context.Context) (int, error) {
	f.record(JobKickedMembers)
	return f.members, f.memberErr
}

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("maintenance", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "data/netlink.db" {
		t.Fatalf("expected default db path, got %q", cfg.DBPath)
	}
	if cfg.CharacterSchedule != "0 3 * * *" {
		t.Fatalf("expected default character schedule, got %q", cfg.CharacterSchedule)
	}
	if cfg.Timeout != 10*time.Minute {
		t.Fatalf("expected default timeout, got %v", cfg.Timeout)
	}
	if cfg.Once {
		t.Fatal("expected scheduled mode by default")
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("ZENITE_MAINTENANCE_MEMBER_SCHEDULE", "@hourly")
	fs := flag.NewFlagSet("maintenance", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-once", "-json", "-db-path", "flag.db", "-timeout", "30s"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if !cfg.Once || !cfg.JSONOutput {
		t.Fatalf("expected once and json flags, got %+v", cfg)
	}
	if cfg.DBPath != "flag.db" {
		t.Fatalf("expected flag db path, got %q", cfg.DBPath)
	}
	if cfg.MemberSchedule != "@hourly" {
		t.Fatalf("expected env member schedule, got %q", cfg.MemberSchedule)
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("expected flag timeout, got %v", cfg.Timeout)
	}
}

func TestRunJobsOnce(t *testing.T) {
	p := &fakePurger{characters: 3, members: 1}
	var out bytes.Buffer
	err := RunJobs(context.Background(), Config{Once: true, Timeout: time.Second}, p, nil, &out, nil)
	if err != nil {
		t.Fatalf("run jobs: %v", err)
	}
	want := "inactive-characters: deleted 3\nkicked-members: deleted 1\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}

func TestRunJobsOnceJSONReportsFailures(t *testing.T) {
	p := &fakePurger{characters: 2, memberErr: errors.New("db locked")}
	var out bytes.Buffer
	err := RunJobs(context.Background(), Config{Once: true, JSONOutput: true}, p, nil, &out, nil)
	if err == nil || !strings.Contains(err.Error(), "kicked-members: db locked") {
		t.Fatalf("expected joined job error, got %v", err)
	}

	dec := json.NewDecoder(&out)
	var reports []Report
	for dec.More() {
		var r Report
		if err := dec.Decode(&r); err != nil {
			t.Fatalf("decode report: %v", err)
		}
		reports = append(reports, r)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].Job != JobInactiveCharacters || reports[0].Deleted != 2 || reports[0].Error != "" {
		t.Fatalf("unexpected character report: %+v", reports[0])
	}
	if reports[1].Job != JobKickedMembers || reports[1].Error != "db locked" {
		t.Fatalf("unexpected member report: %+v", reports[1])
	}
}

func TestRunJobsRejectsInvalidSchedule(t *testing.T) {
	cfg := Config{CharacterSchedule: "not a schedule", MemberSchedule: "@daily"}
	err := RunJobs(context.Background(), cfg, &fakePurger{}, nil, nil, nil)
	if err == nil || !strings.Contains(err.Error(), JobInactiveCharacters) {
		t.Fatalf("expected invalid schedule error, got %v", err)
	}
}

func TestRunJobsRequiresSchedule(t *testing.T) {
	cfg := Config{CharacterSchedule: "@daily"}
	err := RunJobs(context.Background(), cfg, &fakePurger{}, nil, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "schedule is required") {
		t.Fatalf("expected missing schedule error, got %v", err)
	}
}

func TestRunJobsScheduledUntilCancel(t *testing.T) {
	p := &fakePurger{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunJobs(ctx, Config{CharacterSchedule: "@every 1s", MemberSchedule: "@yearly"}, p, nil, nil, nil)
	}()

	deadline := time.After(5 * time.Second)
	for p.count(JobInactiveCharacters) == 0 {
		select {
		case <-deadline:
			cancel()
			t.Fatal("scheduled job did not run")
		case <-time.After(50 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run jobs: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run jobs did not stop")
	}
	if p.count(JobKickedMembers) != 0 {
		t.Fatalf("yearly job should not have run")
	}
}

func TestRunOnceAgainstSQLite(t *testing.T) {
	t.Setenv("ZENITE_OTEL_ENDPOINT", "")
	cfg := Config{
		DBPath:  filepath.Join(t.TempDir(), "netlink.db"),
		Once:    true,
		Timeout: 5 * time.Second,
	}
	cfg.Log.Level = "error"
	cfg.Log.Format = "console"
	var out bytes.Buffer
	if err := Run(context.Background(), cfg, &out, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "inactive-characters: deleted 0\nkicked-members: deleted 0\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}
