package checkers

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reposcout/reposcout/internal/types"
	"github.com/reposcout/reposcout/internal/validation"
)

func newCheckout(t *testing.T, files map[string]string) *types.CandidateEntry {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s failed: %v", name, err)
		}
	}

	return &types.CandidateEntry{
		ID:            "cand-test",
		RepositoryURL: "github.com/example/repo",
		Metadata:      map[string]string{"checkout_path": dir},
	}
}

func TestFileStructureChecker(t *testing.T) {
	checker := &FileStructureChecker{}
	ctx := context.Background()

	tests := []struct {
		name     string
		files    map[string]string
		criteria string
		passed   bool
		score    int
	}{
		{
			name:     "all required present",
			files:    map[string]string{"package.json": "{}", "src/index.js": ""},
			criteria: `{"required_files": ["package.json", "src/index.js"]}`,
			passed:   true,
			score:    100,
		},
		{
			name:     "one of two required missing",
			files:    map[string]string{"package.json": "{}"},
			criteria: `{"required_files": ["package.json", "README.md"]}`,
			passed:   false,
			score:    50,
		},
		{
			name:     "forbidden file present",
			files:    map[string]string{"package.json": "{}", ".env": "SECRET=1"},
			criteria: `{"required_files": ["package.json"], "forbidden_files": [".env"]}`,
			passed:   false,
			score:    100,
		},
		{
			name:     "empty criteria passes",
			files:    map[string]string{},
			criteria: `{}`,
			passed:   true,
			score:    100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := newCheckout(t, tt.files)
			result, err := checker.Check(ctx, candidate, json.RawMessage(tt.criteria))
			if err != nil {
				t.Fatalf("check failed: %v", err)
			}
			if result.Passed != tt.passed {
				t.Errorf("passed = %v, want %v (%s)", result.Passed, tt.passed, result.Details)
			}
			if result.Score != tt.score {
				t.Errorf("score = %d, want %d", result.Score, tt.score)
			}
		})
	}
}

func TestFileStructureCheckerNoCheckout(t *testing.T) {
	checker := &FileStructureChecker{}
	candidate := &types.CandidateEntry{ID: "cand-test"}

	_, err := checker.Check(context.Background(), candidate, json.RawMessage(`{"required_files": ["x"]}`))
	if err == nil {
		t.Fatal("expected error for candidate without checkout_path")
	}
}

func TestDependencyChecker(t *testing.T) {
	checker := &DependencyChecker{}
	ctx := context.Background()

	t.Run("manifest present", func(t *testing.T) {
		candidate := newCheckout(t, map[string]string{
			"package.json": `{"dependencies": {"express": "^4.0.0"}}`,
		})
		result, err := checker.Check(ctx, candidate, json.RawMessage(`{"manifest": "package.json"}`))
		if err != nil {
			t.Fatalf("check failed: %v", err)
		}
		if !result.Passed {
			t.Errorf("expected pass: %s", result.Details)
		}
	})

	t.Run("manifest missing fails not errors", func(t *testing.T) {
		candidate := newCheckout(t, nil)
		result, err := checker.Check(ctx, candidate, json.RawMessage(`{"manifest": "package.json"}`))
		if err != nil {
			t.Fatalf("missing manifest must not be a checker error: %v", err)
		}
		if result.Passed {
			t.Error("expected failure for missing manifest")
		}
	})

	t.Run("first available of several manifests", func(t *testing.T) {
		candidate := newCheckout(t, map[string]string{"go.mod": "module example.com/x"})
		result, err := checker.Check(ctx, candidate, json.RawMessage(`{"manifests": ["package.json", "go.mod"]}`))
		if err != nil {
			t.Fatalf("check failed: %v", err)
		}
		if !result.Passed {
			t.Errorf("expected pass: %s", result.Details)
		}
		if !strings.Contains(result.Details, "go.mod") {
			t.Errorf("details should name the manifest used: %s", result.Details)
		}
	})

	t.Run("forbidden dependency", func(t *testing.T) {
		candidate := newCheckout(t, map[string]string{
			"package.json": `{"dependencies": {"left-pad": "1.0.0"}}`,
		})
		result, err := checker.Check(ctx, candidate,
			json.RawMessage(`{"manifest": "package.json", "forbidden": ["left-pad"]}`))
		if err != nil {
			t.Fatalf("check failed: %v", err)
		}
		if result.Passed {
			t.Error("expected failure for forbidden dependency")
		}
		if !strings.Contains(result.Details, "left-pad") {
			t.Errorf("details should name the offender: %s", result.Details)
		}
	})

	t.Run("no manifest named errors", func(t *testing.T) {
		candidate := newCheckout(t, nil)
		if _, err := checker.Check(ctx, candidate, json.RawMessage(`{}`)); err == nil {
			t.Error("expected error for criteria without a manifest")
		}
	})
}

func TestCommandChecker(t *testing.T) {
	ctx := context.Background()
	checker := NewInstallChecker()

	t.Run("zero exit passes", func(t *testing.T) {
		candidate := newCheckout(t, map[string]string{"marker.txt": "here"})
		result, err := checker.Check(ctx, candidate,
			json.RawMessage(`{"command": ["ls", "marker.txt"]}`))
		if err != nil {
			t.Fatalf("check failed: %v", err)
		}
		if !result.Passed {
			t.Errorf("expected pass: %s", result.Details)
		}
		if !strings.Contains(result.Details, "marker.txt") {
			t.Errorf("details should carry command output: %s", result.Details)
		}
	})

	t.Run("nonzero exit fails", func(t *testing.T) {
		candidate := newCheckout(t, nil)
		result, err := checker.Check(ctx, candidate,
			json.RawMessage(`{"command": ["ls", "does-not-exist"]}`))
		if err != nil {
			t.Fatalf("nonzero exit must not be a checker error: %v", err)
		}
		if result.Passed {
			t.Error("expected failure for nonzero exit")
		}
	})

	t.Run("timeout is a checker error", func(t *testing.T) {
		candidate := newCheckout(t, nil)
		_, err := checker.Check(ctx, candidate,
			json.RawMessage(`{"command": ["sleep", "5"], "timeout_seconds": 1}`))
		if err == nil {
			t.Fatal("expected error for timed-out command")
		}
	})

	t.Run("empty command errors", func(t *testing.T) {
		candidate := newCheckout(t, nil)
		if _, err := checker.Check(ctx, candidate, json.RawMessage(`{}`)); err == nil {
			t.Error("expected error for criteria without a command")
		}
	})
}

func TestRegisterDefaults(t *testing.T) {
	registry := validation.NewCheckerRegistry()
	if err := RegisterDefaults(registry); err != nil {
		t.Fatalf("register defaults failed: %v", err)
	}

	for _, kind := range []types.RuleKind{
		types.KindFileStructure, types.KindDependency,
		types.KindInstallTest, types.KindFunctionalTest,
	} {
		if _, ok := registry.Get(kind); !ok {
			t.Errorf("no checker registered for %s", kind)
		}
	}
}
