package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadAdjustments(t *testing.T) {
	t.Run("from stdin", func(t *testing.T) {
		in := strings.NewReader(`[{"product_id":"PROD-001","new_stock":40,"reason":"recount"},{"product_id":"PROD-002","new_stock":0}]`)
		got, err := readAdjustments(in, "-")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 || got[0].ProductID != "PROD-001" || got[0].NewStock != 40 || got[0].Reason != "recount" {
			t.Errorf("unexpected adjustments %+v", got)
		}
	})

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "stock.json")
		if err := os.WriteFile(path, []byte(`[{"product_id":"PROD-003","new_stock":12}]`), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		got, err := readAdjustments(nil, path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].NewStock != 12 {
			t.Errorf("unexpected adjustments %+v", got)
		}
	})

	t.Run("rejects empty and malformed input", func(t *testing.T) {
		if _, err := readAdjustments(strings.NewReader(`[]`), "-"); err == nil {
			t.Error("expected error for empty list")
		}
		if _, err := readAdjustments(strings.NewReader(`{"product_id":1}`), "-"); err == nil {
			t.Error("expected error for malformed input")
		}
	})
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"migrate"},
		{"payments", "confirm"},
		{"payments", "reject"},
		{"orders", "cancel"},
		{"stock", "bulk-update"},
	} {
		cmd, _, err := rootCmd.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("command %v not registered: %v", path, err)
		}
	}
}

func TestMigrateRejectsUnknownDirection(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"migrate", "sideways"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err == nil {
		t.Error("expected error for unknown migrate direction")
	}
}

func TestActorHasNoDefault(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("actor")
	if flag == nil {
		t.Fatal("actor flag not registered")
	}
	if flag.DefValue != "" {
		t.Errorf("expected empty default actor, got %q", flag.DefValue)
	}
}
