package testfixtures

import (
	"os"
	"path"
	"path/filepath"
	"testing"
	"testing/fstest"
)

// BillingScripts returns a small transition set for a "billing" scope:
// 0 -> 1 -> 2 and a destructive 2 -> 1 rollback.
func BillingScripts() map[string]string {
	return map[string]string{
		"0_to_1.sql": `-- @before: 0
-- @after: 1
CREATE TABLE invoices (id INTEGER PRIMARY KEY);
`,
		"1_to_2.sql": `-- @before: 1
-- @after: 2
ALTER TABLE invoices ADD COLUMN total INTEGER; /* cents */
`,
		"2_to_1.sql": `-- @before: 2
-- @after: 1
-- @destructive: true
ALTER TABLE invoices DROP COLUMN total;
`,
	}
}

// ScriptFS places scripts under dir in an in-memory file system.
func ScriptFS(dir string, scripts map[string]string) fstest.MapFS {
	fsys := make(fstest.MapFS, len(scripts))
	for name, body := range scripts {
		fsys[path.Join(dir, name)] = &fstest.MapFile{Data: []byte(body)}
	}
	return fsys
}

// WriteScripts writes scripts into dir, creating it when needed.
func WriteScripts(tb testing.TB, dir string, scripts map[string]string) {
	tb.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		tb.Fatalf("failed to create script directory: %v", err)
	}
	for name, body := range scripts {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			tb.Fatalf("failed to write script %s: %v", name, err)
		}
	}
}
