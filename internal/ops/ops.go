// Package ops implements the operations shared by the CLI, the MCP
// server, and the web dashboard. Each operation validates its input,
// talks to the store, and returns a JSON-ready output struct.
package ops

import (
	"log"
	"os"
	"path/filepath"
)

// Task listing limits
const (
	DefaultTaskLimit = 20
	MaxTaskLimit     = 100
)

// removeScreenshotFiles unlinks image files under the screenshots
// root, given store-relative paths. A file already gone is fine; any
// other failure is logged and skipped so one bad file does not abort
// the cleanup. Returns the number of files actually removed.
func removeScreenshotFiles(root string, relPaths []string) int {
	removed := 0
	for _, rel := range relPaths {
		if rel == "" {
			continue
		}
		path := filepath.Join(root, rel)
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				log.Printf("ops: remove %s: %v", path, err)
			}
			continue
		}
		removed++
	}
	return removed
}
