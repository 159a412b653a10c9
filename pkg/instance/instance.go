// Package instance keeps a fleet-local directory of running server
// instances, keyed by process id, for discovery by administrative
// tooling. The server registers itself at boot and unregisters at
// shutdown; the record is not consulted by the gateway afterwards.
package instance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const fileName = "instances.json"

// Record describes one running server instance.
type Record struct {
	PID       int    `json:"pid"`
	Workspace string `json:"workspace"`
	Port      int    `json:"port"`
}

// Directory is the on-disk instance registry.
type Directory struct {
	path string
}

// NewDirectory opens the instance registry under the given directory.
func NewDirectory(dir string) *Directory {
	return &Directory{path: filepath.Join(dir, fileName)}
}

// Register records a running instance, replacing any stale record with
// the same pid.
func (d *Directory) Register(pid int, workspace string, port int) error {
	records, err := d.load()
	if err != nil {
		return err
	}

	kept := records[:0]
	for _, rec := range records {
		if rec.PID != pid {
			kept = append(kept, rec)
		}
	}
	kept = append(kept, Record{PID: pid, Workspace: workspace, Port: port})

	return d.save(kept)
}

// Unregister removes the record for the pid. Unknown pids are not an
// error: the workspace may already be gone by shutdown time.
func (d *Directory) Unregister(pid int) error {
	records, err := d.load()
	if err != nil {
		return err
	}

	kept := records[:0]
	for _, rec := range records {
		if rec.PID != pid {
			kept = append(kept, rec)
		}
	}

	return d.save(kept)
}

// List returns all registered instances.
func (d *Directory) List() ([]Record, error) {
	return d.load()
}

func (d *Directory) load() ([]Record, error) {
	data, err := os.ReadFile(d.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading instance directory: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding instance directory: %w", err)
	}
	return records, nil
}

func (d *Directory) save(records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding instance directory: %w", err)
	}

	// Write-then-rename keeps the directory readable by concurrently
	// running administrative tools.
	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing instance directory: %w", err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		return fmt.Errorf("replacing instance directory: %w", err)
	}
	return nil
}
