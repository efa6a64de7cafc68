// Package devdesc loads the read-only directory of device-description
// files a master consults at slave registration: each file names a
// vendor/product/revision triple and the sync-manager layout a slave of
// that type ships with by default. A scanned slave with no matching
// description is not an error — it proceeds with master-supplied
// defaults (spec.md §4.4, §6).
//
// Descriptions are YAML, decoded with gopkg.in/yaml.v3, the same library
// the teacher's configuration layers reach for.
package devdesc

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/go-ecat/ecmaster/slave"
)

// syncManagerFile is the on-disk shape of one sync-manager default, decoded
// before being converted to slave.SyncManager.
type syncManagerFile struct {
	Index        int    `yaml:"index"`
	PhysStart    uint16 `yaml:"phys_start"`
	Length       uint16 `yaml:"length"`
	Direction    string `yaml:"direction"`
	ReservedMbox bool   `yaml:"reserved_mbox"`
}

// descriptionFile is the on-disk shape of one device-description file.
type descriptionFile struct {
	Name         string            `yaml:"name"`
	Vendor       uint32            `yaml:"vendor"`
	Product      uint32            `yaml:"product"`
	Revision     uint32            `yaml:"revision"`
	DeviceIDs    []string          `yaml:"device_ids"`
	SyncManagers []syncManagerFile `yaml:"sync_managers"`
}

// key identifies a description by the vendor/product pair slaves are
// matched against (revision is informational, not a lookup key — the ring
// reports the revision a slave actually carries, which may differ from the
// description's nominal value).
type key struct {
	vendor  uint32
	product uint32
}

// Environment is a loaded, indexed set of device descriptions.
type Environment struct {
	entries map[key]*slave.DeviceDescription
	// deviceIDs maps a parsed MAC device ID to the description that named
	// it, for descriptions identified by tag rather than vendor/product.
	deviceIDs map[[6]byte]*slave.DeviceDescription
}

// Load reads every ".yaml"/".yml" file directly inside dir and indexes the
// descriptions it finds. An empty dir is valid and yields an empty
// Environment — the devdesc directory itself is optional (spec.md §6
// "Environment").
func Load(dir string) (*Environment, error) {
	env := &Environment{
		entries:   make(map[key]*slave.DeviceDescription),
		deviceIDs: make(map[[6]byte]*slave.DeviceDescription),
	}
	if dir == "" {
		return env, nil
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("devdesc: reading %s: %w", dir, err)
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(f.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, f.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := env.loadFile(path); err != nil {
			return nil, err
		}
	}
	return env, nil
}

func (env *Environment) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("devdesc: reading %s: %w", path, err)
	}

	var df descriptionFile
	if err := yaml.Unmarshal(raw, &df); err != nil {
		return fmt.Errorf("devdesc: parsing %s: %w", path, err)
	}

	desc := &slave.DeviceDescription{
		Name:                df.Name,
		Revision:            df.Revision,
		DefaultSyncManagers: make([]slave.SyncManager, 0, len(df.SyncManagers)),
	}
	for _, sm := range df.SyncManagers {
		dir := slave.DirectionInput
		if strings.EqualFold(sm.Direction, "output") {
			dir = slave.DirectionOutput
		}
		desc.DefaultSyncManagers = append(desc.DefaultSyncManagers, slave.SyncManager{
			Index:        sm.Index,
			PhysStart:    sm.PhysStart,
			Length:       sm.Length,
			Direction:    dir,
			ReservedMbox: sm.ReservedMbox,
		})
	}

	env.entries[key{vendor: df.Vendor, product: df.Product}] = desc

	for _, raw := range df.DeviceIDs {
		parsed, err := ParseDeviceID(raw)
		if err != nil {
			return fmt.Errorf("devdesc: %s: %w", path, err)
		}
		for _, entry := range parsed {
			if entry.Kind == DeviceIDMAC {
				env.deviceIDs[entry.MAC] = desc
			}
		}
	}

	return nil
}

// Lookup returns the description registered for vendor/product, if any.
// A missing description is non-fatal: callers proceed with master-supplied
// defaults (spec.md §4.4).
func (env *Environment) Lookup(vendor, product uint32) (*slave.DeviceDescription, bool) {
	if env == nil {
		return nil, false
	}
	d, ok := env.entries[key{vendor: vendor, product: product}]
	return d, ok
}

// LookupDeviceID returns the description that named mac as one of its
// device IDs, if any.
func (env *Environment) LookupDeviceID(mac [6]byte) (*slave.DeviceDescription, bool) {
	if env == nil {
		return nil, false
	}
	d, ok := env.deviceIDs[mac]
	return d, ok
}

// Len reports how many distinct descriptions are loaded.
func (env *Environment) Len() int {
	if env == nil {
		return 0
	}
	seen := make(map[*slave.DeviceDescription]struct{}, len(env.entries))
	for _, d := range env.entries {
		seen[d] = struct{}{}
	}
	return len(seen)
}
