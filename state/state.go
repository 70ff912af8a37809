// Package state holds the persistent configuration state spec §2 and
// §6.4 describe: source/build roots, project name, the toolchain
// registry, and per-machine info. It is mutated only by the project()
// and add_project_arguments()/add_global_arguments() function
// lowerings; everything else in the pipeline treats it as read-only.
package state

import (
	"path/filepath"

	"github.com/dcbaker/meson/toolchain"
)

type (
	MachineInfo struct {
		System string // "linux", "darwin", "windows", ...
		CPU    string
	}

	// ArgSet accumulates add_project_arguments/add_global_arguments
	// calls per language, consumed by the combine_add_arguments pass
	// (spec §4.2 step 15, SPEC_FULL §4.12).
	ArgSet map[string][]string

	State struct {
		SourceRoot string
		BuildRoot  string
		Name       string

		Toolchains *toolchain.Registry
		Machines   map[string]MachineInfo // "host", "build", "target" -> info

		ProjectArgs ArgSet
		GlobalArgs  ArgSet

		projectSet bool
	}
)

// New normalizes and freezes the two roots; they are immutable after
// construction (spec §6.4).
func New(sourceRoot, buildRoot string) *State {
	return &State{
		SourceRoot:  filepath.Clean(sourceRoot),
		BuildRoot:   filepath.Clean(buildRoot),
		Toolchains:  toolchain.NewRegistry(),
		Machines:    map[string]MachineInfo{},
		ProjectArgs: ArgSet{},
		GlobalArgs:  ArgSet{},
	}
}

// SetProject records the project() call. It returns false if project()
// has already run once — spec §4.9 requires it run exactly once.
func (s *State) SetProject(name string) bool {
	if s.projectSet {
		return false
	}

	s.Name = name
	s.projectSet = true

	return true
}

func (s *State) ProjectIsSet() bool { return s.projectSet }

func (s ArgSet) Add(lang string, args ...string) {
	s[lang] = append(s[lang], args...)
}
