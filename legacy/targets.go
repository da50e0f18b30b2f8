// Package legacy converts v1 generate_homing_plcs.py scripts into v2
// homing definitions.
package legacy

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
)

// FirstPlcNumber is the PLC number given to the first PLC of a script when
// the targets are derived from the script itself.
const FirstPlcNumber = 11

var (
	branchName  = regexp.MustCompile(`(?m)^[^#\n]*if name == "([^"]*)"`)
	homeInclude = regexp.MustCompile(`(?m)^#include "(PLCs/PLC\d+_[^_"\n]+_HM\.pmc)"`)
	plcFile     = regexp.MustCompile(`PLC(\d+)_([^_/]+)_HM\.pmc$`)
)

// Target is one PLC file a v1 script generates. The script selects its
// branch from Name, the PLC number comes from the file name.
type Target struct {
	Name string
	Plc  int
	File string
}

// ParseTarget reads a target from a PLCs/PLC<n>_<name>_HM.pmc file name.
func ParseTarget(file string) (Target, error) {
	m := plcFile.FindStringSubmatch(path.Base(file))
	if m == nil {
		return Target{}, fmt.Errorf("%s does not follow PLC<n>_<name>_HM.pmc", file)
	}
	number, err := strconv.Atoi(m[1])
	if err != nil {
		return Target{}, fmt.Errorf("plc number in %s: %w", file, err)
	}
	return Target{Name: m[2], Plc: number, File: file}, nil
}

// ParseTargets applies ParseTarget to every file.
func ParseTargets(files []string) ([]Target, error) {
	targets := make([]Target, 0, len(files))
	for _, file := range files {
		t, err := ParseTarget(file)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// DefaultTargets numbers the branches of a script from FirstPlcNumber in
// the order they appear, writing to the PLCs folder.
func DefaultTargets(script []byte) []Target {
	matches := branchName.FindAllSubmatch(script, -1)
	targets := make([]Target, 0, len(matches))
	for i, m := range matches {
		name := string(m[1])
		number := FirstPlcNumber + i
		targets = append(targets, Target{
			Name: name,
			Plc:  number,
			File: fmt.Sprintf("PLCs/PLC%d_%s_HM.pmc", number, name),
		})
	}
	return targets
}

// MasterIncludes lists the homing PLC files included by a Master.pmc.
func MasterIncludes(master []byte) []string {
	matches := homeInclude.FindAllSubmatch(master, -1)
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		files = append(files, string(m[1]))
	}
	return files
}
