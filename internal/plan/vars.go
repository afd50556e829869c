package plan

import (
	"sort"
	"strings"
	"time"
)

// Variable names available to plan documents.
const (
	VarDate         = "DATE"
	VarTime         = "TIME"
	VarDeviceSerial = "DEVICE_SERIAL"
)

// Vars is the immutable variable context for one run.
type Vars map[string]string

// NewVars builds the standard run variables.
// DATE is formatted 2006-01-02 and TIME 15:04:05 in now's location.
func NewVars(now time.Time, deviceSerial string) Vars {
	return Vars{
		VarDate:         now.Format(time.DateOnly),
		VarTime:         now.Format(time.TimeOnly),
		VarDeviceSerial: deviceSerial,
	}
}

// Expand replaces every $NAME token with its value. Tokens with no value are
// left verbatim. Longer names are replaced first so $DATE never clobbers a
// $DATE_SUFFIX variable.
func (v Vars) Expand(text string) string {
	if len(v) == 0 || !strings.Contains(text, "$") {
		return text
	}

	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	pairs := make([]string, 0, 2*len(names))
	for _, name := range names {
		pairs = append(pairs, "$"+name, v[name])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
