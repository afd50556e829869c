package adapter

import (
	"context"
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
)

var versionPattern = regexp.MustCompile(`\d+\.\d+\.\d+`)

// Versions reports the installed tool versions.
type Versions struct {
	ADB      string `json:"adb"`
	Fastboot string `json:"fastboot"`
}

// Versions queries `adb version` and `fastboot --version`.
// A missing tool returns ErrToolNotFound.
func (c *CLI) Versions(ctx context.Context) (Versions, error) {
	var v Versions

	res, err := c.run(ctx, c.adb, "version")
	if err != nil {
		return v, err
	}
	v.ADB = versionPattern.FindString(res.Combined())

	res, err = c.run(ctx, c.fastboot, "--version")
	if err != nil {
		return v, err
	}
	v.Fastboot = versionPattern.FindString(res.Combined())

	return v, nil
}

// CheckVersions fails when an installed tool is older than its minimum.
// An empty minimum skips that tool.
func CheckVersions(v Versions, minADB, minFastboot string) error {
	if err := checkMinimum("adb", v.ADB, minADB); err != nil {
		return err
	}
	return checkMinimum("fastboot", v.Fastboot, minFastboot)
}

func checkMinimum(tool, installed, minimum string) error {
	if minimum == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(">= " + minimum)
	if err != nil {
		return fmt.Errorf("invalid minimum %s version %q: %w", tool, minimum, err)
	}
	if installed == "" {
		return fmt.Errorf("%w: %s version unknown, need %s", ErrVersionTooOld, tool, minimum)
	}
	ver, err := semver.NewVersion(installed)
	if err != nil {
		return fmt.Errorf("parsing %s version %q: %w", tool, installed, err)
	}
	if !constraint.Check(ver) {
		return fmt.Errorf("%w: %s %s < %s", ErrVersionTooOld, tool, installed, minimum)
	}
	return nil
}
