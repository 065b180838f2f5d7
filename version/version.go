package version

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/ablation/errors"
)

// Build information. These variables are set at build time via ldflags.
var (
	// CommitHash is the git commit hash when the binary was built
	CommitHash = "dev"

	// BuildTime is when the binary was built
	BuildTime = "unknown"

	// Version is the semantic version (if tagged)
	Version = "dev"
)

// Info contains version and build information
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the current version information
func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a human-readable version string
func (i Info) String() string {
	if i.Version != "dev" {
		return fmt.Sprintf("ablation %s (commit %s, built %s)", i.Version, i.CommitHash, i.BuildTime)
	}
	return fmt.Sprintf("ablation dev (commit %s, built %s)", i.CommitHash, i.BuildTime)
}

// Short returns a short version string with just the commit hash
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}

// Satisfies reports whether the build version meets constraint, e.g.
// ">= 0.4". Dev builds satisfy every constraint.
func (i Info) Satisfies(constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, errors.WithDetail(errors.Configurationf("invalid version constraint %q", constraint), err.Error())
	}
	if i.Version == "dev" {
		return true, nil
	}
	v, err := semver.NewVersion(i.Version)
	if err != nil {
		return false, errors.Wrapf(err, "build version %q is not semantic", i.Version)
	}
	return c.Check(v), nil
}

// Require returns a configuration error unless the build version meets
// constraint.
func Require(constraint string) error {
	info := Get()
	ok, err := info.Satisfies(constraint)
	if err != nil {
		return err
	}
	if !ok {
		return errors.WithHintf(
			errors.Configurationf("requires ablation %s, running %s", constraint, info.Version),
			"upgrade the ablation binary")
	}
	return nil
}
