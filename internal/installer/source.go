package installer

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const DefaultBranch = "main"

// PackageSource points at a tool server package inside a GitHub repository.
type PackageSource struct {
	Owner        string `json:"owner"`
	Repo         string `json:"repo"`
	Branch       string `json:"branch,omitempty"`
	Subdirectory string `json:"subdirectory,omitempty"`
}

var (
	validName   = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9-]`)
)

// ParseRepo splits "owner/repo" into a PackageSource on the default branch.
func ParseRepo(s string) (PackageSource, error) {
	owner, repo, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return PackageSource{}, fmt.Errorf("expected repository as 'owner/repo', got: '%v'", s)
	}
	src := PackageSource{Owner: owner, Repo: strings.TrimSuffix(repo, ".git")}
	return src, src.Validate()
}

func (s PackageSource) Validate() error {
	if s.Owner == "" || s.Repo == "" {
		return errors.New("owner and repo are required")
	}
	for _, v := range []string{s.Owner, s.Repo} {
		if !validName.MatchString(v) || v == "." || v == ".." {
			return fmt.Errorf("invalid repository name: '%v'", v)
		}
	}
	if s.Subdirectory != "" {
		clean := filepath.Clean(s.Subdirectory)
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
			return fmt.Errorf("subdirectory must stay within the repository: '%v'", s.Subdirectory)
		}
	}
	return nil
}

// WithDefaults returns s with an empty branch set to DefaultBranch.
func (s PackageSource) WithDefaults() PackageSource {
	if s.Branch == "" {
		s.Branch = DefaultBranch
	}
	return s
}

// ID is the name of the install directory of the source.
func (s PackageSource) ID() string {
	s = s.WithDefaults()
	return unsafeChars.ReplaceAllString(fmt.Sprintf("%v-%v-%v", s.Owner, s.Repo, s.Branch), "_")
}

func (s PackageSource) String() string {
	s = s.WithDefaults()
	ret := fmt.Sprintf("%v/%v@%v", s.Owner, s.Repo, s.Branch)
	if s.Subdirectory != "" {
		ret += ":" + s.Subdirectory
	}
	return ret
}

// Same reports if both point at the same package.
func (s PackageSource) Same(o PackageSource) bool {
	a, b := s.WithDefaults(), o.WithDefaults()
	return a.Owner == b.Owner && a.Repo == b.Repo && a.Branch == b.Branch &&
		filepath.Clean("/"+a.Subdirectory) == filepath.Clean("/"+b.Subdirectory)
}
