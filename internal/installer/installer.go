// Package installer fetches tool server packages from GitHub and builds them
// into something the lifecycle manager can launch.
package installer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/scorzo/cloudcost/internal/mcp"
	"golang.org/x/exp/maps"
)

// Cloner checks out branch of url into dir.
type Cloner func(ctx context.Context, url, branch, dir string) error

// Runner runs a build command inside dir.
type Runner func(ctx context.Context, dir, name string, args ...string) error

type Installer struct {
	dir     string
	baseURL string
	clone   Cloner
	run     Runner
}

type Option func(*Installer)

// WithBaseURL replaces https://github.com as clone origin.
func WithBaseURL(u string) Option {
	return func(i *Installer) { i.baseURL = strings.TrimSuffix(u, "/") }
}

func WithCloner(c Cloner) Option {
	return func(i *Installer) { i.clone = c }
}

func WithRunner(r Runner) Option {
	return func(i *Installer) { i.run = r }
}

// DefaultDir returns $MCP_INSTALL_DIR, or <tmp>/mcp-installs.
func DefaultDir() string {
	if d := os.Getenv("MCP_INSTALL_DIR"); d != "" {
		return d
	}
	return filepath.Join(os.TempDir(), "mcp-installs")
}

func New(dir string, opts ...Option) *Installer {
	i := &Installer{
		dir:     dir,
		baseURL: "https://github.com",
		clone:   gitClone,
		run:     execRun,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Installer) Dir() string {
	return i.dir
}

// Installation is a built package, ready to be launched.
type Installation struct {
	Source     PackageSource
	Dir        string
	PackageDir string
	Command    string
	Args       []string
}

func (in Installation) ServerConfig() mcp.ServerConfig {
	return mcp.ServerConfig{
		Name:    in.Source.Repo,
		Command: in.Command,
		Args:    in.Args,
		Dir:     in.PackageDir,
	}
}

func (i *Installer) installPath(src PackageSource) string {
	return filepath.Join(i.dir, src.ID())
}

// Install clones src, locates its package dir and builds it. Any previous
// checkout of the same source is replaced. On failure nothing is left behind.
func (i *Installer) Install(ctx context.Context, src PackageSource) (Installation, error) {
	if err := src.Validate(); err != nil {
		return Installation{}, err
	}
	src = src.WithDefaults()
	dir := i.installPath(src)
	if err := os.RemoveAll(dir); err != nil {
		return Installation{}, fmt.Errorf("failed to remove previous installation: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Installation{}, fmt.Errorf("failed to create install dir: %w", err)
	}

	in, err := i.install(ctx, src, dir)
	if err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			ancli.Warnf("failed to clean up '%v': %v\n", dir, rmErr)
		}
		return Installation{}, fmt.Errorf("failed to install tool server from GitHub: %w", err)
	}
	ancli.Okf("tool server installed: %v %v\n", in.Command, strings.Join(in.Args, " "))
	return in, nil
}

func (i *Installer) install(ctx context.Context, src PackageSource, dir string) (Installation, error) {
	cloneDir := filepath.Join(dir, "repo")
	url := fmt.Sprintf("%v/%v/%v.git", i.baseURL, src.Owner, src.Repo)
	ancli.Noticef("cloning repository from %v (branch %v)\n", url, src.Branch)
	if err := i.clone(ctx, url, src.Branch, cloneDir); err != nil {
		return Installation{}, fmt.Errorf("failed to clone '%v': %w", url, err)
	}

	pkgDir, err := findPackageDir(cloneDir, src.Subdirectory)
	if err != nil {
		return Installation{}, err
	}
	in := Installation{Source: src, Dir: dir, PackageDir: pkgDir}
	switch {
	case exists(filepath.Join(pkgDir, "package.json")):
		in.Command, in.Args, err = i.buildNode(ctx, pkgDir)
	case exists(filepath.Join(pkgDir, "go.mod")):
		in.Command, in.Args, err = i.buildGo(ctx, pkgDir)
	default:
		err = fmt.Errorf("no package.json or go.mod found in '%v'", pkgDir)
	}
	if err != nil {
		return Installation{}, err
	}
	return in, nil
}

// Remove deletes the installation of src, if any.
func (i *Installer) Remove(src PackageSource) error {
	dir := i.installPath(src)
	if !exists(dir) {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove installation: %w", err)
	}
	ancli.Okf("cleaned up installation: %v\n", dir)
	return nil
}

// Sweep removes every installation except those with the given ids and
// returns the removed ids.
func (i *Installer) Sweep(keep ...string) ([]string, error) {
	entries, err := os.ReadDir(i.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read install dir: %w", err)
	}
	var removed []string
	for _, e := range entries {
		if !e.IsDir() || slices.Contains(keep, e.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(i.dir, e.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove '%v': %w", e.Name(), err)
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}

var packageDirCandidates = []string{"mcp-server", "server", "packages/server", "packages/mcp", ""}

func findPackageDir(repoDir, subdir string) (string, error) {
	if subdir != "" {
		dir := filepath.Join(repoDir, subdir)
		if !exists(dir) {
			return "", fmt.Errorf("subdirectory '%v' not found in repository", subdir)
		}
		return dir, nil
	}
	for _, c := range packageDirCandidates {
		dir := filepath.Join(repoDir, c)
		if exists(filepath.Join(dir, "package.json")) || exists(filepath.Join(dir, "go.mod")) {
			return dir, nil
		}
	}
	return repoDir, nil
}

type packageJSON struct {
	Main    string            `json:"main"`
	Bin     json.RawMessage   `json:"bin"`
	Scripts map[string]string `json:"scripts"`
}

func readPackageJSON(pkgDir string) (packageJSON, error) {
	var pkg packageJSON
	b, err := os.ReadFile(filepath.Join(pkgDir, "package.json"))
	if err != nil {
		return pkg, fmt.Errorf("failed to read package.json: %w", err)
	}
	if err := json.Unmarshal(b, &pkg); err != nil {
		return pkg, fmt.Errorf("failed to parse package.json: %w", err)
	}
	return pkg, nil
}

func (i *Installer) buildNode(ctx context.Context, pkgDir string) (string, []string, error) {
	pkg, err := readPackageJSON(pkgDir)
	if err != nil {
		return "", nil, err
	}
	ancli.Noticef("installing dependencies in %v\n", pkgDir)
	if err := i.run(ctx, pkgDir, "npm", "install"); err != nil {
		return "", nil, err
	}
	if _, ok := pkg.Scripts["build"]; ok {
		ancli.Noticef("building package\n")
		if err := i.run(ctx, pkgDir, "npm", "run", "build"); err != nil {
			return "", nil, err
		}
	}
	entry, err := nodeEntryPoint(pkgDir, pkg)
	if err != nil {
		return "", nil, err
	}
	return "node", []string{entry}, nil
}

func nodeEntryPoint(pkgDir string, pkg packageJSON) (string, error) {
	for _, p := range []string{"dist/index.js", "build/index.js", "index.js", "src/index.js"} {
		full := filepath.Join(pkgDir, p)
		if exists(full) {
			return full, nil
		}
	}
	var candidates []string
	if len(pkg.Bin) > 0 {
		var single string
		var many map[string]string
		if err := json.Unmarshal(pkg.Bin, &single); err == nil {
			candidates = append(candidates, single)
		} else if err := json.Unmarshal(pkg.Bin, &many); err == nil {
			names := maps.Keys(many)
			slices.Sort(names)
			for _, n := range names {
				candidates = append(candidates, many[n])
			}
		}
	}
	if pkg.Main != "" {
		candidates = append(candidates, pkg.Main)
	}
	for _, c := range candidates {
		full := filepath.Join(pkgDir, c)
		if exists(full) {
			return full, nil
		}
	}
	return "", errors.New("could not locate tool server entry point in installed package")
}

func (i *Installer) buildGo(ctx context.Context, pkgDir string) (string, []string, error) {
	target, err := goBuildTarget(pkgDir)
	if err != nil {
		return "", nil, err
	}
	out := filepath.Join(pkgDir, ".bin", "mcp-server")
	ancli.Noticef("building %v in %v\n", target, pkgDir)
	if err := i.run(ctx, pkgDir, "go", "build", "-o", out, target); err != nil {
		return "", nil, err
	}
	if !exists(out) {
		return "", nil, fmt.Errorf("build produced no binary at '%v'", out)
	}
	return out, nil, nil
}

func goBuildTarget(pkgDir string) (string, error) {
	if exists(filepath.Join(pkgDir, "main.go")) {
		return ".", nil
	}
	entries, err := os.ReadDir(filepath.Join(pkgDir, "cmd"))
	if err != nil {
		return "", fmt.Errorf("no main.go and no cmd directory in '%v'", pkgDir)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	if len(dirs) != 1 {
		return "", fmt.Errorf("expected exactly one command under '%v/cmd', found %v", pkgDir, len(dirs))
	}
	return "./cmd/" + dirs[0], nil
}

func gitClone(ctx context.Context, url, branch, dir string) error {
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           url,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Depth:         1,
	})
	return err
}

func execRun(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("'%v %v' failed: %w: %v", name, strings.Join(args, " "), err, tail(out.String(), 20))
	}
	return nil
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
