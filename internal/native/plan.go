package native

import (
	"fmt"
	"log/slog"
	goruntime "runtime"
	"sort"

	"github.com/cruciblehq/offstage/internal/deb"
	"github.com/cruciblehq/offstage/internal/fault"
)

// Debian architecture names for Go architectures that differ.
var debianArch = map[string]string{
	"386":      "i386",
	"arm":      "armhf",
	"ppc64le":  "ppc64el",
	"mips64le": "mips64el",
	"mipsle":   "mipsel",
}

// Returns the Debian architecture of the running binary.
func HostArch() string {
	if a, ok := debianArch[goruntime.GOARCH]; ok {
		return a
	}
	return goruntime.GOARCH
}

// What happens to a planned package.
type Action string

const (
	ActionInstall Action = "install"
	ActionSkip    Action = "skip"
)

// One package in the install order.
type Step struct {
	Action   Action       // Install or skip.
	Package  *deb.Package // The staged package.
	Replaces string       // Version already on the target that this step replaces, if any.
}

// An ordered native install plan.
type Plan struct {
	Steps    []Step         // Dependencies first.
	Shadowed []*deb.Package // Staged duplicates that lost to a higher version.
}

// Returns the packages the plan installs, in order.
func (p *Plan) Installs() []*deb.Package {
	var out []*deb.Package
	for _, s := range p.Steps {
		if s.Action == ActionInstall {
			out = append(out, s.Package)
		}
	}
	return out
}

// Plans native packages for a target architecture.
type Resolver struct {
	Arch string // Debian architecture of the target, e.g. "amd64".
}

// Plans the staged packages against the installed database for the host
// architecture. See [Resolver.Resolve].
func Resolve(available []*deb.Package, installed *deb.Status) (*Plan, error) {
	return Resolver{Arch: HostArch()}.Resolve(available, installed)
}

// Computes the install plan.
//
// The input order is irrelevant. When several staged files carry the same
// package name the highest version is planned and the others are reported
// as shadowed. A nil installed database is treated as empty. Errors wrap
// [fault.ErrResolution] and name the offending package.
func (r Resolver) Resolve(available []*deb.Package, installed *deb.Status) (*Plan, error) {
	if installed == nil {
		installed = deb.NewStatus()
	}

	selected, shadowed, err := dedupe(available)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(selected))
	for name := range selected {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if pkg := selected[name]; pkg.Architecture != "all" && pkg.Architecture != r.Arch {
			return nil, fault.Wrap(fault.ErrResolution, &fault.PackageError{
				Package:    name,
				Constraint: "Architecture: " + pkg.Architecture,
				Err:        fmt.Errorf("%w: target is %s", ErrArchitecture, r.Arch),
			})
		}
	}

	g := &resolver{arch: r.Arch, staged: selected, installed: installed, provides: indexProvides(selected)}
	edges := make(map[string][]string, len(names))
	for _, name := range names {
		deps, err := g.dependencies(selected[name])
		if err != nil {
			return nil, err
		}
		edges[name] = deps
	}

	plan := &Plan{Shadowed: shadowed}
	for _, name := range order(names, edges) {
		pkg := selected[name]
		step := Step{Action: ActionInstall, Package: pkg}
		if v, ok := installed.Installed(name); ok {
			if c, err := deb.CompareVersions(v, pkg.Version); err == nil && c == 0 {
				step.Action = ActionSkip
			} else {
				step.Replaces = v
			}
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan, nil
}

// Picks the highest version of every package name.
func dedupe(available []*deb.Package) (map[string]*deb.Package, []*deb.Package, error) {
	sorted := make([]*deb.Package, len(available))
	copy(sorted, available)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].Path < sorted[j].Path
	})

	selected := make(map[string]*deb.Package, len(sorted))
	var shadowed []*deb.Package
	for _, pkg := range sorted {
		cur, ok := selected[pkg.Name]
		if !ok {
			selected[pkg.Name] = pkg
			continue
		}
		c, err := deb.CompareVersions(pkg.Version, cur.Version)
		if err != nil {
			return nil, nil, fault.Wrap(fault.ErrResolution, &fault.PackageError{Package: pkg.Name, Err: err})
		}
		if c > 0 {
			shadowed = append(shadowed, cur)
			selected[pkg.Name] = pkg
		} else {
			shadowed = append(shadowed, pkg)
		}
	}

	for _, pkg := range shadowed {
		slog.Warn("ignoring shadowed native package", "package", pkg.Name, "version", pkg.Version, "path", pkg.Path)
	}
	return selected, shadowed, nil
}

// A staged package providing a virtual name.
type provider struct {
	pkg     string
	version string // Provided version, empty if unversioned.
}

// Maps every virtual name to the staged packages providing it.
func indexProvides(staged map[string]*deb.Package) map[string][]provider {
	out := make(map[string][]provider)
	for name, pkg := range staged {
		for _, rel := range pkg.Provides {
			out[rel.Name] = append(out[rel.Name], provider{pkg: name, version: rel.Version})
		}
	}
	for _, ps := range out {
		sort.Slice(ps, func(i, j int) bool { return ps[i].pkg < ps[j].pkg })
	}
	return out
}

type resolver struct {
	arch      string
	staged    map[string]*deb.Package
	installed *deb.Status
	provides  map[string][]provider
}

// Returns the staged packages pkg depends on, or an error naming the first
// unsatisfiable clause.
func (g *resolver) dependencies(pkg *deb.Package) ([]string, error) {
	var deps []string
	for _, clause := range pkg.Requirements() {
		dep, ok, err := g.satisfy(clause)
		if err != nil {
			return nil, fault.Wrap(fault.ErrResolution, &fault.PackageError{Package: pkg.Name, Constraint: clause.String(), Err: err})
		}
		if !ok {
			return nil, fault.Wrap(fault.ErrResolution, &fault.PackageError{
				Package:    pkg.Name,
				Constraint: clause.String(),
				Err:        fmt.Errorf("%w: not staged and not installed", ErrUnsatisfied),
			})
		}
		if dep != "" && dep != pkg.Name {
			deps = append(deps, dep)
		}
	}
	sort.Strings(deps)
	return deps, nil
}

// Finds the first alternative of the clause that can be satisfied.
//
// Returns the staged package that satisfies it, or "" when an installed
// package does.
func (g *resolver) satisfy(clause deb.Clause) (string, bool, error) {
	for _, rel := range clause {
		if rel.Arch != "" && rel.Arch != "any" && rel.Arch != "native" && rel.Arch != g.arch {
			continue
		}

		if pkg, ok := g.staged[rel.Name]; ok {
			sat, err := rel.SatisfiedBy(pkg.Version)
			if err != nil {
				return "", false, err
			}
			if sat {
				return pkg.Name, true, nil
			}
		} else if v, ok := g.installed.Installed(rel.Name); ok {
			sat, err := rel.SatisfiedBy(v)
			if err != nil {
				return "", false, err
			}
			if sat {
				return "", true, nil
			}
		}

		for _, p := range g.provides[rel.Name] {
			if ok, err := providedSatisfies(rel, p.version); err != nil {
				return "", false, err
			} else if ok {
				return p.pkg, true, nil
			}
		}
		for _, p := range g.installed.Providers(rel.Name) {
			if _, restaged := g.staged[p.Name]; restaged {
				continue
			}
			if ok, err := providedSatisfies(rel, p.Version); err != nil {
				return "", false, err
			} else if ok {
				return "", true, nil
			}
		}
	}
	return "", false, nil
}

// Reports whether a Provides entry satisfies rel. Unversioned provides only
// satisfy unversioned relations.
func providedSatisfies(rel deb.Relation, version string) (bool, error) {
	if rel.Op == "" {
		return true, nil
	}
	if version == "" {
		return false, nil
	}
	return rel.SatisfiedBy(version)
}
