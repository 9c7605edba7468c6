package interp

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	version "github.com/aquasecurity/go-pep440-version"
	"github.com/opencontainers/go-digest"

	"github.com/cruciblehq/offstage/internal/fault"
	"github.com/cruciblehq/offstage/internal/manifest"
	"github.com/cruciblehq/offstage/internal/wheel"
)

// What happens to a selected distribution.
type Action string

const (
	ActionInstall Action = "install"
	ActionSkip    Action = "skip"
)

// One selected distribution.
type Selection struct {
	Action     Action       // Install or skip.
	Wheel      *wheel.Wheel // The selected artifact.
	Extras     []string     // Extras requested for the distribution.
	RequiredBy []string     // Requirements that pulled it in, e.g. "requirements.txt:3" or "bar 1.0".
	Replaces   *Installed   // Installed distribution of a different version, if any.
}

// An ordered interpreter install plan.
type Plan struct {
	Selections []Selection
}

// Returns the wheels the plan installs, in order.
func (p *Plan) Installs() []*wheel.Wheel {
	var out []*wheel.Wheel
	for _, s := range p.Selections {
		if s.Action == ActionInstall {
			out = append(out, s.Wheel)
		}
	}
	return out
}

// A version constraint and where it came from.
type constraint struct {
	specifier string
	source    string
}

// Per-distribution resolution state.
type node struct {
	key         string
	name        string                 // Name as first written.
	constraints []constraint           // Everything collected so far.
	hashes      map[digest.Digest]bool // Allowed digests, nil when unpinned.
	extras      map[string]bool        // Requested extras.
	expanded    map[string]bool        // Extras whose dependencies were followed ("" is the base set).
	selected    *wheel.Wheel
}

type planner struct {
	env        Environment
	pre        bool
	candidates map[string][]*wheel.Wheel
	extra      map[string][]constraint // Constraints from -c files.
	nodes      map[string]*node
	order      []string
	queue      []string
	deferred   []string // Nodes still matching more than one version.
}

// Computes the install plan for m from the available wheels.
//
// Wheels whose tags or Requires-Python exclude env are ignored. Errors wrap
// [fault.ErrResolution], or [fault.ErrIntegrity] for hash mismatches, and
// name the offending distribution.
func Resolve(m *manifest.Manifest, available []*wheel.Wheel, env Environment) (*Plan, error) {
	p := &planner{
		env:        env,
		pre:        m.Pre,
		candidates: make(map[string][]*wheel.Wheel),
		extra:      make(map[string][]constraint),
		nodes:      make(map[string]*node),
	}

	for _, w := range available {
		switch {
		case env.wheelRank(w) < 0:
			slog.Debug("ignoring incompatible wheel", "wheel", w.Filename.String())
		case !env.allowsPython(w):
			slog.Debug("ignoring wheel for other python", "wheel", w.Filename.String(), "requires", w.RequiresPython)
		default:
			p.candidates[w.Key()] = append(p.candidates[w.Key()], w)
		}
	}
	for _, c := range m.Constraints {
		p.extra[c.Key()] = append(p.extra[c.Key()], constraint{specifier: c.Specifier, source: c.Source})
	}

	for _, e := range m.Requirements {
		applies, err := e.Applies(env.markers(""))
		if err != nil {
			return nil, fault.Wrap(fault.ErrResolution, &fault.PackageError{Package: e.Name, Err: err})
		}
		if !applies {
			slog.Debug("requirement does not apply", "requirement", e.String(), "source", e.Source)
			continue
		}
		if err := p.require(e.Requirement, e.Source, e.Hashes); err != nil {
			return nil, err
		}
	}

	for len(p.queue) > 0 {
		key := p.queue[0]
		p.queue = p.queue[1:]
		if err := p.visit(p.nodes[key]); err != nil {
			return nil, err
		}
	}

	// Every new constraint requeues its node, so the constraint sets are
	// final once the queue drains.
	for _, key := range p.deferred {
		if n := p.nodes[key]; n.selected == nil {
			if _, err := p.choose(n); err != nil {
				return nil, err
			}
		}
	}

	plan := &Plan{}
	for _, key := range p.order {
		n := p.nodes[key]
		sel := Selection{Action: ActionInstall, Wheel: n.selected, Extras: sortedKeys(n.extras)}
		for _, c := range n.constraints {
			sel.RequiredBy = append(sel.RequiredBy, c.source)
		}
		if inst, ok := env.Installed[key]; ok {
			if v, err := version.Parse(inst.Version); err == nil && v.Equal(n.selected.Version) {
				sel.Action = ActionSkip
			} else {
				sel.Replaces = &inst
			}
		}
		plan.Selections = append(plan.Selections, sel)
	}
	return plan, nil
}

// Records a requirement and queues its distribution.
func (p *planner) require(r wheel.Requirement, source string, hashes []digest.Digest) error {
	key := r.Key()
	if r.URL != "" {
		return fault.Wrap(fault.ErrResolution, &fault.PackageError{
			Package: r.Name, Constraint: "@ " + r.URL, Err: ErrNetwork,
		})
	}

	n, ok := p.nodes[key]
	if !ok {
		n = &node{key: key, name: r.Name, extras: map[string]bool{}, expanded: map[string]bool{}}
		p.nodes[key] = n
		n.constraints = append(n.constraints, p.extra[key]...)
	}
	n.constraints = append(n.constraints, constraint{specifier: r.Specifier, source: source})
	for _, e := range r.Extras {
		n.extras[e] = true
	}
	if len(hashes) > 0 {
		if n.hashes == nil {
			n.hashes = make(map[digest.Digest]bool)
		}
		for _, h := range hashes {
			n.hashes[h] = true
		}
	}

	if n.selected != nil && !r.Allows(n.selected.Version, true) {
		return fault.Wrap(fault.ErrResolution, &fault.PackageError{
			Package:    n.name,
			Constraint: r.Specifier,
			Err: fmt.Errorf("%w: %s requires %s%s but %s was selected",
				ErrConflict, source, r.Name, r.Specifier, n.selected.Version.String()),
		})
	}
	p.queue = append(p.queue, key)
	return nil
}

// Selects the node's artifact if needed and follows dependencies for every
// extra not yet expanded. A node matching several versions waits for
// constraints that may still arrive from other distributions.
func (p *planner) visit(n *node) error {
	if n.selected == nil {
		w, err := p.choose(n)
		if errors.Is(err, ErrAmbiguous) {
			if !slices.Contains(p.deferred, n.key) {
				p.deferred = append(p.deferred, n.key)
			}
			return nil
		}
		if err != nil {
			return err
		}
		n.selected = w
		p.order = append(p.order, n.key)
		slog.Debug("selected interpreter package", "package", w.Name, "version", w.Version.String(), "wheel", w.Filename.String())
	}

	sets := []string{""}
	for _, e := range sortedKeys(n.extras) {
		sets = append(sets, e)
	}

	var deps []wheel.Requirement
	for _, extra := range sets {
		if n.expanded[extra] {
			continue
		}
		n.expanded[extra] = true
		if extra != "" && !slices.Contains(n.selected.Extras, extra) {
			slog.Warn("requested extra not provided", "package", n.selected.Name, "extra", extra)
		}
		for _, r := range n.selected.Requires {
			applies, err := r.Applies(p.env.markers(extra))
			if err != nil {
				return fault.Wrap(fault.ErrResolution, &fault.PackageError{Package: n.selected.Name, Constraint: r.String(), Err: err})
			}
			if applies && extra != "" {
				// Already followed with the base set.
				base, _ := r.Applies(p.env.markers(""))
				applies = !base
			}
			if applies {
				deps = append(deps, r)
			}
		}
	}

	sort.SliceStable(deps, func(i, j int) bool { return deps[i].Key() < deps[j].Key() })
	source := n.selected.String()
	for _, r := range deps {
		if err := p.require(r, source, nil); err != nil {
			return err
		}
	}
	return nil
}

// Picks the single version satisfying every constraint of the node.
func (p *planner) choose(n *node) (*wheel.Wheel, error) {
	cands := p.candidates[n.key]

	matches := p.filter(n, cands, p.pre)
	if len(matches) == 0 && !p.pre {
		matches = p.filter(n, cands, true)
	}

	spec := n.specifier()
	if len(matches) == 0 {
		return nil, fault.Wrap(fault.ErrResolution, &fault.PackageError{
			Package:    n.name,
			Constraint: spec,
			Err:        fmt.Errorf("%w; available versions: %s", ErrNoMatch, versionList(cands)),
		})
	}

	versions := distinctVersions(matches)
	if len(versions) > 1 {
		return nil, fault.Wrap(fault.ErrResolution, &fault.PackageError{
			Package:    n.name,
			Constraint: spec,
			Err:        fmt.Errorf("%w: %s; pin one version", ErrAmbiguous, strings.Join(versions, ", ")),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		ri, rj := p.env.wheelRank(matches[i]), p.env.wheelRank(matches[j])
		if ri != rj {
			return ri < rj
		}
		return matches[i].Path < matches[j].Path
	})
	w := matches[0]

	if n.hashes != nil && !n.hashes[w.Digest] {
		return nil, fault.Wrap(fault.ErrIntegrity, &fault.PackageError{
			Package:    n.name,
			Constraint: spec,
			Err:        fmt.Errorf("%w: %s has %s", ErrHashMissing, w.Filename.String(), w.Digest),
		})
	}
	return w, nil
}

// Returns the candidates allowed by every constraint.
func (p *planner) filter(n *node, cands []*wheel.Wheel, pre bool) []*wheel.Wheel {
	var out []*wheel.Wheel
	for _, w := range cands {
		ok := true
		for _, c := range n.constraints {
			if !(wheel.Requirement{Specifier: c.specifier}).Allows(w.Version, pre) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, w)
		}
	}
	return out
}

// Returns the combined specifier of the node, e.g. "==1.0" or ">=1,<2".
func (n *node) specifier() string {
	var parts []string
	for _, c := range n.constraints {
		if c.specifier != "" && !slices.Contains(parts, c.specifier) {
			parts = append(parts, c.specifier)
		}
	}
	if len(parts) == 0 {
		return "any version"
	}
	return strings.Join(parts, ",")
}

// Returns the distinct versions of the wheels in ascending order.
func distinctVersions(ws []*wheel.Wheel) []string {
	sorted := make([]*wheel.Wheel, len(ws))
	copy(sorted, ws)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Version.Compare(sorted[j].Version) < 0 })

	var out []string
	for i, w := range sorted {
		if i > 0 && w.Version.Equal(sorted[i-1].Version) {
			continue
		}
		out = append(out, w.Version.String())
	}
	return out
}

func versionList(ws []*wheel.Wheel) string {
	if len(ws) == 0 {
		return "none"
	}
	return strings.Join(distinctVersions(ws), ", ")
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
