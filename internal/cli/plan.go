package cli

import (
	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"

	"github.com/cruciblehq/offstage/internal/build"
)

// Represents the 'offstage plan' command.
type PlanCmd struct {
	Inputs Inputs `embed:""`
}

// One planned package as printed by plan.
type plannedPackage struct {
	Name       string   `yaml:"name"`
	Version    string   `yaml:"version"`
	Action     string   `yaml:"action"`
	Replaces   string   `yaml:"replaces,omitempty"`
	Extras     []string `yaml:"extras,omitempty"`
	RequiredBy []string `yaml:"required_by,omitempty"`
}

type planView struct {
	Native      []plannedPackage `yaml:"native"`
	Shadowed    []string         `yaml:"shadowed,omitempty"`
	Interpreter []plannedPackage `yaml:"interpreter"`
}

// Executes the plan command.
//
// Resolves both phases against the current target and prints the plans in
// install order. Nothing is verified or written.
func (c *PlanCmd) Run(kctx *kong.Context) error {
	preview, err := build.Plan(c.Inputs.options())
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(kctx.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(newPlanView(preview)); err != nil {
		return err
	}
	return enc.Close()
}

func newPlanView(p *build.Preview) planView {
	v := planView{
		Native:      []plannedPackage{},
		Interpreter: []plannedPackage{},
	}
	for _, s := range p.Native.Steps {
		v.Native = append(v.Native, plannedPackage{
			Name:     s.Package.Name,
			Version:  s.Package.Version,
			Action:   string(s.Action),
			Replaces: s.Replaces,
		})
	}
	for _, pkg := range p.Native.Shadowed {
		v.Shadowed = append(v.Shadowed, pkg.Name+" "+pkg.Version)
	}
	for _, s := range p.Interpreter.Selections {
		pp := plannedPackage{
			Name:       s.Wheel.Name,
			Version:    s.Wheel.Version.String(),
			Action:     string(s.Action),
			Extras:     s.Extras,
			RequiredBy: s.RequiredBy,
		}
		if s.Replaces != nil {
			pp.Replaces = s.Replaces.Version
		}
		v.Interpreter = append(v.Interpreter, pp)
	}
	return v
}
