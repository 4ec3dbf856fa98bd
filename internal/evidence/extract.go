package evidence

import (
	"fmt"
	"sort"
	"strings"
)

// Bundle is the evidence handed to the semantic scorer for one criterion.
type Bundle struct {
	CriterionID string   `json:"criterion_id"`
	Text        string   `json:"text"`
	Files       []string `json:"files"`
}

// Extractor builds one criterion's bundle from a project summary. New
// criteria plug in by registering an Extractor; the evaluator loop does
// not change.
type Extractor interface {
	Extract(s *Summary) Bundle
}

type ExtractorFunc func(s *Summary) Bundle

func (f ExtractorFunc) Extract(s *Summary) Bundle { return f(s) }

type Kind string

const (
	KindComponent     Kind = "component"
	KindComponentData Kind = "component_with_data"
	KindPages         Kind = "pages"
	KindHooks         Kind = "hooks_overview"
	KindStyling       Kind = "styling"
	KindDocsGit       Kind = "docs_git"
	KindOverview      Kind = "overview"
)

// Spec configures a built-in extractor. Match holds lower-case name
// fragments used to find the component a criterion is about.
type Spec struct {
	Kind  Kind     `json:"kind"`
	Match []string `json:"match,omitempty"`
	Label string   `json:"label,omitempty"`
}

// New builds the extractor for a spec.
func New(spec Spec) (Extractor, error) {
	label := spec.Label
	switch spec.Kind {
	case KindComponent, KindComponentData:
		if len(spec.Match) == 0 {
			return nil, fmt.Errorf("%s extractor needs at least one match term", spec.Kind)
		}
		if label == "" {
			label = capitalize(spec.Match[0]) + " Component"
		}
		withData := spec.Kind == KindComponentData
		return component{label: label, match: lowerAll(spec.Match), withData: withData}, nil
	case KindPages:
		return ExtractorFunc(pages), nil
	case KindHooks:
		return ExtractorFunc(hooks), nil
	case KindStyling:
		return ExtractorFunc(styling), nil
	case KindDocsGit:
		return ExtractorFunc(docsGit), nil
	case KindOverview, "":
		return ExtractorFunc(overview), nil
	}
	return nil, fmt.Errorf("unknown evidence kind %q", spec.Kind)
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// Registry maps criterion ids to extractors. Criteria without an entry get
// the project overview.
type Registry struct {
	byID     map[string]Extractor
	fallback Extractor
}

func NewRegistry(specs map[string]Spec) (*Registry, error) {
	r := &Registry{byID: make(map[string]Extractor, len(specs)), fallback: ExtractorFunc(overview)}
	for id, spec := range specs {
		e, err := New(spec)
		if err != nil {
			return nil, fmt.Errorf("evidence for %s: %w", id, err)
		}
		r.byID[id] = e
	}
	return r, nil
}

func (r *Registry) Register(id string, e Extractor) {
	r.byID[id] = e
}

// IDs lists the criterion ids with a registered extractor, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Extract returns the bundle for a criterion. A nil summary yields the
// bundle for an empty project.
func (r *Registry) Extract(id string, s *Summary) Bundle {
	if s == nil {
		s = &Summary{}
	}
	e, ok := r.byID[id]
	if !ok {
		e = r.fallback
	}
	b := e.Extract(s)
	b.CriterionID = id
	if b.Files == nil {
		b.Files = []string{}
	}
	return b
}

type component struct {
	label    string
	match    []string
	withData bool
}

func (c component) find(s *Summary) *File {
	for i := range s.Components {
		name := strings.ToLower(s.Components[i].Name)
		for _, m := range c.match {
			if strings.Contains(name, m) {
				return &s.Components[i]
			}
		}
	}
	return nil
}

func (c component) Extract(s *Summary) Bundle {
	var b strings.Builder
	var files []string
	fmt.Fprintf(&b, "**%s**:\n", c.label)
	if f := c.find(s); f != nil {
		files = append(files, f.Path)
		fmt.Fprintf(&b, "- %s (%d lines)\n", f.Path, f.Lines)
		fmt.Fprintf(&b, "  Hooks: %s\n", joinOr(f.Hooks, "none"))
		if f.Snippet != "" && !c.withData {
			fmt.Fprintf(&b, "  Key code:\n```\n%s\n```\n", f.Snippet)
		}
	} else {
		fmt.Fprintf(&b, "- no component matching %s found\n", strings.Join(c.match, "/"))
	}
	if c.withData {
		b.WriteString("\n**Data Files**:\n")
		if len(s.Data) == 0 {
			b.WriteString("- none found\n")
		}
		for _, d := range s.Data {
			files = append(files, d.Path)
			fmt.Fprintf(&b, "- %s (%d lines)\n", d.Path, d.Lines)
		}
	}
	return Bundle{Text: b.String(), Files: files}
}

func pages(s *Summary) Bundle {
	var b strings.Builder
	var files []string
	b.WriteString("**Page Components**:\n")
	if len(s.Pages) == 0 {
		b.WriteString("- none found\n")
	}
	for _, p := range s.Pages {
		files = append(files, p.Path)
		fmt.Fprintf(&b, "- %s (%d lines)\n", p.Path, p.Lines)
	}
	b.WriteString("\n**App (Router Configuration)**:\n")
	if s.App != nil {
		files = append(files, s.App.Path)
		fmt.Fprintf(&b, "- %s (%d lines)\nRoutes configured: %d\n", s.App.Path, s.App.Lines, s.App.Routes)
	} else {
		b.WriteString("- App component not found\n")
	}
	return Bundle{Text: b.String(), Files: files}
}

func hooks(s *Summary) Bundle {
	var b strings.Builder
	b.WriteString("**Overall JavaScript Implementation**:\n")
	fmt.Fprintf(&b, "Total Components: %d\nTotal Pages: %d\nTotal Lines: %d\n\n", len(s.Components), len(s.Pages), s.TotalLines)
	b.WriteString("**Hooks Usage Across Components**:\n")
	usage := map[string]int{}
	for _, c := range s.Components {
		for _, h := range c.Hooks {
			usage[h]++
		}
	}
	names := make([]string, 0, len(usage))
	for h := range usage {
		names = append(names, h)
	}
	sort.Strings(names)
	if len(names) == 0 {
		b.WriteString("- no hooks detected\n")
	}
	for _, h := range names {
		fmt.Fprintf(&b, "- %s: %d components\n", h, usage[h])
	}
	return Bundle{Text: b.String(), Files: componentPaths(s, len(s.Components))}
}

func styling(s *Summary) Bundle {
	var b strings.Builder
	b.WriteString("**Styling and Responsiveness**:\n")
	fmt.Fprintf(&b, "Tailwind Config: %s\nCSS Files: %d\n\n", yesNo(s.Tailwind), len(s.Styles))
	b.WriteString("**Component Structure**:\n")
	n := len(s.Components)
	if n > 5 {
		n = 5
	}
	for _, c := range s.Components[:n] {
		state := "no responsive classes found"
		if c.Responsive {
			state = "has responsive classes"
		}
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, state)
	}
	files := componentPaths(s, n)
	for _, st := range s.Styles {
		files = append(files, st.Path)
	}
	return Bundle{Text: b.String(), Files: files}
}

func docsGit(s *Summary) Bundle {
	var b strings.Builder
	var files []string
	b.WriteString("**README Documentation**:\n")
	found := false
	for _, d := range s.Docs {
		if strings.Contains(strings.ToLower(d.Name), "readme") {
			found = true
			files = append(files, d.Path)
			fmt.Fprintf(&b, "- %s (%d lines, %d words)\n  Preview: %s\n", d.Path, d.Lines, d.Words, d.Preview)
			break
		}
	}
	if !found {
		b.WriteString("- README not found\n")
	}
	b.WriteString("\n**Git Information**:\n")
	if s.Git.Available {
		fmt.Fprintf(&b, "Commit count: %d\nBranch count: %d\n", s.Git.Commits, s.Git.Branches)
	} else {
		b.WriteString("Git history unavailable\n")
	}
	return Bundle{Text: b.String(), Files: files}
}

func overview(s *Summary) Bundle {
	text := fmt.Sprintf("**Project Overview**:\nFrontend Components: %d\nFrontend Pages: %d\nTotal Lines of Code: %d\n",
		len(s.Components), len(s.Pages), s.TotalLines)
	return Bundle{Text: text}
}

func componentPaths(s *Summary, n int) []string {
	out := make([]string, 0, n)
	for _, c := range s.Components[:n] {
		out = append(out, c.Path)
	}
	return out
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
