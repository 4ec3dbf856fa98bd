// Package evidence gathers static facts about a target project and turns
// them into per-criterion evidence bundles for semantic scoring.
package evidence

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/signalnine/gradecheck/internal/gitops"
)

type File struct {
	Path       string   `json:"path"`
	Name       string   `json:"file_name"`
	Lines      int      `json:"lines"`
	Hooks      []string `json:"hooks_used,omitempty"`
	Responsive bool     `json:"has_responsive_classes"`
	Snippet    string   `json:"key_snippet,omitempty"`
}

type Doc struct {
	Path    string `json:"path"`
	Name    string `json:"file_name"`
	Lines   int    `json:"lines"`
	Words   int    `json:"word_count"`
	Preview string `json:"preview"`
}

type App struct {
	Path   string `json:"path"`
	Lines  int    `json:"lines"`
	Routes int    `json:"routes_count"`
}

type Git struct {
	Available bool `json:"available"`
	Commits   int  `json:"commit_count"`
	Branches  int  `json:"branch_count"`
}

// Summary is everything static inspection learned about a project. Slices
// are sorted by path so repeated inspections of the same tree are identical.
type Summary struct {
	Root       string `json:"root"`
	Components []File `json:"components"`
	Pages      []File `json:"pages"`
	App        *App   `json:"app,omitempty"`
	Data       []File `json:"data"`
	Styles     []File `json:"styles"`
	Docs       []Doc  `json:"documentation"`
	Tailwind   bool   `json:"has_tailwind"`
	TotalFiles int    `json:"total_files"`
	TotalLines int    `json:"total_lines"`
	Git        Git    `json:"git"`
}

var (
	hookPattern       = regexp.MustCompile(`\b(use[A-Z]\w*)\s*\(`)
	responsivePattern = regexp.MustCompile(`\b(sm|md|lg|xl|2xl):`)
	routePattern      = regexp.MustCompile(`<Route\b`)

	skipDirs   = map[string]bool{"node_modules": true, ".git": true, "dist": true, "build": true, "coverage": true, ".next": true}
	scriptExts = map[string]bool{".js": true, ".jsx": true, ".ts": true, ".tsx": true}
	styleExts  = map[string]bool{".css": true, ".scss": true, ".sass": true, ".less": true}
)

const (
	snippetLines = 15
	previewChars = 300
)

// Inspect walks root and records the facts extractors draw on. It never
// writes to the tree.
func Inspect(ctx context.Context, root string) (*Summary, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("inspecting %s: not a directory", root)
	}
	s := &Summary{Root: root}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		rel = filepath.ToSlash(rel)
		return s.add(path, rel, d.Name())
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	for _, files := range [][]File{s.Components, s.Pages, s.Data, s.Styles} {
		sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	}
	sort.Slice(s.Docs, func(i, j int) bool { return s.Docs[i].Path < s.Docs[j].Path })

	if gitops.IsRepo(root) {
		if n, err := gitops.CommitCount(ctx, root); err == nil {
			s.Git.Available = true
			s.Git.Commits = n
			s.Git.Branches, _ = gitops.BranchCount(ctx, root)
		}
	}
	return s, nil
}

func (s *Summary) add(path, rel, name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	lower := strings.ToLower(rel)
	if strings.HasPrefix(strings.ToLower(name), "tailwind.config.") {
		s.Tailwind = true
	}
	switch {
	case scriptExts[ext], styleExts[ext], ext == ".md", ext == ".html", ext == ".json" && !strings.HasSuffix(lower, "package-lock.json"):
	default:
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	lines := countLines(data)
	s.TotalFiles++
	s.TotalLines += lines

	switch {
	case ext == ".md":
		if !strings.Contains(rel, "/") {
			s.Docs = append(s.Docs, newDoc(rel, name, data, lines))
		}
	case styleExts[ext]:
		s.Styles = append(s.Styles, File{Path: rel, Name: name, Lines: lines})
	case scriptExts[ext]:
		f := newSource(rel, name, data, lines)
		switch {
		case inDir(lower, "components"):
			s.Components = append(s.Components, f)
		case inDir(lower, "pages"):
			s.Pages = append(s.Pages, f)
		case inDir(lower, "data"):
			s.Data = append(s.Data, f)
		case strings.TrimSuffix(name, ext) == "App" && s.App == nil:
			s.App = &App{Path: rel, Lines: lines, Routes: len(routePattern.FindAll(data, -1))}
		}
	}
	return nil
}

func inDir(rel, dir string) bool {
	return strings.HasPrefix(rel, dir+"/") || strings.Contains(rel, "/"+dir+"/")
}

func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}

func newSource(rel, name string, data []byte, lines int) File {
	f := File{Path: rel, Name: name, Lines: lines}
	seen := map[string]bool{}
	for _, m := range hookPattern.FindAllSubmatch(data, -1) {
		h := string(m[1])
		if !seen[h] {
			seen[h] = true
			f.Hooks = append(f.Hooks, h)
		}
	}
	sort.Strings(f.Hooks)
	f.Responsive = responsivePattern.Match(data)
	f.Snippet = snippet(data)
	return f
}

// snippet takes the lines starting at the first JSX return, or the top of
// the file when there is none.
func snippet(data []byte) string {
	var all []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		all = append(all, sc.Text())
	}
	start := 0
	for i, l := range all {
		if strings.Contains(l, "return (") {
			start = i
			break
		}
	}
	end := start + snippetLines
	if end > len(all) {
		end = len(all)
	}
	return strings.Join(all[start:end], "\n")
}

func newDoc(rel, name string, data []byte, lines int) Doc {
	text := string(data)
	preview := strings.Join(strings.Fields(text), " ")
	if r := []rune(preview); len(r) > previewChars {
		preview = string(r[:previewChars]) + "..."
	}
	return Doc{Path: rel, Name: name, Lines: lines, Words: len(strings.Fields(text)), Preview: preview}
}
