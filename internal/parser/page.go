package parser

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/starford/pagegraph/internal/checksum"
	"github.com/starford/pagegraph/internal/models"
)

// Options configures page assembly.
type Options struct {
	// TabWidth is the indentation width of a tab. Zero means DefaultTabWidth.
	TabWidth int
	// PublicOnly makes pages without an explicit public flag private.
	PublicOnly bool
}

// pagePropertyKeys are the page-level properties honoured when written as
// leading "key:: value" lines instead of frontmatter.
var pagePropertyKeys = []string{"title", "alias", "aliases", "tags", "public"}

// IsPageFile reports whether name has a page file extension.
func IsPageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".md" || ext == ".markdown"
}

// PagePath converts a file path relative to the graph root into a canonical
// page path. The extension is dropped and namespace separators encoded in
// file names ("a___b", "a%2Fb") become "/".
func PagePath(rel string) string {
	p := filepath.ToSlash(filepath.Clean(rel))
	p = strings.TrimPrefix(p, "./")
	if ext := filepath.Ext(p); IsPageFile(p) {
		p = p[:len(p)-len(ext)]
	}
	p = strings.ReplaceAll(p, "___", "/")
	p = strings.ReplaceAll(p, "%2F", "/")
	p = strings.ReplaceAll(p, "%2f", "/")
	return p
}

// NormalizeName is the key under which titles and aliases are indexed.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// TitleFromPath derives a display title from the last path segment. It is
// safe for concurrent use; a cases.Caser is not, so one is built per call.
func TitleFromPath(path string) string {
	name := path
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return cases.Title(language.Und, cases.NoLower).String(strings.Join(strings.Fields(name), " "))
}

// ParsePage assembles a page from its source text. It never fails: problems
// are recorded as warnings on the page.
func ParsePage(path string, data []byte, opts Options) *models.Page {
	tabWidth := opts.TabWidth
	if tabWidth <= 0 {
		tabWidth = DefaultTabWidth
	}
	doc := parseBlocks(path, Lines(string(data), tabWidth), tabWidth)

	page := &models.Page{
		Path:     path,
		Checksum: checksum.Sum(data),
		Blocks:   doc.blocks,
		Roots:    doc.roots,
		Warnings: doc.warnings,
	}

	fm := map[string]any{}
	switch {
	case doc.unclosedFM:
		page.Blocks, page.Roots = nil, nil
		page.Warnings = append(page.Warnings, models.Warning{
			Kind:    models.WarnFrontmatterDecode,
			Path:    path,
			Message: "frontmatter is not closed by a --- line",
		})
	case doc.hasFM:
		decoded, err := decodeFrontmatter(doc.frontmatter)
		if err != nil {
			page.Warnings = append(page.Warnings, models.Warning{
				Kind:    models.WarnFrontmatterDecode,
				Path:    path,
				Message: err.Error(),
			})
		} else {
			fm = decoded
		}
	}
	mergePageProperties(fm, page)
	page.Frontmatter = fm

	page.Title = TitleFromPath(path)
	if t, ok := fm["title"].(string); ok && strings.TrimSpace(t) != "" {
		page.Title = strings.TrimSpace(t)
	}

	page.Aliases = aliases(fm)
	page.Tags = tags(fm)

	page.Public = !opts.PublicOnly
	if v, ok := boolValue(fm["public"]); ok {
		page.Public = v
	}
	return page
}

// mergePageProperties copies page-level properties from a leading
// properties-only block into fm without overriding frontmatter keys.
func mergePageProperties(fm map[string]any, page *models.Page) {
	if len(page.Blocks) == 0 {
		return
	}
	first := &page.Blocks[0]
	if first.Content != "" || first.Properties.Len() == 0 {
		return
	}
	for _, key := range pagePropertyKeys {
		if _, exists := fm[key]; exists {
			continue
		}
		if v, ok := first.Properties.Get(key); ok {
			fm[key] = v
		}
	}
}

func aliases(fm map[string]any) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, key := range []string{"alias", "aliases"} {
		for _, item := range listValue(fm[key]) {
			name := NormalizeName(cleanName(item))
			if name == "" {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

func tags(fm map[string]any) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, item := range listValue(fm["tags"]) {
		name := cleanName(item)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
