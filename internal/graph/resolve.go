package graph

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/starford/pagegraph/internal/models"
	"github.com/starford/pagegraph/internal/parser"
)

// aliasIndex maps normalized titles and aliases to canonical paths. Every
// registration is remembered so that unregistering a page hands a contested
// key back to the previous claimant; the owner of a key is always its most
// recent claimant.
type aliasIndex struct {
	claims map[string][]string
	keys   map[string][]string
	paths  map[string]string
}

func newAliasIndex() *aliasIndex {
	return &aliasIndex{
		claims: make(map[string][]string),
		keys:   make(map[string][]string),
		paths:  make(map[string]string),
	}
}

// pageKeys returns the distinct normalized names a page answers to.
func pageKeys(p *models.Page) []string {
	var keys []string
	for _, name := range append([]string{p.Title}, p.Aliases...) {
		k := parser.NormalizeName(name)
		if k != "" && !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	return keys
}

func (a *aliasIndex) register(p *models.Page) {
	keys := pageKeys(p)
	for _, k := range keys {
		a.claims[k] = append(a.claims[k], p.Path)
	}
	a.keys[p.Path] = keys
	a.paths[strings.ToLower(p.Path)] = p.Path
}

func (a *aliasIndex) unregister(path string) {
	for _, k := range a.keys[path] {
		claims := slices.DeleteFunc(a.claims[k], func(c string) bool { return c == path })
		if len(claims) == 0 {
			delete(a.claims, k)
		} else {
			a.claims[k] = claims
		}
	}
	delete(a.keys, path)
	if a.paths[strings.ToLower(path)] == path {
		delete(a.paths, strings.ToLower(path))
	}
}

func (a *aliasIndex) resolve(name string) (string, bool) {
	k := parser.NormalizeName(name)
	if k == "" {
		return "", false
	}
	if claims := a.claims[k]; len(claims) > 0 {
		return claims[len(claims)-1], true
	}
	if p, ok := a.paths[strings.Trim(k, "/")]; ok {
		return p, true
	}
	return "", false
}

// collisions reports every key claimed by more than one page, sorted by key.
func (a *aliasIndex) collisions() []models.Warning {
	var keys []string
	for k, claims := range a.claims {
		if len(claims) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]models.Warning, 0, len(keys))
	for _, k := range keys {
		claims := a.claims[k]
		winner := claims[len(claims)-1]
		out = append(out, models.Warning{
			Kind:    models.WarnAliasCollision,
			Path:    winner,
			Message: fmt.Sprintf("name %q claimed by %s; %s wins", k, strings.Join(claims, ", "), winner),
		})
	}
	return out
}
