package parser

import (
	"regexp"
	"slices"
	"strings"

	"github.com/starford/pagegraph/internal/models"
)

var (
	embedRe    = regexp.MustCompile(`\{\{embed\s+(?:\[\[([^\[\]]+?)\]\]|\(\(([^()\s]+)\)\))\s*\}\}`)
	wikilinkRe = regexp.MustCompile(`(#?)\[\[([^\[\]]+?)\]\]`)
	blockRefRe = regexp.MustCompile(`\(\(([^()\s]+)\)\)`)
	linkRe     = regexp.MustCompile(`(!?)\[([^\[\]]*)\]\(([^()\s]+)\)`)
	urlRe      = regexp.MustCompile(`[A-Za-z][A-Za-z0-9+.-]*://[^\s<>()\[\]]+`)
	tagRe      = regexp.MustCompile(`(?:^|[\s,;(])#([\p{L}\p{N}_][\p{L}\p{N}_/-]*)`)
	markerRe   = regexp.MustCompile(`^(TODO|DOING|DONE|CANCELLED|NOW|LATER)(?:[ \t]|$)`)
	priorityRe = regexp.MustCompile(`^\[#([ABC])\](?:[ \t]|$)`)
)

var markerStates = map[string]models.TaskState{
	"TODO":      models.TaskTodo,
	"LATER":     models.TaskTodo,
	"DOING":     models.TaskDoing,
	"NOW":       models.TaskDoing,
	"DONE":      models.TaskDone,
	"CANCELLED": models.TaskCancelled,
}

// ExtractRefs scans block content for inline references. Code spans and fenced
// code are skipped. Wiki spans are matched before tags and block refs so their
// interior is never rescanned. The result is in document order.
func ExtractRefs(content, blockID string) []models.Reference {
	if content == "" {
		return nil
	}
	buf := []byte(content)
	maskCode(buf)

	var refs []models.Reference
	add := func(r models.Reference) {
		r.Source = blockID
		refs = append(refs, r)
	}

	for _, m := range embedRe.FindAllSubmatchIndex(buf, -1) {
		if m[2] >= 0 {
			add(models.Reference{Kind: models.RefEmbed, Target: strings.TrimSpace(content[m[2]:m[3]]), Offset: m[0]})
		} else {
			add(models.Reference{Kind: models.RefEmbed, Target: content[m[4]:m[5]], EmbedBlock: true, Offset: m[0]})
		}
		mask(buf, m[0], m[1])
	}

	for _, m := range wikilinkRe.FindAllSubmatchIndex(buf, -1) {
		inner := content[m[4]:m[5]]
		mask(buf, m[0], m[1])
		if m[3] > m[2] {
			if name := strings.TrimSpace(inner); name != "" {
				add(models.Reference{Kind: models.RefTag, Target: name, Offset: m[0]})
			}
			continue
		}
		target, alias, _ := strings.Cut(inner, "|")
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		add(models.Reference{Kind: models.RefWikiLink, Target: target, Label: strings.TrimSpace(alias), Offset: m[0]})
	}

	for _, m := range blockRefRe.FindAllSubmatchIndex(buf, -1) {
		add(models.Reference{Kind: models.RefBlockRef, Target: content[m[2]:m[3]], Offset: m[0]})
		mask(buf, m[0], m[1])
	}

	for _, m := range linkRe.FindAllSubmatchIndex(buf, -1) {
		mask(buf, m[0], m[1])
		if m[3] > m[2] {
			continue // image
		}
		add(models.Reference{Kind: models.RefExternal, Target: content[m[6]:m[7]], Label: content[m[4]:m[5]], Offset: m[0]})
	}

	for _, m := range urlRe.FindAllIndex(buf, -1) {
		mask(buf, m[0], m[1])
	}

	for _, m := range tagRe.FindAllSubmatchIndex(buf, -1) {
		add(models.Reference{Kind: models.RefTag, Target: content[m[2]:m[3]], Offset: m[2] - 1})
	}

	slices.SortStableFunc(refs, func(a, b models.Reference) int { return a.Offset - b.Offset })
	return refs
}

// taskMarker returns the marker and priority at the start of content.
func taskMarker(content string) (marker string, state models.TaskState, priority string) {
	rest := content
	if m := markerRe.FindStringSubmatch(content); m != nil {
		marker, state = m[1], markerStates[m[1]]
		rest = strings.TrimLeft(content[len(marker):], " \t")
	}
	if m := priorityRe.FindStringSubmatch(rest); m != nil {
		priority = m[1]
	}
	return marker, state, priority
}

// maskCode blanks fenced code lines and inline code spans in place. Newlines
// are kept so offsets stay valid.
func maskCode(buf []byte) {
	var fence fenceState
	start := 0
	for start <= len(buf) {
		end := start
		for end < len(buf) && buf[end] != '\n' {
			end++
		}
		line := strings.TrimSpace(string(buf[start:end]))
		switch {
		case fence.open:
			if fence.closedBy(line) {
				fence.open = false
			}
			mask(buf, start, end)
		default:
			if _, ok := fence.tryOpen(line); ok {
				mask(buf, start, end)
			} else {
				maskCodeSpans(buf[start:end])
			}
		}
		start = end + 1
	}
}

// maskCodeSpans blanks backtick code spans. A run of n backticks is closed by
// the next run of exactly n backticks; an unclosed run is left as text.
func maskCodeSpans(line []byte) {
	i := 0
	for i < len(line) {
		if line[i] != '`' {
			i++
			continue
		}
		open := i
		for i < len(line) && line[i] == '`' {
			i++
		}
		n := i - open
		closeAt := -1
		for j := i; j < len(line); {
			if line[j] != '`' {
				j++
				continue
			}
			k := j
			for k < len(line) && line[k] == '`' {
				k++
			}
			if k-j == n {
				closeAt = k
				break
			}
			j = k
		}
		if closeAt < 0 {
			continue
		}
		mask(line, open, closeAt)
		i = closeAt
	}
}

func mask(buf []byte, from, to int) {
	for i := from; i < to; i++ {
		if buf[i] != '\n' {
			buf[i] = ' '
		}
	}
}
