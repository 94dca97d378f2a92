package mcpserver

// PageFormat describes the outline page syntax the parser understands, for
// LLM consumers that read or cite pages.
const PageFormat = `# Page Format

Every page is a Markdown file under the graph root. The path without its
extension is the page id (e.g. ` + "`" + `pages/topic.md` + "`" + ` is ` + "`" + `pages/topic` + "`" + `).
Namespace separators in file names (` + "`" + `a___b.md` + "`" + `, ` + "`" + `a%2Fb.md` + "`" + `) become ` + "`" + `/` + "`" + `.

## Frontmatter

` + "```" + `markdown
---
title: Human-readable title     # OPTIONAL – defaults to the title-cased file name
alias: [other name, short]      # OPTIONAL – names that resolve to this page
tags: [topic, draft]            # OPTIONAL – list or comma-separated string
public: true                    # OPTIONAL – controls publishing
---
` + "```" + `

Other keys are kept as their source text, as strings.

## Blocks

- Each line starting with ` + "`" + `- ` + "`" + ` or ` + "`" + `* ` + "`" + ` opens a block.
- Indentation nests blocks. Tabs count as four spaces by default.
- Other lines continue the current block.
- ` + "`" + `key:: value` + "`" + ` lines set block properties. ` + "`" + `id:: <uuid>` + "`" + ` gives the block a stable id.
- A leading ` + "`" + `TODO` + "`" + `, ` + "`" + `DOING` + "`" + `, ` + "`" + `DONE` + "`" + `, ` + "`" + `CANCELLED` + "`" + `, ` + "`" + `NOW` + "`" + ` or ` + "`" + `LATER` + "`" + ` marks a task.
- Fenced code is never split into blocks and never scanned for links.

## References

| Syntax | Meaning |
|---|---|
| ` + "`" + `[[target]]` + "`" + `, ` + "`" + `[[target\|label]]` + "`" + ` | link to a page by title, alias or path |
| ` + "`" + `#tag` + "`" + `, ` + "`" + `#[[multi word]]` + "`" + ` | tag, not a graph edge |
| ` + "`" + `((block-id))` + "`" + ` | reference to a block |
| ` + "`" + `{{embed [[target]]}}` + "`" + ` | embedded page |
| ` + "`" + `{{embed ((block-id))}}` + "`" + ` | embedded block |
| ` + "`" + `[text](https://...)` + "`" + ` | external link, not a graph edge |

Links to pages that do not exist point at ` + "`" + `unresolved:<name>` + "`" + `.
`
