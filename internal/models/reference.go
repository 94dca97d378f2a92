package models

// RefKind discriminates the closed set of inline reference kinds.
type RefKind string

const (
	RefWikiLink RefKind = "wikilink"
	RefTag      RefKind = "tag"
	RefBlockRef RefKind = "blockref"
	RefEmbed    RefKind = "embed"
	RefExternal RefKind = "external"
)

// Reference is one inline reference found in a block.
//
// Target holds the page name for WikiLink and page embeds, the tag name for
// Tag, the block id for BlockRef and block embeds, and the URL for external
// links. Label holds the wiki alias or the link text.
type Reference struct {
	Kind   RefKind `json:"kind"`
	Target string  `json:"target"`
	Label  string  `json:"label,omitempty"`
	// EmbedBlock marks an Embed whose target is a block id.
	EmbedBlock bool `json:"embed_block,omitempty"`

	// Source is the id of the block the reference was found in.
	Source string `json:"source"`
	// Offset is the byte offset of the match within the block content.
	Offset int `json:"offset"`
}

// TargetsBlock reports whether the reference points at a block id.
func (r Reference) TargetsBlock() bool {
	return r.Kind == RefBlockRef || (r.Kind == RefEmbed && r.EmbedBlock)
}

// TargetsPage reports whether the reference names a page.
func (r Reference) TargetsPage() bool {
	return r.Kind == RefWikiLink || (r.Kind == RefEmbed && !r.EmbedBlock)
}
