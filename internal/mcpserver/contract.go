package mcpserver

// NodeFormatContract describes how bok stores nodes and how documents are
// dissected, for LLM consumers that create nodes or import documents.
const NodeFormatContract = `# bok Node Format Contract

A book is a tree of nodes. Every node is one small, self-contained unit of text.

## Layout

` + "```" + `text
<root>/
  bok.yaml
  341916152 Introduction/
    text.qmd          # the node's content, stored verbatim
    meta.yaml         # title: Introduction
    2141613444 Background/
      text.qmd
      meta.yaml       # title: Background
  1180107261 Methods/
    text.qmd
    meta.yaml         # title: Methods
                      # after: "341916152"
` + "```" + `

## Rules

1. **Ids are derived, never chosen.** A node's id is the MurmurHash3 (32-bit, seed 0) of
   its title, written as an unsigned decimal number. Two nodes cannot share a title-derived
   id; a clashing title is stored with a " (2)", " (3)", ... suffix.
2. **Titles** are short blurbs (at most 50 characters is customary). The first line of the
   content, without heading markers, makes a good title.
3. **Children** are nested directories. Pass ` + "`" + `parent` + "`" + ` to create one.
4. **Sibling order** comes from ` + "`" + `after` + "`" + `: the id of the sibling this node follows.
   Nodes without ` + "`" + `after` + "`" + ` come first, in directory order.
5. **Ids may be abbreviated** to any unique prefix when reading or removing.

## Dissection

` + "`" + `import_document` + "`" + ` splits a document into parts and creates one node per part, each
following the previous one. The created contents, joined by a blank line ("\n\n"), must
reproduce the document byte for byte; the report's ` + "`" + `valid` + "`" + ` field says whether they do,
and ` + "`" + `mismatch_at` + "`" + ` gives the first differing byte otherwise.

Remote dissection models answer with one JSON array per line:

` + "```" + `text
["Short blurb", "The part's full content, verbatim."]
` + "```" + `
`
