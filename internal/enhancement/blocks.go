package enhancement

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

const frontmatterDelim = "---\n"

// StripFrontmatter removes a leading YAML front-matter block delimited by
// --- lines, if present. The returned frontmatter bytes include both
// delimiters verbatim, so ReattachFrontmatter can restore the document
// exactly. ok is false when content has no leading front-matter block, in
// which case body is content unchanged.
func StripFrontmatter(content []byte) (frontmatter []byte, body []byte, ok bool) {
	if !bytes.HasPrefix(content, []byte(frontmatterDelim)) {
		return nil, content, false
	}
	closeMarker := []byte("\n" + frontmatterDelim)
	idx := bytes.Index(content[len(frontmatterDelim):], closeMarker)
	if idx < 0 {
		return nil, content, false
	}
	end := len(frontmatterDelim) + idx + len(closeMarker)
	fm := content[:end]
	rest := bytes.TrimPrefix(content[end:], []byte("\n"))
	return fm, rest, true
}

// ReattachFrontmatter restores the blank line between a stripped
// front-matter block and the (possibly rewritten) body.
func ReattachFrontmatter(frontmatter []byte, body []byte) []byte {
	var buf bytes.Buffer
	buf.Write(frontmatter)
	buf.WriteString("\n")
	buf.Write(body)
	return buf.Bytes()
}

// blockSeparator matches one or more blank lines: the boundary the worker
// task splits a document body on.
var blockSeparator = regexp.MustCompile(`\n[ \t]*\n+`)

// SplitBlocks splits body into its constituent blocks on runs of one or
// more blank lines. Order is preserved; no block is dropped.
func SplitBlocks(body []byte) []string {
	trimmed := strings.Trim(string(body), "\n")
	if trimmed == "" {
		return nil
	}
	return blockSeparator.Split(trimmed, -1)
}

// IsEligibleBlock applies the enhancement worker's eligibility filter:
// non-empty, not a header, not a code block (fenced or indented), at least
// minBlockChars long after trimming, and not a bare image reference.
func IsEligibleBlock(block string, minBlockChars int) bool {
	trimmed := strings.TrimSpace(block)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "#") {
		return false
	}
	if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
		return false
	}
	if strings.HasPrefix(block, "    ") || strings.HasPrefix(block, "\t") {
		return false
	}
	if strings.HasPrefix(trimmed, "![") {
		return false
	}
	if len(trimmed) < minBlockChars {
		return false
	}
	return true
}

// EligibleIndices returns, in order, the indices of blocks that pass
// IsEligibleBlock. All blocks are kept in the rebuilt document; only these
// positions are ever submitted to the LLM.
func EligibleIndices(blocks []string, minBlockChars int) []int {
	var indices []int
	for i, b := range blocks {
		if IsEligibleBlock(b, minBlockChars) {
			indices = append(indices, i)
		}
	}
	return indices
}

// BuildPrompt assembles the single LLM request for a document: its
// identifying metadata plus every eligible block, numbered for the
// response protocol ParseAnnotations expects back.
func BuildPrompt(title, url string, blocks []string, eligible []int) string {
	var b strings.Builder
	b.WriteString("Document title: ")
	b.WriteString(title)
	b.WriteString("\nSource URL: ")
	b.WriteString(url)
	b.WriteString("\n\n")
	b.WriteString("For each numbered block below, write one short note giving whatever " +
		"context a reader needs to understand it out of sequence: what tool, version, " +
		"or section it belongs to, and what it disambiguates. Reply with exactly one " +
		"line per block, formatted as \"N: note\". Skip nothing; if a block needs no " +
		"extra context, reply \"N: \" with an empty note.\n\n")
	for i, idx := range eligible {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(": ")
		b.WriteString(blocks[idx])
		b.WriteString("\n\n")
	}
	return b.String()
}

var annotationLine = regexp.MustCompile(`(?m)^\s*(\d+):\s?(.*)$`)

// ParseAnnotations extracts the "N: note" lines an LLM reply is expected to
// contain and lines them up with the eligible block they annotate. Any
// block the reply doesn't address, or whose line fails to parse, is left
// with an empty annotation rather than failing the whole page.
func ParseAnnotations(reply string, count int) []string {
	result := make([]string, count)
	for _, m := range annotationLine.FindAllStringSubmatch(reply, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > count {
			continue
		}
		result[n-1] = strings.TrimSpace(m[2])
	}
	return result
}

// SpliceAnnotations returns a copy of blocks with each eligible position
// carrying its annotation as a trailing blockquote. Blocks with an empty
// annotation are left untouched.
func SpliceAnnotations(blocks []string, eligible []int, annotations []string) []string {
	out := make([]string, len(blocks))
	copy(out, blocks)
	for i, idx := range eligible {
		if i >= len(annotations) || annotations[i] == "" {
			continue
		}
		out[idx] = strings.TrimRight(blocks[idx], "\n") + "\n\n> Context: " + annotations[i]
	}
	return out
}

// JoinBlocks rebuilds a document body from its blocks, restoring the
// blank-line separators SplitBlocks consumed.
func JoinBlocks(blocks []string) []byte {
	return []byte(strings.Join(blocks, "\n\n"))
}
