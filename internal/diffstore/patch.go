package diffstore

import (
	"fmt"
	"regexp"
	"strings"
)

// Structural checks for unified git patches. The store treats patch content
// as opaque beyond this shape validation; semantic application is the
// workspace's job via git apply.
var (
	diffHeaderRe  = regexp.MustCompile(`(?m)^diff --git a/.+ b/.+`)
	hunkHeaderRe  = regexp.MustCompile(`(?m)^@@\s-(\d+)(,\d+)?\s\+(\d+)(,\d+)?\s@@(\s.*)?$`)
	minusHeaderRe = regexp.MustCompile(`(?m)^---\s`)
	plusHeaderRe  = regexp.MustCompile(`(?m)^\+\+\+\s`)
	headerOnlyRe  = regexp.MustCompile(`(?m)^(old mode|new mode) \d{6}|^(rename|copy) (from|to) |^(new file mode|deleted file mode) \d{6}|^similarity index \d+%`)
	hunkBodyRe    = regexp.MustCompile(`^[ +\-]|^\\ No newline at end of file$`)
)

// ValidatePatch checks that content looks like a well-formed unified git
// patch: a diff --git header per file block, paired ---/+++ file headers, and
// hunks whose body lines carry valid prefixes. Mode-change, rename, and
// new/deleted-file blocks may legitimately have no hunks.
func ValidatePatch(content string) error {
	if !diffHeaderRe.MatchString(content) {
		return fmt.Errorf("missing or malformed 'diff --git' header")
	}

	for _, block := range splitFileBlocks(content) {
		if err := validateBlock(block); err != nil {
			return err
		}
	}
	return nil
}

// splitFileBlocks splits patch content into per-file blocks at each
// diff --git header.
func splitFileBlocks(content string) []string {
	idx := diffHeaderRe.FindAllStringIndex(content, -1)
	blocks := make([]string, 0, len(idx))
	for i, loc := range idx {
		end := len(content)
		if i+1 < len(idx) {
			end = idx[i+1][0]
		}
		blocks = append(blocks, content[loc[0]:end])
	}
	return blocks
}

func validateBlock(block string) error {
	hasMinus := minusHeaderRe.MatchString(block)
	hasPlus := plusHeaderRe.MatchString(block)
	headerOnly := headerOnlyRe.MatchString(block)

	if hasMinus != hasPlus {
		return fmt.Errorf("unpaired file header (---/+++) in block %q", firstLine(block))
	}
	if !hasMinus && !headerOnly {
		return fmt.Errorf("missing file headers (---/+++) in block %q", firstLine(block))
	}

	hunks := hunkHeaderRe.FindAllStringIndex(block, -1)
	if len(hunks) == 0 {
		if headerOnly {
			return nil
		}
		return fmt.Errorf("missing hunk in block %q", firstLine(block))
	}

	for i, loc := range hunks {
		end := len(block)
		if i+1 < len(hunks) {
			end = hunks[i+1][0]
		}
		body := block[loc[1]:end]
		if err := validateHunkBody(body); err != nil {
			return err
		}
	}
	return nil
}

func validateHunkBody(body string) error {
	body = strings.TrimPrefix(body, "\n")
	lines := strings.Split(strings.TrimRight(body, "\n"), "\n")
	nonEmpty := 0
	for _, line := range lines {
		if line == "" {
			continue
		}
		nonEmpty++
		if !hunkBodyRe.MatchString(line) {
			return fmt.Errorf("invalid hunk body line %q (expected ' ', '+', '-' prefix)", line)
		}
	}
	if nonEmpty == 0 {
		return fmt.Errorf("empty hunk body")
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
