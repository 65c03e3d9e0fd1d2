package update

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var versionCodePattern = regexp.MustCompile(`\*\*Version Code:\*\*\s*(\d+)`)

var markdown = goldmark.New()

// ParseVersionCode reads the "**Version Code:** N" marker, defaulting to 1
func ParseVersionCode(body string) int {
	match := versionCodePattern.FindStringSubmatch(body)
	if match == nil {
		return 1
	}
	versionCode, err := strconv.Atoi(match[1])
	if err != nil {
		return 1
	}
	return versionCode
}

// VersionName strips the leading "v" of a release tag
func VersionName(tag string) string {
	return strings.TrimPrefix(strings.TrimSpace(tag), "v")
}

// IsForceUpdate reports whether the release is more than threshold builds ahead
func IsForceUpdate(currentVersionCode, latestVersionCode, threshold int) bool {
	return latestVersionCode-currentVersionCode > threshold
}

// FormatFileSize renders a byte count the way the update dialog shows it
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= 1<<20:
		return fmt.Sprintf("%d MB", bytes/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%d KB", bytes/(1<<10))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

// FormatReleaseDate turns an RFC 3339 timestamp into "Jan 02, 2006"
func FormatReleaseDate(published string) string {
	parsed, err := time.Parse(time.RFC3339, published)
	if err != nil {
		datePart, _, _ := strings.Cut(published, "T")
		return datePart
	}
	return parsed.Format("Jan 02, 2006")
}

type section struct {
	level int
	title string
	start int // offset of the heading line
	body  int // offset just after the heading line
}

// ExtractReleaseNotes returns the "What's New" section of a release body.
// The section ends at the next heading of level 3 or higher. Without such a
// section it falls back to the Features..Technical Details span, then to
// everything before "### Technical Details:".
func ExtractReleaseNotes(body string) string {
	source := []byte(strings.ReplaceAll(body, "\r\n", "\n"))
	sections := headings(source)

	for index, heading := range sections {
		if !strings.Contains(strings.ToLower(heading.title), "what's new") {
			continue
		}
		end := len(source)
		for _, next := range sections[index+1:] {
			if next.level <= 3 {
				end = next.start
				break
			}
		}
		return strings.TrimSpace(string(source[heading.body:end]))
	}

	features, technical := -1, -1
	for _, heading := range sections {
		title := strings.ToLower(heading.title)
		if features < 0 && strings.HasPrefix(title, "features") {
			features = heading.start
		}
		if technical < 0 && strings.HasPrefix(title, "technical details") {
			technical = heading.start
		}
	}
	if features >= 0 && technical > features {
		return strings.TrimSpace(string(source[features:technical]))
	}

	before, _, _ := strings.Cut(string(source), "### Technical Details:")
	return strings.TrimSpace(before)
}

func headings(source []byte) []section {
	document := markdown.Parser().Parse(text.NewReader(source))

	var sections []section
	_ = ast.Walk(document, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := node.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if heading.Lines().Len() == 0 {
			return ast.WalkSkipChildren, nil
		}

		first := heading.Lines().At(0)
		last := heading.Lines().At(heading.Lines().Len() - 1)
		sections = append(sections, section{
			level: heading.Level,
			title: strings.TrimSpace(inlineText(heading, source)),
			start: lineStart(source, first.Start),
			body:  lineEnd(source, last.Stop),
		})
		return ast.WalkSkipChildren, nil
	})
	return sections
}

func inlineText(node ast.Node, source []byte) string {
	var builder strings.Builder
	_ = ast.Walk(node, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if textNode, ok := child.(*ast.Text); ok {
				builder.Write(textNode.Segment.Value(source))
				if textNode.SoftLineBreak() {
					builder.WriteByte(' ')
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return builder.String()
}

func lineStart(source []byte, offset int) int {
	return bytes.LastIndexByte(source[:offset], '\n') + 1
}

func lineEnd(source []byte, offset int) int {
	index := bytes.IndexByte(source[offset:], '\n')
	if index < 0 {
		return len(source)
	}
	return offset + index + 1
}
