package index

import (
	"fmt"
	"strings"
)

// Span is a 1-based inclusive line range inside a file.
type Span struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

func (s Span) String() string {
	return fmt.Sprintf("%d-%d", s.StartLine, s.EndLine)
}

// Contains reports whether line falls inside the span.
func (s Span) Contains(line int) bool {
	return line >= s.StartLine && line <= s.EndLine
}

// Document is an indexed unit: a whole file or one section of a long file.
// Content is never modified after the index is built.
type Document struct {
	ID      string
	Path    string
	Content string
	Length  int
	Span    Span
}

// Lines splits the content into lines. Line i of the result is file line
// Span.StartLine+i.
func (d Document) Lines() []string {
	return strings.Split(d.Content, "\n")
}

// LineNumber converts an offset into Lines() to a file line number.
func (d Document) LineNumber(i int) int {
	return d.Span.StartLine + i
}

// Sections turns one file into Documents. Files with at most sectionLines
// lines become a single Document whose ID is the path; longer files are cut
// into consecutive sections with IDs path#1, path#2, ...
func Sections(path, content string, sectionLines int) []Document {
	content = strings.TrimSuffix(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	lines := strings.Split(content, "\n")
	if sectionLines <= 0 || len(lines) <= sectionLines {
		return []Document{{
			ID:      path,
			Path:    path,
			Content: content,
			Span:    Span{StartLine: 1, EndLine: len(lines)},
		}}
	}
	docs := make([]Document, 0, len(lines)/sectionLines+1)
	for start, n := 0, 1; start < len(lines); start, n = start+sectionLines, n+1 {
		end := start + sectionLines
		if end > len(lines) {
			end = len(lines)
		}
		docs = append(docs, Document{
			ID:      fmt.Sprintf("%s#%d", path, n),
			Path:    path,
			Content: strings.Join(lines[start:end], "\n"),
			Span:    Span{StartLine: start + 1, EndLine: end},
		})
	}
	return docs
}
