// Package docparse converts raw file bytes into indexable text. Plain text,
// source code and markup pass through unchanged, HTML is reduced to its
// visible text, and binary document formats are rejected with
// ErrUnsupportedFormat so callers can skip them.
package docparse

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/errors"
	"golang.org/x/net/html"
)

const binarySniffLen = 1024

var unsupported = map[string]struct{}{
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {},
	".ppt": {}, ".pptx": {}, ".odt": {}, ".ods": {}, ".epub": {},
	".zip": {}, ".gz": {}, ".tar": {}, ".jar": {}, ".exe": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".ico": {},
	".so": {}, ".dylib": {}, ".dll": {}, ".class": {}, ".pyc": {},
}

// Parse returns the text content of a file. path is only used for its
// extension.
func Parse(path string, raw []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := unsupported[ext]; ok {
		return "", fmt.Errorf("%s: %w (%s)", path, apperrors.ErrUnsupportedFormat, ext)
	}
	if IsBinary(raw) {
		return "", fmt.Errorf("%s: %w (binary content)", path, apperrors.ErrUnsupportedFormat)
	}
	switch ext {
	case ".html", ".htm", ".xhtml":
		return htmlText(raw)
	default:
		return strings.ToValidUTF8(string(raw), ""), nil
	}
}

// IsBinary reports whether the first KiB of raw contains a NUL byte.
func IsBinary(raw []byte) bool {
	head := raw
	if len(head) > binarySniffLen {
		head = head[:binarySniffLen]
	}
	return bytes.IndexByte(head, 0) >= 0
}

// Supported reports whether path has an extension Parse can handle.
func Supported(path string) bool {
	_, ok := unsupported[strings.ToLower(filepath.Ext(path))]
	return !ok
}

func htmlText(raw []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	var lines []string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				lines = append(lines, text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return strings.Join(lines, "\n"), nil
}
