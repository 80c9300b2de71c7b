// Package benchmark measures tokenisation, index construction, scoring and
// whole research runs over synthetic workspaces.
package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index/tokenizer"
)

var vocabulary = []string{
	"session", "token", "refresh", "expiry", "authenticate", "password",
	"handler", "request", "response", "cache", "database", "query",
	"config", "secret", "cookie", "middleware", "logger", "metrics",
}

// syntheticFile returns a source-like file of the given line count whose
// words are drawn deterministically from vocabulary.
func syntheticFile(seed, lines int) string {
	var sb strings.Builder
	for l := 0; l < lines; l++ {
		a := vocabulary[(seed+l)%len(vocabulary)]
		c := vocabulary[(seed*7+l*3)%len(vocabulary)]
		fmt.Fprintf(&sb, "func %s_%d(%s string) error { return validate(%s) }\n", a, l, c, a)
	}
	return sb.String()
}

func syntheticDocs(files, lines, sectionLines int) []index.Document {
	var docs []index.Document
	for i := 0; i < files; i++ {
		docs = append(docs, index.Sections(fmt.Sprintf("pkg/file_%04d.go", i), syntheticFile(i, lines), sectionLines)...)
	}
	return docs
}

// BenchmarkSections measures cutting a long file into 200-line documents.
func BenchmarkSections(b *testing.B) {
	content := syntheticFile(1, 5000)
	b.ReportAllocs()
	b.SetBytes(int64(len(content)))
	for i := 0; i < b.N; i++ {
		_ = index.Sections("big.go", content, 200)
	}
}

// BenchmarkBuild measures term index construction for workspaces of
// increasing size.
func BenchmarkBuild(b *testing.B) {
	tok := tokenizer.New(tokenizer.DefaultOptions())
	for _, files := range []int{10, 100, 1000} {
		docs := syntheticDocs(files, 120, 200)
		b.Run(fmt.Sprintf("files_%d", files), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = index.Build(docs, tok)
			}
		})
	}
}

// BenchmarkPostingsLookup measures concurrent read throughput on a shared
// index, which is how strategies access it.
func BenchmarkPostingsLookup(b *testing.B) {
	tok := tokenizer.New(tokenizer.DefaultOptions())
	ix := index.Build(syntheticDocs(500, 120, 200), tok)
	terms := tok.Terms("session token refresh expiry")
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_ = ix.Postings(terms[i%len(terms)])
			i++
		}
	})
}
