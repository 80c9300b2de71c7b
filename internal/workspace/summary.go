package workspace

import (
	"encoding/binary"
	"path"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var codeExtensions = map[string]struct{}{
	".go": {}, ".py": {}, ".js": {}, ".jsx": {}, ".ts": {}, ".tsx": {},
	".java": {}, ".kt": {}, ".rs": {}, ".rb": {}, ".php": {}, ".c": {},
	".h": {}, ".cc": {}, ".cpp": {}, ".hpp": {}, ".cs": {}, ".swift": {},
	".scala": {}, ".sh": {}, ".lua": {}, ".sql": {},
}

var configExtensions = map[string]struct{}{
	".yaml": {}, ".yml": {}, ".json": {}, ".toml": {}, ".ini": {},
	".env": {}, ".conf": {}, ".cfg": {}, ".properties": {},
}

// ConfigPatterns select configuration files by glob.
var ConfigPatterns = []string{
	"**/*.{yaml,yml,json,toml,ini,env,conf,cfg,properties}",
	"**/.env*",
	"**/Dockerfile",
	"**/Makefile",
}

// Summary is what the strategy selector knows about a workspace.
type Summary struct {
	Files       int            `json:"files"`
	CodeFiles   int            `json:"code_files"`
	ConfigFiles int            `json:"config_files"`
	OtherFiles  int            `json:"other_files"`
	Extensions  map[string]int `json:"extensions"`
}

func Summarize(files []FileInfo) Summary {
	s := Summary{Files: len(files), Extensions: make(map[string]int)}
	for _, f := range files {
		ext := strings.ToLower(path.Ext(f.Path))
		if ext != "" {
			s.Extensions[ext]++
		}
		switch {
		case IsConfigFile(f.Path):
			s.ConfigFiles++
		case IsCodeFile(f.Path):
			s.CodeFiles++
		default:
			s.OtherFiles++
		}
	}
	return s
}

func IsCodeFile(p string) bool {
	_, ok := codeExtensions[strings.ToLower(path.Ext(p))]
	return ok
}

func IsConfigFile(p string) bool {
	if _, ok := configExtensions[strings.ToLower(path.Ext(p))]; ok {
		return true
	}
	return MatchAny(ConfigPatterns, p)
}

// Fingerprint hashes the path, size and modification time of every file plus
// salt. Any change to the file set or to a file produces a new value.
func Fingerprint(files []FileInfo, salt string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(salt)
	var buf [8]byte
	for _, f := range files {
		_, _ = h.WriteString(f.Path)
		_, _ = h.Write([]byte{0})
		binary.LittleEndian.PutUint64(buf[:], uint64(f.Size))
		_, _ = h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(f.ModTime.UnixNano()))
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}
