package targets

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path"
	"regexp"
	"strings"
)

// language holds what the extractor needs to know about one source language.
type language struct {
	// definitions returns patterns matching the start of a definition of name.
	definitions func(name string) []*regexp.Regexp
	// leading lists line prefixes that belong to the definition that follows
	// them, such as doc comments, attributes and decorators.
	leading []string
	// quotes are the string delimiters skipped while matching braces.
	quotes string
	// chars marks languages with single-quoted character literals.
	chars bool
	// indented marks languages whose bodies end by indentation, not braces.
	indented bool
}

var languages = map[string]*language{
	".rs": {
		definitions: func(name string) []*regexp.Regexp {
			return []*regexp.Regexp{
				regexp.MustCompile(`(?m)^[ \t]*(pub(\([^)]*\))?\s+)?(const\s+)?(async\s+)?(unsafe\s+)?(extern\s+"[^"]*"\s+)?fn\s+` + regexp.QuoteMeta(name) + `\s*[<(]`),
			}
		},
		leading: []string{"///", "//!", "#[", "#!["},
		quotes:  `"`,
		chars:   true,
	},
	".py": {
		definitions: func(name string) []*regexp.Regexp {
			return []*regexp.Regexp{
				regexp.MustCompile(`(?m)^[ \t]*(async\s+)?def\s+` + regexp.QuoteMeta(name) + `\s*\(`),
			}
		},
		leading:  []string{"@"},
		indented: true,
	},
	".js":  jsLanguage,
	".jsx": jsLanguage,
	".mjs": jsLanguage,
	".cjs": jsLanguage,
	".ts":  jsLanguage,
	".tsx": jsLanguage,
	".go": {
		definitions: func(name string) []*regexp.Regexp {
			return []*regexp.Regexp{
				regexp.MustCompile(`(?m)^func\s+(\([^)]*\)\s*)?` + regexp.QuoteMeta(name) + `\s*[\[(]`),
			}
		},
		leading: []string{"//"},
		quotes:  "\"`",
		chars:   true,
	},
}

var jsLanguage = &language{
	definitions: func(name string) []*regexp.Regexp {
		n := regexp.QuoteMeta(name)
		return []*regexp.Regexp{
			regexp.MustCompile(`(?m)^[ \t]*(export\s+)?(default\s+)?(async\s+)?function\s*\*?\s*` + n + `\s*[<(]`),
			regexp.MustCompile(`(?m)^[ \t]*(export\s+)?(const|let|var)\s+` + n + `\s*(:[^=]+)?=\s*(async\s+)?(function\b|\(|[A-Za-z_$][\w$]*\s*=>)`),
			regexp.MustCompile(`(?m)^[ \t]*((public|private|protected|static|async|override|get|set)\s+)*` + n + `\s*(<[^>]*>)?\([^;{}]*\)\s*(:\s*[^{;=]+)?\{`),
		}
	},
	leading: []string{"@", "/**", "*", "//"},
	quotes:  "\"'`",
}

// IsSourceFile reports whether functions can be extracted from the file name.
func IsSourceFile(name string) bool {
	_, ok := languages[strings.ToLower(path.Ext(name))]
	return ok
}

// ExtractFunction returns the source of the definition of function name in
// content, including its leading doc comments and attributes. The language
// is chosen from filename.
func ExtractFunction(content, name, filename string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	ext := strings.ToLower(path.Ext(filename))
	lang, ok := languages[ext]
	if !ok {
		return "", false
	}

	if ext == ".go" {
		if src, ok := extractGoFunction(content, name); ok {
			return src, true
		}
	}

	for _, re := range lang.definitions(name) {
		for _, loc := range re.FindAllStringIndex(content, -1) {
			start := lineStart(content, loc[0])
			var end int
			if lang.indented {
				end = indentedBlockEnd(content, start)
			} else {
				open := strings.IndexByte(content[loc[1]-1:], '{')
				if open < 0 {
					continue
				}
				end = matchBrace(content, loc[1]-1+open, lang)
				if end < 0 {
					continue
				}
			}
			start = includeLeading(content, start, lang.leading)
			return content[start:end], true
		}
	}
	return "", false
}

// extractGoFunction finds a function or method with go/parser. Methods match
// either by bare name or as Recv.Name.
func extractGoFunction(content, name string) (string, bool) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", content, parser.ParseComments)
	if err != nil {
		return "", false
	}

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || !goNameMatches(fn, name) {
			continue
		}
		start := fn.Pos()
		if fn.Doc != nil {
			start = fn.Doc.Pos()
		}
		from, to := fset.Position(start).Offset, fset.Position(fn.End()).Offset
		if from < 0 || to > len(content) || from >= to {
			return "", false
		}
		return content[from:to], true
	}
	return "", false
}

func goNameMatches(fn *ast.FuncDecl, name string) bool {
	if fn.Name.Name == name {
		return true
	}
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return false
	}
	recv := fn.Recv.List[0].Type
	for {
		switch t := recv.(type) {
		case *ast.StarExpr:
			recv = t.X
			continue
		case *ast.IndexExpr:
			recv = t.X
			continue
		case *ast.IndexListExpr:
			recv = t.X
			continue
		case *ast.Ident:
			return t.Name+"."+fn.Name.Name == name
		}
		return false
	}
}

func lineStart(s string, i int) int {
	return strings.LastIndexByte(s[:i], '\n') + 1
}

// includeLeading moves start back over the lines directly above it that
// begin with one of prefixes.
func includeLeading(s string, start int, prefixes []string) int {
	for start > 0 {
		prev := lineStart(s, start-1)
		line := strings.TrimSpace(s[prev : start-1])
		if !hasAnyPrefix(line, prefixes) {
			break
		}
		start = prev
	}
	return start
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// matchBrace returns the offset just past the brace closing the one at open,
// or -1. String literals and comments are skipped.
func matchBrace(s string, open int, lang *language) int {
	depth := 0
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			nl := strings.IndexByte(s[i:], '\n')
			if nl < 0 {
				return -1
			}
			i += nl
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return -1
			}
			i += end + 3
		case strings.IndexByte(lang.quotes, c) >= 0:
			i = skipString(s, i)
			if i < 0 {
				return -1
			}
		case c == '\'' && lang.chars:
			i = skipCharLiteral(s, i)
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// skipString returns the offset of the quote closing the literal opened at i.
func skipString(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			if q != '`' {
				j++
			}
		case q:
			return j
		}
	}
	return -1
}

// skipCharLiteral skips a literal such as '{' or '\n' and leaves Rust
// lifetimes such as 'a alone.
func skipCharLiteral(s string, i int) int {
	switch {
	case i+2 < len(s) && s[i+1] != '\\' && s[i+2] == '\'':
		return i + 2
	case i+3 < len(s) && s[i+1] == '\\':
		if end := strings.IndexByte(s[i+2:], '\''); end >= 0 && end < 10 {
			return i + 2 + end
		}
	}
	return i
}

// indentedBlockEnd returns the end of the block whose header line starts at
// start: the first later non-blank line indented no deeper than the header.
func indentedBlockEnd(s string, start int) int {
	header := s[start:]
	if nl := strings.IndexByte(header, '\n'); nl >= 0 {
		header = header[:nl]
	}
	base := indentOf(header)

	pos := start + len(header)
	end := pos
	for pos < len(s) {
		pos++ // newline
		next := strings.IndexByte(s[pos:], '\n')
		line := s[pos:]
		if next >= 0 {
			line = s[pos : pos+next]
		}
		if strings.TrimSpace(line) != "" {
			if indentOf(line) <= base {
				break
			}
			end = pos + len(line)
		}
		pos += len(line)
	}
	if end < len(s) && s[end] == '\n' {
		end++
	}
	return end
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}
