package migration

import "strings"

// StripComments removes line comments ("--" or "//" up to the end of the
// line) and block comments ("/*" up to the next "*/") from script text.
// Everything else, including the newline that ends a line comment, is kept
// verbatim. An unterminated block comment runs to the end of the input.
//
// A single quote outside a comment toggles literal mode, and comment
// delimiters inside a literal are ordinary characters. There is no escape
// handling: a doubled quote ('') closes and immediately reopens the literal,
// and a backslash before a quote does not prevent it from closing.
func StripComments(text string) string {
	var (
		out            strings.Builder
		inLiteral      bool
		inLineComment  bool
		inBlockComment bool
	)
	out.Grow(len(text))

	for i := 0; i < len(text); i++ {
		c := text[i]
		var next byte
		if i+1 < len(text) {
			next = text[i+1]
		}

		switch {
		case inBlockComment:
			if c == '*' && next == '/' {
				inBlockComment = false
				i++
			}
		case inLineComment:
			if c == '\n' || c == '\r' {
				inLineComment = false
				out.WriteByte(c)
			}
		case inLiteral:
			if c == '\'' {
				inLiteral = false
			}
			out.WriteByte(c)
		case c == '\'':
			inLiteral = true
			out.WriteByte(c)
		case (c == '-' && next == '-') || (c == '/' && next == '/'):
			inLineComment = true
			i++
		case c == '/' && next == '*':
			inBlockComment = true
			i++
		default:
			out.WriteByte(c)
		}
	}

	return out.String()
}

// SplitStatements splits comment-free script text on ';', trims whitespace
// and drops empty statements. The order of the file is preserved.
func SplitStatements(text string) []string {
	parts := strings.Split(text, ";")
	statements := make([]string, 0, len(parts))
	for _, part := range parts {
		stmt := strings.TrimSpace(part)
		if stmt == "" {
			continue
		}
		statements = append(statements, stmt)
	}
	return statements
}

// ParseScript strips comments from a script and splits it into statements.
func ParseScript(text string) []string {
	return SplitStatements(StripComments(text))
}
