package regscript

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/participle/v2"
)

var scriptParser = participle.MustBuild[Script](
	participle.Lexer(ScriptLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.CaseInsensitive("Ident"),
	participle.UseLookahead(2),
)

// Parse parses a script from r. name is used in error positions.
func Parse(name string, r io.Reader) (*Script, error) {
	s, err := scriptParser.Parse(name, r)
	if err != nil {
		return nil, fmt.Errorf("regscript: %w", err)
	}
	return s, nil
}

// ParseString parses a script held in memory
func ParseString(name, src string) (*Script, error) {
	s, err := scriptParser.ParseString(name, src)
	if err != nil {
		return nil, fmt.Errorf("regscript: %w", err)
	}
	return s, nil
}

// ParseFile parses the script at path
func ParseFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("regscript: %w", err)
	}
	defer f.Close()
	return Parse(path, f)
}
