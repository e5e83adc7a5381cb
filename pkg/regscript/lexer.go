package regscript

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// ScriptLexer tokenizes register scripts
var ScriptLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `[\s;]+`},

	// Durations before numbers so "10ms" is one token
	{Name: "Duration", Pattern: `[0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m)\b`},
	{Name: "Number", Pattern: `0[xX][0-9a-fA-F]+|0[bB][01]+|[0-9]+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
})
