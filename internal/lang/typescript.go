package lang

import (
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// TypeScript is the grammar used for every .ts file the patcher touches.
var TypeScript = &Language{
	Name:       "typescript",
	Extensions: []string{".ts"},
	lang:       typescript.GetLanguage(),
}

func init() {
	Languages["typescript"] = TypeScript
}
