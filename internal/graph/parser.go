package graph

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	ragerr "github.com/ragmill/ragmill/internal/errors"
)

// FileInfo is the extracted structure of one Python source file.
type FileInfo struct {
	Path      string
	Module    string
	Imports   []string
	Classes   []Class
	Functions []Function
}

// Class is a class definition with its members. FullName is module-qualified
// and is the graph upsert key.
type Class struct {
	Name       string
	FullName   string
	Methods    []Function
	Attributes []Attribute
}

// Function covers both top-level functions and methods.
type Function struct {
	Name       string
	FullName   string
	Params     []string
	ReturnType string
}

// Attribute is an instance or class attribute.
type Attribute struct {
	Name string
	Type string
}

// Parser extracts structure from Python sources.
type Parser struct {
	parser *sitter.Parser
}

// NewParser builds a Python parser. Not safe for concurrent use; create one
// per worker.
func NewParser() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Parser{parser: p}
}

// Close releases the underlying parser.
func (p *Parser) Close() {
	p.parser.Close()
}

// ParseFile reads and parses one file. module is derived from the path
// relative to root.
func (p *Parser) ParseFile(ctx context.Context, root, path string) (*FileInfo, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeInvalidInput, "read source file", err)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	info, err := p.ParseSource(ctx, source, moduleName(rel))
	if err != nil {
		return nil, err
	}
	info.Path = rel
	return info, nil
}

// ParseSource parses Python source text under the given module name.
func (p *Parser) ParseSource(ctx context.Context, source []byte, module string) (*FileInfo, error) {
	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeInvalidInput, "parse source", err)
	}
	defer tree.Close()

	info := &FileInfo{Module: module}
	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		p.topLevel(root.NamedChild(i), source, info)
	}
	return info, nil
}

func (p *Parser) topLevel(node *sitter.Node, source []byte, info *FileInfo) {
	switch node.Type() {
	case "import_statement", "import_from_statement":
		info.Imports = append(info.Imports, importNames(node, source)...)
	case "class_definition":
		info.Classes = append(info.Classes, p.class(node, source, info.Module))
	case "function_definition":
		info.Functions = append(info.Functions, p.function(node, source, info.Module))
	case "decorated_definition":
		if def := node.ChildByFieldName("definition"); def != nil {
			p.topLevel(def, source, info)
		}
	}
}

// importNames collects the imported module names, ignoring aliases.
func importNames(node *sitter.Node, source []byte) []string {
	var names []string
	if node.Type() == "import_from_statement" {
		if mod := node.ChildByFieldName("module_name"); mod != nil {
			names = append(names, mod.Content(source))
		}
		return names
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			names = append(names, child.Content(source))
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				names = append(names, name.Content(source))
			}
		}
	}
	return names
}

func (p *Parser) class(node *sitter.Node, source []byte, module string) Class {
	c := Class{}
	if name := node.ChildByFieldName("name"); name != nil {
		c.Name = name.Content(source)
	}
	c.FullName = qualify(module, c.Name)

	body := node.ChildByFieldName("body")
	if body == nil {
		return c
	}
	seen := map[string]bool{}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		if member.Type() == "decorated_definition" {
			if def := member.ChildByFieldName("definition"); def != nil {
				member = def
			}
		}
		switch member.Type() {
		case "function_definition":
			m := p.function(member, source, c.FullName)
			c.Methods = append(c.Methods, m)
			p.selfAttributes(member, source, &c, seen)
		case "expression_statement":
			// Class-level annotated assignment: name: Type = value.
			if attr, ok := classAttribute(member, source); ok && !seen[attr.Name] {
				seen[attr.Name] = true
				c.Attributes = append(c.Attributes, attr)
			}
		}
	}
	return c
}

func (p *Parser) function(node *sitter.Node, source []byte, owner string) Function {
	f := Function{}
	if name := node.ChildByFieldName("name"); name != nil {
		f.Name = name.Content(source)
	}
	f.FullName = qualify(owner, f.Name)
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		f.ReturnType = ret.Content(source)
	}

	params := node.ChildByFieldName("parameters")
	if params == nil {
		return f
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		param := params.NamedChild(i)
		switch param.Type() {
		case "identifier":
			f.Params = append(f.Params, param.Content(source))
		case "typed_parameter", "list_splat_pattern", "dictionary_splat_pattern":
			if len(param.Content(source)) > 0 {
				f.Params = append(f.Params, firstIdentifier(param, source))
			}
		case "default_parameter", "typed_default_parameter":
			if name := param.ChildByFieldName("name"); name != nil {
				f.Params = append(f.Params, name.Content(source))
			}
		}
	}
	return f
}

// selfAttributes walks a method body for `self.x = ...` assignments.
func (p *Parser) selfAttributes(method *sitter.Node, source []byte, c *Class, seen map[string]bool) {
	body := method.ChildByFieldName("body")
	if body == nil {
		return
	}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "assignment" {
			if attr, ok := selfAssignment(n, source); ok && !seen[attr.Name] {
				seen[attr.Name] = true
				c.Attributes = append(c.Attributes, attr)
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(body)
}

func selfAssignment(assign *sitter.Node, source []byte) (Attribute, bool) {
	left := assign.ChildByFieldName("left")
	if left == nil || left.Type() != "attribute" {
		return Attribute{}, false
	}
	obj := left.ChildByFieldName("object")
	name := left.ChildByFieldName("attribute")
	if obj == nil || name == nil || obj.Content(source) != "self" {
		return Attribute{}, false
	}
	attr := Attribute{Name: name.Content(source)}
	if typ := assign.ChildByFieldName("type"); typ != nil {
		attr.Type = typ.Content(source)
	}
	return attr, true
}

func classAttribute(stmt *sitter.Node, source []byte) (Attribute, bool) {
	if stmt.NamedChildCount() == 0 {
		return Attribute{}, false
	}
	assign := stmt.NamedChild(0)
	if assign.Type() != "assignment" {
		return Attribute{}, false
	}
	left := assign.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return Attribute{}, false
	}
	attr := Attribute{Name: left.Content(source)}
	if typ := assign.ChildByFieldName("type"); typ != nil {
		attr.Type = typ.Content(source)
	}
	return attr, true
}

func firstIdentifier(node *sitter.Node, source []byte) string {
	if node.Type() == "identifier" {
		return node.Content(source)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if id := firstIdentifier(node.NamedChild(i), source); id != "" {
			return id
		}
	}
	return ""
}

func qualify(owner, name string) string {
	if owner == "" {
		return name
	}
	return owner + "." + name
}

// moduleName maps a relative path onto a dotted module name.
func moduleName(rel string) string {
	rel = strings.TrimSuffix(filepath.ToSlash(rel), ".py")
	rel = strings.TrimSuffix(rel, "/__init__")
	return strings.ReplaceAll(rel, "/", ".")
}
