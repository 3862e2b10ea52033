package graph

import (
	"context"
	"os"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	ragerr "github.com/ragmill/ragmill/internal/errors"
)

// Status classifies one symbol use against the graph.
type Status string

const (
	StatusValid     Status = "valid"
	StatusUncertain Status = "uncertain"
	StatusInvalid   Status = "invalid"
)

// Use is one checked symbol reference.
type Use struct {
	Kind   string `json:"kind"` // import, instantiation, method_call, function_call, attribute_access
	Name   string `json:"name"`
	Class  string `json:"class,omitempty"`
	Line   uint32 `json:"line"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Report is the validation outcome for one script.
type Report struct {
	ScriptPath        string  `json:"script_path"`
	Uses              []Use   `json:"uses"`
	ValidCount        int     `json:"valid_count"`
	UncertainCount    int     `json:"uncertain_count"`
	InvalidCount      int     `json:"invalid_count"`
	OverallConfidence float64 `json:"overall_confidence"`
}

// Validator checks a script's symbol uses against the parsed code graph.
type Validator struct {
	runner Runner
}

// NewValidator wires a validator against the graph.
func NewValidator(runner Runner) *Validator {
	return &Validator{runner: runner}
}

// classInfo is the graph's view of one class.
type classInfo struct {
	found      bool
	methods    map[string]bool
	attributes map[string]bool
}

// CheckScript parses the file at path and validates every detected use.
// Confidence is 1 minus the invalid fraction; an empty script scores 1.
func (v *Validator) CheckScript(ctx context.Context, path string) (*Report, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, ragerr.ValidationError("script not readable: " + path, nil)
	}
	return v.CheckSource(ctx, source, path)
}

// CheckSource validates Python source text.
func (v *Validator) CheckSource(ctx context.Context, source []byte, path string) (*Report, error) {
	parser := NewParser()
	defer parser.Close()

	tree, err := parser.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeInvalidInput, "parse script", err)
	}
	defer tree.Close()

	w := &scriptWalker{source: source, vars: map[string]string{}}
	w.walk(tree.RootNode())

	report := &Report{ScriptPath: path}
	classes := map[string]*classInfo{}
	for _, ref := range w.refs {
		use, cerr := v.classify(ctx, ref, classes)
		if cerr != nil {
			return nil, cerr
		}
		report.Uses = append(report.Uses, use)
		switch use.Status {
		case StatusValid:
			report.ValidCount++
		case StatusUncertain:
			report.UncertainCount++
		case StatusInvalid:
			report.InvalidCount++
		}
	}

	total := len(report.Uses)
	report.OverallConfidence = 1.0
	if total > 0 {
		report.OverallConfidence = 1.0 - float64(report.InvalidCount)/float64(total)
	}
	if report.OverallConfidence < 0 {
		report.OverallConfidence = 0
	}
	if report.OverallConfidence > 1 {
		report.OverallConfidence = 1
	}
	return report, nil
}

func (v *Validator) classify(ctx context.Context, ref symbolRef, cache map[string]*classInfo) (Use, error) {
	use := Use{Kind: ref.kind, Name: ref.name, Class: ref.class, Line: ref.line}

	switch ref.kind {
	case "import":
		known, err := v.moduleKnown(ctx, ref.name)
		if err != nil {
			return use, err
		}
		if known {
			use.Status = StatusValid
		} else {
			use.Status = StatusUncertain
			use.Detail = "module not in graph, possibly external"
		}

	case "instantiation":
		info, err := v.classInfo(ctx, ref.name, cache)
		if err != nil {
			return use, err
		}
		if info.found {
			use.Status = StatusValid
		} else {
			use.Status = StatusUncertain
			use.Detail = "class not in graph"
		}

	case "method_call":
		info, err := v.classInfo(ctx, ref.class, cache)
		if err != nil {
			return use, err
		}
		switch {
		case !info.found:
			use.Status = StatusUncertain
			use.Detail = "class not in graph"
		case info.methods[ref.name]:
			use.Status = StatusValid
		case len(info.methods) == 0:
			use.Status = StatusUncertain
			use.Detail = "class has no recorded methods, possibly dynamic"
		default:
			use.Status = StatusInvalid
			use.Detail = "method not found on class " + ref.class
		}

	case "attribute_access":
		info, err := v.classInfo(ctx, ref.class, cache)
		if err != nil {
			return use, err
		}
		switch {
		case !info.found:
			use.Status = StatusUncertain
			use.Detail = "class not in graph"
		case info.attributes[ref.name] || info.methods[ref.name]:
			use.Status = StatusValid
		case len(info.attributes) == 0:
			use.Status = StatusUncertain
			use.Detail = "class has no recorded attributes, possibly dynamic"
		default:
			use.Status = StatusInvalid
			use.Detail = "attribute not found on class " + ref.class
		}

	case "function_call":
		known, err := v.functionKnown(ctx, ref.name)
		if err != nil {
			return use, err
		}
		if known {
			use.Status = StatusValid
		} else {
			use.Status = StatusUncertain
			use.Detail = "function not in graph, possibly builtin or external"
		}
	}
	return use, nil
}

func (v *Validator) classInfo(ctx context.Context, name string, cache map[string]*classInfo) (*classInfo, error) {
	if info, ok := cache[name]; ok {
		return info, nil
	}
	rows, err := v.runner.Run(ctx, `
		MATCH (c:Class {name: $name})
		OPTIONAL MATCH (c)-[:HAS_METHOD]->(m:Method)
		OPTIONAL MATCH (c)-[:HAS_ATTRIBUTE]->(a:Attribute)
		RETURN collect(DISTINCT m.name) AS methods, collect(DISTINCT a.name) AS attributes`,
		map[string]any{"name": name})
	if err != nil {
		return nil, err
	}

	info := &classInfo{methods: map[string]bool{}, attributes: map[string]bool{}}
	if len(rows) > 0 {
		info.found = true
		for _, m := range anyStrings(rows[0]["methods"]) {
			info.methods[m] = true
		}
		for _, a := range anyStrings(rows[0]["attributes"]) {
			info.attributes[a] = true
		}
	}
	cache[name] = info
	return info, nil
}

func (v *Validator) moduleKnown(ctx context.Context, module string) (bool, error) {
	rows, err := v.runner.Run(ctx, `
		MATCH (f:File)
		WHERE f.module = $module OR f.module STARTS WITH $prefix
		RETURN f.path LIMIT 1`,
		map[string]any{"module": module, "prefix": module + "."})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (v *Validator) functionKnown(ctx context.Context, name string) (bool, error) {
	rows, err := v.runner.Run(ctx,
		"MATCH (fn:Function {name: $name}) RETURN fn.full_name LIMIT 1",
		map[string]any{"name": name})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// anyStrings unpacks a Cypher list value, dropping nulls.
func anyStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, it := range items {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// symbolRef is one use site found in the script.
type symbolRef struct {
	kind  string
	name  string
	class string
	line  uint32
}

// scriptWalker collects symbol uses and tracks variable-to-class bindings
// from simple `x = ClassName(...)` assignments.
type scriptWalker struct {
	source []byte
	vars   map[string]string
	refs   []symbolRef
}

func (w *scriptWalker) walk(node *sitter.Node) {
	switch node.Type() {
	case "import_statement", "import_from_statement":
		for _, name := range importNames(node, w.source) {
			w.refs = append(w.refs, symbolRef{kind: "import", name: name, line: node.StartPoint().Row + 1})
		}
	case "assignment":
		w.assignment(node)
	case "call":
		w.call(node)
		// The receiver expression is part of this use; only arguments can
		// hold further uses.
		if args := node.ChildByFieldName("arguments"); args != nil {
			w.walk(args)
		}
		return
	case "attribute":
		w.attributeAccess(node)
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.walk(node.NamedChild(i))
	}
}

// assignment records `x = ClassName(...)` bindings before the call itself is
// visited.
func (w *scriptWalker) assignment(node *sitter.Node) {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	if left == nil || right == nil || left.Type() != "identifier" || right.Type() != "call" {
		return
	}
	fn := right.ChildByFieldName("function")
	if fn != nil && fn.Type() == "identifier" && isClassName(fn.Content(w.source)) {
		w.vars[left.Content(w.source)] = fn.Content(w.source)
	}
}

func (w *scriptWalker) call(node *sitter.Node) {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return
	}
	line := node.StartPoint().Row + 1

	switch fn.Type() {
	case "identifier":
		name := fn.Content(w.source)
		if isClassName(name) {
			w.refs = append(w.refs, symbolRef{kind: "instantiation", name: name, line: line})
		} else {
			w.refs = append(w.refs, symbolRef{kind: "function_call", name: name, line: line})
		}
	case "attribute":
		obj := fn.ChildByFieldName("object")
		method := fn.ChildByFieldName("attribute")
		if obj == nil || method == nil {
			return
		}
		if class := w.receiverClass(obj); class != "" {
			w.refs = append(w.refs, symbolRef{
				kind:  "method_call",
				name:  method.Content(w.source),
				class: class,
				line:  line,
			})
		}
	}
}

// attributeAccess records `x.attr` reads outside call position.
func (w *scriptWalker) attributeAccess(node *sitter.Node) {
	obj := node.ChildByFieldName("object")
	attr := node.ChildByFieldName("attribute")
	if obj == nil || attr == nil || obj.Type() != "identifier" {
		return
	}
	class, ok := w.vars[obj.Content(w.source)]
	if !ok {
		return
	}
	w.refs = append(w.refs, symbolRef{
		kind:  "attribute_access",
		name:  attr.Content(w.source),
		class: class,
		line:  node.StartPoint().Row + 1,
	})
}

// receiverClass resolves the class a method call targets: a bound variable,
// or a direct `ClassName()` receiver.
func (w *scriptWalker) receiverClass(obj *sitter.Node) string {
	switch obj.Type() {
	case "identifier":
		name := obj.Content(w.source)
		if class, ok := w.vars[name]; ok {
			return class
		}
		if isClassName(name) {
			return name
		}
	case "call":
		fn := obj.ChildByFieldName("function")
		if fn != nil && fn.Type() == "identifier" && isClassName(fn.Content(w.source)) {
			return fn.Content(w.source)
		}
	}
	return ""
}

// isClassName applies the Python convention: capitalized identifier.
func isClassName(name string) bool {
	if name == "" {
		return false
	}
	r := []rune(name)[0]
	return unicode.IsUpper(r) && !strings.Contains(name, "_")
}
