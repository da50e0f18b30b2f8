package legacy

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

var selector = regexp.MustCompile(`^name\s*==\s*["']([^"']*)["']$`)

var (
	plcParams            = []string{"plc", "timeout", "htype", "jdist", "post", "ctype", "allow_debug"}
	addMotorParams       = []string{"axis", "group", "htype", "jdist", "jdist_overrides", "post", "enc_axes", "ms"}
	configureGroupParams = []string{"group", "checks", "pre", "post"}
)

// script is a parsed v1 generator. Each `if name == "..."` branch builds the
// PLC of one target.
type script struct {
	src      []byte
	tree     *sitter.Tree
	globals  map[string]any
	branches map[string]*sitter.Node
	logger   zerolog.Logger
}

func parseScript(ctx context.Context, src []byte, logger zerolog.Logger) (*script, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	s := &script{
		src:      src,
		tree:     tree,
		globals:  baseEnv(),
		branches: make(map[string]*sitter.Node),
		logger:   logger,
	}
	root := tree.RootNode()
	if root.HasError() {
		logger.Warn().Msg("script contains syntax errors, conversion may be incomplete")
	}
	s.collect(root)
	return s, nil
}

func (s *script) close() {
	if s.tree != nil {
		s.tree.Close()
	}
}

// collect binds module level constants and finds the branch selectors.
func (s *script) collect(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "if_statement":
			s.ifChain(child)
		case "expression_statement":
			in := s.interpreter(s.globals)
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if stmt := child.NamedChild(j); stmt.Type() == "assignment" {
					in.assign(stmt)
				}
			}
		}
	}
}

func (s *script) ifChain(n *sitter.Node) {
	s.branch(n.ChildByFieldName("condition"), n.ChildByFieldName("consequence"))
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "elif_clause" {
			s.branch(child.ChildByFieldName("condition"), child.ChildByFieldName("consequence"))
		}
	}
}

func (s *script) branch(condition, body *sitter.Node) {
	if condition == nil || body == nil {
		return
	}
	m := selector.FindStringSubmatch(strings.TrimSpace(condition.Content(s.src)))
	if m == nil {
		s.collect(body)
		return
	}
	if _, exists := s.branches[m[1]]; exists {
		s.logger.Warn().Str("name", m[1]).Msg("duplicate branch, using the first")
		return
	}
	s.branches[m[1]] = body
}

func (s *script) interpreter(env map[string]any) *interpreter {
	return &interpreter{
		src:     s.src,
		env:     env,
		objects: make(map[string]*legacyPlc),
		logger:  s.logger,
	}
}

// run executes the branch for name and returns the PLC it populates.
func (s *script) run(name string) (*legacyPlc, error) {
	body, ok := s.branches[name]
	if !ok {
		return nil, fmt.Errorf("script has no branch for %q", name)
	}
	env := make(map[string]any, len(s.globals)+1)
	for k, v := range s.globals {
		env[k] = v
	}
	env["name"] = name

	in := s.interpreter(env)
	if err := in.block(body); err != nil {
		return nil, err
	}
	var populated []*legacyPlc
	for _, p := range in.created {
		if len(p.groups) > 0 {
			populated = append(populated, p)
		}
	}
	switch len(populated) {
	case 0:
		return nil, fmt.Errorf("branch %q adds no motors", name)
	case 1:
		return populated[0], nil
	default:
		return nil, fmt.Errorf("branch %q populates %d PLCs", name, len(populated))
	}
}

type interpreter struct {
	src     []byte
	env     map[string]any
	objects map[string]*legacyPlc
	created []*legacyPlc
	logger  zerolog.Logger
}

func (in *interpreter) block(n *sitter.Node) error {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if err := in.statement(n.NamedChild(i)); err != nil {
			return err
		}
	}
	return nil
}

func (in *interpreter) statement(n *sitter.Node) error {
	switch n.Type() {
	case "expression_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			switch child.Type() {
			case "assignment":
				if err := in.assign(child); err != nil {
					return err
				}
			case "call":
				if _, err := in.call(child); err != nil {
					return err
				}
			}
		}
	case "for_statement":
		return in.loop(n)
	case "comment", "pass_statement", "import_statement", "import_from_statement":
	default:
		in.logger.Debug().Str("statement", n.Type()).Int("line", line(n)).Msg("statement ignored")
	}
	return nil
}

// assign binds a name. Values that cannot be evaluated leave the name
// unbound; using it later reports the error.
func (in *interpreter) assign(n *sitter.Node) error {
	left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
	if left == nil || right == nil || left.Type() != "identifier" {
		return nil
	}
	name := left.Content(in.src)
	delete(in.objects, name)
	delete(in.env, name)
	if right.Type() == "call" {
		plc, err := in.call(right)
		if err != nil {
			return err
		}
		if plc != nil {
			in.objects[name] = plc
			return nil
		}
	}
	value, err := in.eval(right)
	if err != nil {
		in.logger.Debug().Err(err).Str("name", name).Msg("assignment not evaluated")
		return nil
	}
	in.env[name] = value
	return nil
}

// call interprets PLC(...) and the methods of PLC objects. It returns the
// PLC created by a constructor call.
func (in *interpreter) call(n *sitter.Node) (*legacyPlc, error) {
	fn, args := n.ChildByFieldName("function"), n.ChildByFieldName("arguments")
	if fn == nil || args == nil {
		return nil, nil
	}
	switch fn.Type() {
	case "identifier":
		if fn.Content(in.src) != "PLC" {
			return nil, nil
		}
		values, err := in.bind(plcParams, args, "plc", "allow_debug")
		if err != nil {
			return nil, err
		}
		plc, err := newLegacyPlc(values, line(n))
		if err != nil {
			return nil, err
		}
		in.created = append(in.created, plc)
		return plc, nil
	case "attribute":
		object := fn.ChildByFieldName("object")
		method := fn.ChildByFieldName("attribute")
		if object == nil || method == nil {
			return nil, nil
		}
		plc, ok := in.objects[object.Content(in.src)]
		if !ok {
			return nil, nil
		}
		switch name := method.Content(in.src); name {
		case "add_motor":
			values, err := in.bind(addMotorParams, args, "jdist_overrides", "enc_axes", "ms")
			if err != nil {
				return nil, err
			}
			return nil, plc.addMotor(values, in.logger)
		case "configure_group":
			values, err := in.bind(configureGroupParams, args, "checks")
			if err != nil {
				return nil, err
			}
			return nil, plc.configureGroup(values)
		case "write", "writeFile":
		default:
			in.logger.Warn().Str("method", name).Int("line", line(n)).Msg("unsupported PLC method ignored")
		}
	}
	return nil, nil
}

func (in *interpreter) loop(n *sitter.Node) error {
	left, right, body := n.ChildByFieldName("left"), n.ChildByFieldName("right"), n.ChildByFieldName("body")
	if left == nil || right == nil || body == nil {
		return nil
	}
	if left.Type() != "identifier" {
		return fmt.Errorf("line %d: only simple loop variables are supported", line(n))
	}
	values, err := in.iterable(right)
	if err != nil {
		return err
	}
	name := left.Content(in.src)
	for _, v := range values {
		in.env[name] = v
		if err := in.block(body); err != nil {
			return err
		}
	}
	return nil
}

func (in *interpreter) iterable(n *sitter.Node) ([]any, error) {
	if n.Type() == "call" {
		if fn := n.ChildByFieldName("function"); fn != nil && fn.Content(in.src) == "range" {
			return in.rangeValues(n)
		}
	}
	value, err := in.eval(n)
	if err != nil {
		return nil, err
	}
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("line %d: cannot iterate over %T", line(n), value)
	}
	return items, nil
}

func (in *interpreter) rangeValues(n *sitter.Node) ([]any, error) {
	args := n.ChildByFieldName("arguments")
	var bounds []int
	for i := 0; args != nil && i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg.Type() == "comment" {
			continue
		}
		v, err := in.eval(arg)
		if err != nil {
			return nil, err
		}
		b, err := toInt(v)
		if err != nil {
			return nil, fmt.Errorf("line %d: range: %w", line(n), err)
		}
		bounds = append(bounds, b)
	}
	start, stop, step := 0, 0, 1
	switch len(bounds) {
	case 1:
		stop = bounds[0]
	case 2:
		start, stop = bounds[0], bounds[1]
	case 3:
		start, stop, step = bounds[0], bounds[1], bounds[2]
	default:
		return nil, fmt.Errorf("line %d: range takes 1 to 3 arguments", line(n))
	}
	if step == 0 {
		return nil, fmt.Errorf("line %d: range step must not be zero", line(n))
	}
	var values []any
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		values = append(values, i)
	}
	return values, nil
}

// bind maps call arguments onto params. Arguments named in skip are
// accepted without being evaluated.
func (in *interpreter) bind(params []string, args *sitter.Node, skip ...string) (map[string]any, error) {
	values := make(map[string]any)
	ignored := func(name string) bool {
		for _, s := range skip {
			if s == name {
				return true
			}
		}
		return false
	}
	set := func(name string, node *sitter.Node) error {
		if _, dup := values[name]; dup {
			return fmt.Errorf("line %d: argument %s given twice", line(node), name)
		}
		if ignored(name) {
			values[name] = nil
			return nil
		}
		v, err := in.eval(node)
		if err != nil {
			return err
		}
		values[name] = v
		return nil
	}
	position := 0
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		switch arg.Type() {
		case "comment":
		case "keyword_argument":
			name := arg.ChildByFieldName("name").Content(in.src)
			known := false
			for _, p := range params {
				known = known || p == name
			}
			if !known {
				return nil, fmt.Errorf("line %d: unknown argument %s", line(arg), name)
			}
			if err := set(name, arg.ChildByFieldName("value")); err != nil {
				return nil, err
			}
		case "list_splat", "dictionary_splat":
			return nil, fmt.Errorf("line %d: argument unpacking is not supported", line(arg))
		default:
			if position >= len(params) {
				return nil, fmt.Errorf("line %d: too many arguments", line(arg))
			}
			if err := set(params[position], arg); err != nil {
				return nil, err
			}
			position++
		}
	}
	return values, nil
}

func (in *interpreter) eval(n *sitter.Node) (any, error) {
	source := n.Content(in.src)
	v, err := evaluate(source, in.env)
	if err != nil {
		return nil, fmt.Errorf("line %d: cannot evaluate %q: %w", line(n), source, err)
	}
	return v, nil
}

func line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}
