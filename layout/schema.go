package layout

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// schema.cue names every section and key the decoders rely on.
//
//go:embed schema.cue
var schemaSrc string

// cue.Context is not safe for concurrent use; mu serializes every use of ctx
// and of values built from it.
type validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

var getValidator = sync.OnceValues(func() (*validator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString("close({"+schemaSrc+"})", cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, err
	}
	return &validator{ctx: ctx, schema: schema}, nil
})

// validate unifies a decoded layout document with the schema and returns one
// line per violation. Missing keys surface as incomplete values.
func validate(doc map[string]any) ([]string, error) {
	v, err := getValidator()
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	value := v.ctx.Encode(doc)
	if err := value.Err(); err != nil {
		return nil, err
	}

	err = v.schema.Unify(value).Validate(cue.Concrete(true))
	if err == nil {
		return nil, nil
	}

	var problems []string
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		problems = append(problems, fmt.Sprintf("%s: %s", strings.Join(e.Path(), "."), fmt.Sprintf(format, args...)))
	}
	return problems, nil
}
