package processors

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/dmitrijs2005/datawallet/internal/common"
)

//go:embed schema.cue
var schemaSource []byte

// schema holds the compiled payload definitions. A cue.Context must not be
// used concurrently, so validation is serialized.
type schema struct {
	mu   sync.Mutex
	ctx  *cue.Context
	defs map[EventType]cue.Value
}

var loadSchema = sync.OnceValues(func() (*schema, error) {
	cctx := cuecontext.New()
	root := cctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile event schema: %w", err)
	}

	s := &schema{ctx: cctx, defs: make(map[EventType]cue.Value, len(eventTypes))}
	for _, t := range eventTypes {
		def := root.LookupPath(cue.ParsePath("#" + string(t)))
		if !def.Exists() {
			return nil, fmt.Errorf("event schema has no definition for %s", t)
		}
		s.defs[t] = def
	}
	return s, nil
})

// validate checks raw against the definition of t.
func (s *schema) validate(t EventType, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.defs[t]
	if !ok {
		return fmt.Errorf("%s: %w", t, common.ErrUnknownEventType)
	}
	expr, err := cuejson.Extract(string(t), raw)
	if err != nil {
		return fmt.Errorf("%s payload is not JSON: %w: %v", t, common.ErrValidation, err)
	}
	v := s.ctx.BuildExpr(expr)
	if err := v.Err(); err != nil {
		return fmt.Errorf("%s payload: %w: %v", t, common.ErrValidation, err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s payload: %w: %v", t, common.ErrValidation, err)
	}
	return nil
}
