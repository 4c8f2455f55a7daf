// Package gen runs the class generation pipeline: resolve hierarchy facts,
// encode each definition into a binary class module, optionally dump and
// verify the modules, define them in a loader, and run their initializers.
package gen

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/deepnoodle-ai/anvil/classfile"
	"github.com/deepnoodle-ai/anvil/dis"
	"github.com/deepnoodle-ai/anvil/hierarchy"
	"github.com/deepnoodle-ai/anvil/ir"
	"github.com/deepnoodle-ai/anvil/runtime"
)

// CompilationError reports a definition that could not be turned into a
// well-formed class module. It carries the textified form of the failing
// class so the caller can see what was being emitted.
type CompilationError struct {
	Class       string
	Disassembly string
	Err         error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("compiling class %s: %v\n%s", e.Class, e.Err, e.Disassembly)
}

func (e *CompilationError) Unwrap() error { return e.Err }

// Generator drives the generation pipeline against one loader.
type Generator struct {
	loader  *runtime.DynamicLoader
	verify  bool
	dumpTo  io.Writer
	dumpDir string
	logger  zerolog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithVerify controls whether encoded modules are verified before loading.
// Verification is on by default.
func WithVerify(enabled bool) Option {
	return func(g *Generator) { g.verify = enabled }
}

// WithDumpWriter writes a disassembly of every generated module to w.
func WithDumpWriter(w io.Writer) Option {
	return func(g *Generator) { g.dumpTo = w }
}

// WithDumpDir writes the raw bytes of every generated module into dir, one
// file per class.
func WithDumpDir(dir string) Option {
	return func(g *Generator) { g.dumpDir = dir }
}

// WithLogger sets the pipeline logger. Logging is off by default.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Generator) { g.logger = logger }
}

// NewGenerator creates a generator defining classes through the given
// loader.
func NewGenerator(loader *runtime.DynamicLoader, opts ...Option) *Generator {
	g := &Generator{
		loader: loader,
		verify: true,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// DefineClasses runs the pipeline over a batch of definitions. Classes in
// the batch may reference each other freely. On success every class is
// defined and initialized, in batch order.
func (g *Generator) DefineClasses(defs []*ir.ClassDefinition) ([]*runtime.Class, error) {
	batch, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	logger := g.logger.With().Str("batch", batch.String()).Logger()
	logger.Debug().Int("classes", len(defs)).Msg("generating class batch")

	resolver := hierarchy.NewResolver(defs,
		hierarchy.WithLoadedClasses(g.loader.Registry()))

	modules := make([][]byte, len(defs))
	for i, def := range defs {
		data, err := classfile.Encode(def)
		if err != nil {
			logger.Debug().Str("class", def.Name()).Err(err).Msg("encoding failed")
			return nil, &CompilationError{
				Class:       def.Name(),
				Disassembly: ir.TextifyClass(def),
				Err:         err,
			}
		}
		logger.Debug().Str("class", def.Name()).Int("bytes", len(data)).Msg("encoded class module")
		modules[i] = data
	}

	if err := g.dump(defs, modules); err != nil {
		return nil, err
	}

	if g.verify {
		var result *multierror.Error
		for i, data := range modules {
			if err := classfile.Verify(data, resolver); err != nil {
				logger.Debug().Str("class", defs[i].Name()).Err(err).Msg("verification failed")
				result = multierror.Append(result, &CompilationError{
					Class:       defs[i].Name(),
					Disassembly: ir.TextifyClass(defs[i]),
					Err:         err,
				})
			}
		}
		if err := result.ErrorOrNil(); err != nil {
			return nil, err
		}
		logger.Debug().Msg("batch verified")
	}

	classes, err := g.loader.DefineClasses(modules)
	if err != nil {
		return nil, err
	}
	for _, c := range classes {
		if err := c.Initialize(); err != nil {
			return nil, err
		}
	}
	logger.Debug().Int("classes", len(classes)).Msg("batch defined and initialized")
	return classes, nil
}

// DefineClass runs the pipeline for a single definition.
func (g *Generator) DefineClass(def *ir.ClassDefinition) (*runtime.Class, error) {
	classes, err := g.DefineClasses([]*ir.ClassDefinition{def})
	if err != nil {
		return nil, err
	}
	return classes[0], nil
}

// DefineHiddenClass encodes, verifies, and defines a definition as a hidden
// class with the given class data attached. The class is initialized before
// it is returned and is never registered under its name.
func (g *Generator) DefineHiddenClass(def *ir.ClassDefinition, classData runtime.Value) (*runtime.Class, error) {
	resolver := hierarchy.NewResolver([]*ir.ClassDefinition{def},
		hierarchy.WithLoadedClasses(g.loader.Registry()))

	data, err := classfile.Encode(def)
	if err != nil {
		return nil, &CompilationError{
			Class:       def.Name(),
			Disassembly: ir.TextifyClass(def),
			Err:         err,
		}
	}
	if err := g.dump([]*ir.ClassDefinition{def}, [][]byte{data}); err != nil {
		return nil, err
	}
	if g.verify {
		if err := classfile.Verify(data, resolver); err != nil {
			return nil, &CompilationError{
				Class:       def.Name(),
				Disassembly: ir.TextifyClass(def),
				Err:         err,
			}
		}
	}
	c, err := g.loader.DefineHiddenClass(data, classData)
	if err != nil {
		return nil, err
	}
	if err := c.Initialize(); err != nil {
		return nil, err
	}
	g.logger.Debug().Str("class", c.Name()).Msg("hidden class defined")
	return c, nil
}

func (g *Generator) dump(defs []*ir.ClassDefinition, modules [][]byte) error {
	if g.dumpTo != nil {
		for _, data := range modules {
			if err := dis.Disassemble(data, g.dumpTo); err != nil {
				return err
			}
			fmt.Fprintln(g.dumpTo)
		}
	}
	if g.dumpDir != "" {
		for i, data := range modules {
			name := filepath.Join(g.dumpDir, defs[i].Type().SimpleName()+".avcm")
			if err := os.WriteFile(name, data, 0o644); err != nil {
				return fmt.Errorf("dumping class %s: %w", defs[i].Name(), err)
			}
			g.logger.Debug().Str("file", name).Msg("dumped class module")
		}
	}
	return nil
}
