package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/volodymyrd/echarlar/internal/cli/output"
	"github.com/volodymyrd/echarlar/internal/core/domain"
	"github.com/volodymyrd/echarlar/internal/infra/buildinfo"
	"github.com/volodymyrd/echarlar/internal/storage"
	"github.com/volodymyrd/echarlar/internal/telemetry/logger"
)

// DefaultDataDir is the store directory used when --data-dir is not set.
const DefaultDataDir = "./echarlar-data"

// Metadata keys.
const (
	metaLogger = "logger"
	metaStore  = "store"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:     "echarlar-cli",
		Usage:    "e-charlar message store command-line tool",
		Version:  buildinfo.String(),
		Flags:    globalFlags(),
		Metadata: map[string]any{},
		Commands: []*cli.Command{
			UserCommand(),
			RoomCommand(),
			MessageCommand(),
			BackupCommand(),
		},
		Before: before,
		After:  closeStore,
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "data-dir",
			Aliases: []string{"d"},
			Usage:   "Store directory (badger engine)",
			EnvVars: []string{"ECHARLAR_DATA_DIR"},
			Value:   DefaultDataDir,
		},
		&cli.StringFlag{
			Name:    "engine",
			Aliases: []string{"e"},
			Usage:   "Storage engine: badger, memory",
			EnvVars: []string{"ECHARLAR_ENGINE"},
			Value:   storage.EngineBadger,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   string(output.FormatTable),
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable debug logging on stderr",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	// Store location
	DataDir string
	Engine  string

	// Output format
	Output string // table, json, yaml
	Wide   bool

	// Other
	Verbose bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		DataDir: c.String("data-dir"),
		Engine:  c.String("engine"),
		Output:  c.String("output"),
		Wide:    c.Bool("wide"),
		Verbose: c.Bool("verbose"),
	}
}

// StoreOptions converts the global flags to storage options. The CLI is
// short-lived, so background value log GC is disabled.
func (f *GlobalFlags) StoreOptions() storage.Options {
	return storage.Options{
		storage.OptionEngine:          f.Engine,
		storage.OptionPath:            f.DataDir,
		storage.OptionCreateIfMissing: true,
		storage.OptionGCInterval:      time.Duration(0),
	}
}

func before(c *cli.Context) error {
	flags := ParseGlobalFlags(c)
	if _, err := output.ParseFormat(flags.Output); err != nil {
		return err
	}

	level := "warn"
	if flags.Verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Config{
		Level:  level,
		Format: "text",
		Output: errWriter(c),
	})
	if err != nil {
		return err
	}
	c.App.Metadata[metaLogger] = log
	return nil
}

// commandContext returns the command's context carrying the CLI logger.
func commandContext(c *cli.Context) context.Context {
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if log, ok := c.App.Metadata[metaLogger].(logger.Logger); ok {
		ctx = logger.WithLogger(ctx, log)
	}
	return ctx
}

// OpenStore returns the store selected by the global flags, opening it on
// first use. The store is closed when the application exits.
func OpenStore(c *cli.Context) (storage.Store, error) {
	if s, ok := c.App.Metadata[metaStore].(storage.Store); ok {
		return s, nil
	}

	flags := ParseGlobalFlags(c)
	log := logger.FromContext(commandContext(c))
	store, err := storage.Open(flags.StoreOptions(), log.Slog())
	if err != nil {
		return nil, err
	}
	log.Debug("store opened", "engine", flags.Engine, "path", flags.DataDir)
	c.App.Metadata[metaStore] = store
	return store, nil
}

func closeStore(c *cli.Context) error {
	s, ok := c.App.Metadata[metaStore].(storage.Store)
	if !ok {
		return nil
	}
	delete(c.App.Metadata, metaStore)
	return s.Close()
}

// render writes data to the app's writer in the selected format.
func render(c *cli.Context, data any) error {
	return renderWide(c, data, ParseGlobalFlags(c).Wide)
}

// renderWide is render with an explicit wide setting.
func renderWide(c *cli.Context, data any, wide bool) error {
	format, err := output.ParseFormat(ParseGlobalFlags(c).Output)
	if err != nil {
		return err
	}
	return output.NewFormatter(format, wide).Format(writer(c), data)
}

func writer(c *cli.Context) io.Writer {
	if c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

func errWriter(c *cli.Context) io.Writer {
	if c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}

// argID parses the positional argument at index i as a UUID.
func argID(c *cli.Context, i int, name string) (uuid.UUID, error) {
	if c.NArg() <= i {
		return uuid.Nil, domain.ErrInvalidArgument.WithDetailsf("missing %s argument", name)
	}
	return parseID(c.Args().Get(i), name)
}

// parseID parses s as a UUID, naming the value in the error.
func parseID(s, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, domain.ErrInvalidArgument.WithDetailsf("invalid %s %q", name, s).WithCause(err)
	}
	return id, nil
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
