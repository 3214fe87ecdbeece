package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/entitydoc/internal/component"
	"github.com/dshills/entitydoc/internal/config"
	"github.com/dshills/entitydoc/internal/document/migrate"
	"github.com/dshills/entitydoc/internal/document/node"
	"github.com/dshills/entitydoc/internal/entity"
	"github.com/dshills/entitydoc/internal/logging"
	"github.com/dshills/entitydoc/internal/service"
	"github.com/dshills/entitydoc/internal/store"
)

// app carries state shared by every command.
type app struct {
	configPath    string
	componentDirs []string
	logLevel      string

	cfg      *config.Config
	logger   *zap.Logger
	registry *component.Registry
	print    printer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "entitydoc",
		Short: "Validate and edit entity documents",
		Long: `entitydoc validates and edits entity documents: JSON documents holding an
ordered list of typed components, each checked against a registered schema.

Every edit is an RFC 6902 patch operation. Invalid edits are rejected and
leave the document untouched.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.print = printer{out: cmd.OutOrStdout(), err: cmd.ErrOrStderr()}
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "path to configuration file")
	flags.StringSliceVar(&a.componentDirs, "components", nil, "component definition directory (repeatable)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newValidateCmd(a),
		newApplyCmd(a),
		newSchemasCmd(a),
		newTagsCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newAddCmd(a),
	)
	return cmd
}

// setup loads configuration, builds the logger and registers components.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return a.print.failure("Failed to load configuration", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg

	a.logger, err = logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Name: "entitydoc"})
	if err != nil {
		return a.print.failure("Failed to create logger", err)
	}

	a.registry = component.NewRegistry()
	dirs := append(append([]string(nil), cfg.Components.Dirs...), a.componentDirs...)
	for _, dir := range dirs {
		n, err := a.registry.Load(os.DirFS(dir), ".")
		if err != nil {
			return a.print.failure("Failed to load component definitions from "+dir, err)
		}
		a.logger.Debug("loaded component definitions", zap.String("dir", dir), zap.Int("count", n))
	}
	return nil
}

// readDocument loads, migrates and checks the shape of an entity file.
func (a *app) readDocument(path string) (*entity.Document, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	raw, migrated, err := migrate.Entity(data)
	if err != nil {
		return nil, false, err
	}
	root, err := node.Parse(raw)
	if err != nil {
		return nil, false, err
	}
	doc, err := entity.NewDocument(path, root, a.registry)
	if err != nil {
		return nil, false, err
	}
	return doc, migrated, nil
}

// openService opens the configured store behind an entity service.
func (a *app) openService() (*service.Service, error) {
	sc := a.cfg.Store
	st, err := store.Open(store.Config{
		Driver:    sc.Driver,
		Path:      sc.Path,
		RedisAddr: sc.RedisAddr,
		RedisDB:   sc.RedisDB,
		KeyPrefix: sc.KeyPrefix,
		InMemory:  sc.InMemory,
	})
	if err != nil {
		return nil, err
	}
	svc := service.New(st, a.registry,
		service.WithLogger(a.logger),
		service.WithMaxHistory(a.cfg.History.MaxEntries),
		service.WithSaveConcurrency(a.cfg.Service.SaveConcurrency))

	if fs, ok := st.(*store.FileStore); ok && sc.Watch {
		if err := svc.Watch(fs); err != nil {
			_ = svc.Close()
			return nil, err
		}
	}
	return svc, nil
}
