// Package descriptor binds a scope's static migration settings to a ready
// Migrator. A Descriptor is a plain value, usually loaded from a TOML or YAML
// file shipped with a release:
//
//	scope = "billing"
//	required_state = "1.6.0"
//	origin_state = "0.0.0"
//
//	[scripts]
//	dir = "migrations/billing"
//
//	[metadata]
//	kind = "header"
//
//	[state_database]
//	name = "tracking"
//	path = "tracking.db"
package descriptor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/example/scope-migrator/internal/migration"
	"github.com/example/scope-migrator/internal/persistence/sqlite"
	"github.com/example/scope-migrator/internal/resource"
	"github.com/example/scope-migrator/internal/resource/metadata"
)

// ErrInvalidDescriptor indicates a descriptor is incomplete or inconsistent.
var ErrInvalidDescriptor = errors.New("descriptor: invalid descriptor")

// Scripts says where transition scripts live. Exactly one source is used.
type Scripts struct {
	Dir     string `toml:"dir,omitempty" yaml:"dir,omitempty"`
	Archive string `toml:"archive,omitempty" yaml:"archive,omitempty"`

	// ArchiveDir is the directory inside Archive; defaults to its root.
	ArchiveDir string `toml:"archive_dir,omitempty" yaml:"archive_dir,omitempty"`

	// FS serves scripts compiled into the binary (embed.FS). Dir is then
	// the directory inside FS.
	FS fs.FS `toml:"-" yaml:"-"`
}

// Metadata selects the transition metadata parser.
type Metadata struct {
	Kind   string `toml:"kind,omitempty" yaml:"kind,omitempty"`
	Prefix string `toml:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// StateDatabase is an alternate database for the state tracking table.
type StateDatabase struct {
	Name string `toml:"name" yaml:"name"`
	Path string `toml:"path,omitempty" yaml:"path,omitempty"`
}

// Descriptor is the static migration configuration of one scope.
type Descriptor struct {
	Scope         string         `toml:"scope" yaml:"scope"`
	RequiredState string         `toml:"required_state" yaml:"required_state"`
	OriginState   string         `toml:"origin_state" yaml:"origin_state"`
	StateTable    string         `toml:"state_table,omitempty" yaml:"state_table,omitempty"`
	Scripts       Scripts        `toml:"scripts" yaml:"scripts"`
	Metadata      Metadata       `toml:"metadata,omitempty" yaml:"metadata,omitempty"`
	StateDatabase *StateDatabase `toml:"state_database,omitempty" yaml:"state_database,omitempty"`
}

// Load reads a descriptor file. The format follows the extension (.toml,
// .yaml or .yml). Relative script and database paths are resolved against
// the directory of the file.
func Load(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("read descriptor: %w", err)
	}

	var d Descriptor
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, &d); err != nil {
			return Descriptor{}, fmt.Errorf("parse descriptor %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &d); err != nil {
			return Descriptor{}, fmt.Errorf("parse descriptor %s: %w", path, err)
		}
	default:
		return Descriptor{}, fmt.Errorf("%w: unsupported descriptor format %q", ErrInvalidDescriptor, ext)
	}

	base := filepath.Dir(path)
	d.Scripts.Dir = resolvePath(base, d.Scripts.Dir)
	d.Scripts.Archive = resolvePath(base, d.Scripts.Archive)
	if d.StateDatabase != nil && d.StateDatabase.Path != ":memory:" {
		d.StateDatabase.Path = resolvePath(base, d.StateDatabase.Path)
	}

	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate reports missing or conflicting fields.
func (d Descriptor) Validate() error {
	var problems []string
	if strings.TrimSpace(d.Scope) == "" {
		problems = append(problems, "scope is required")
	}
	if strings.TrimSpace(d.OriginState) == "" {
		problems = append(problems, "origin_state is required")
	}
	if strings.TrimSpace(d.RequiredState) == "" {
		problems = append(problems, "required_state is required")
	}

	sources := 0
	if d.Scripts.Archive != "" {
		sources++
	}
	if d.Scripts.Dir != "" || d.Scripts.FS != nil {
		sources++
	}
	switch sources {
	case 0:
		problems = append(problems, "scripts.dir or scripts.archive is required")
	case 2:
		problems = append(problems, "scripts.archive cannot be combined with scripts.dir")
	}

	if _, err := metadata.New(d.Metadata.Kind, d.Metadata.Prefix); err != nil {
		problems = append(problems, err.Error())
	}
	if d.StateDatabase != nil && strings.TrimSpace(d.StateDatabase.Name) == "" {
		problems = append(problems, "state_database.name is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDescriptor, strings.Join(problems, "; "))
	}
	return nil
}

// Target returns override when set, otherwise the required state.
func (d Descriptor) Target(override string) migration.State {
	if override = strings.TrimSpace(override); override != "" {
		return migration.State(override)
	}
	return migration.State(d.RequiredState)
}

// Schema is a descriptor bound to a database session.
type Schema struct {
	*migration.Migrator

	Descriptor Descriptor
	Store      *sqlite.StateStore

	resolver *resource.FSResolver
}

// Open loads the scope's transition snapshot once and returns a Migrator
// bound to session. Close releases the script source.
func Open(ctx context.Context, d Descriptor, session *sqlite.Session, logger *slog.Logger, opts ...migration.Option) (*Schema, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	resolver, err := openResolver(d.Scripts)
	if err != nil {
		return nil, err
	}

	schema, err := bind(d, session, resolver, logger, opts)
	if err != nil {
		resolver.Close()
		return nil, err
	}
	logger.InfoContext(ctx, "schema descriptor bound",
		"component", "descriptor",
		"scope", d.Scope,
		"transitions", len(schema.Transitions()),
		"state_location", schema.Store.Location())
	return schema, nil
}

func bind(d Descriptor, session *sqlite.Session, resolver *resource.FSResolver, logger *slog.Logger, opts []migration.Option) (*Schema, error) {
	parser, err := metadata.New(d.Metadata.Kind, d.Metadata.Prefix)
	if err != nil {
		return nil, err
	}
	transitions, err := resource.Scan(resolver, parser)
	if err != nil {
		return nil, fmt.Errorf("scope %q: load transitions: %w", d.Scope, err)
	}

	storeCfg := sqlite.StoreConfig{
		Origin: migration.State(d.OriginState),
		Table:  d.StateTable,
	}
	if d.StateDatabase != nil {
		storeCfg.Alternate = &sqlite.Location{Name: d.StateDatabase.Name, Path: d.StateDatabase.Path}
	}
	store, err := sqlite.NewStateStore(session, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("scope %q: %w", d.Scope, err)
	}

	opts = append([]migration.Option{migration.WithLogger(logger)}, opts...)
	m, err := migration.New(migration.Config{
		Scope:       d.Scope,
		Store:       store,
		Resolver:    resolver,
		Executor:    session,
		Transitions: transitions,
	}, opts...)
	if err != nil {
		return nil, err
	}

	return &Schema{Migrator: m, Descriptor: d, Store: store, resolver: resolver}, nil
}

func openResolver(s Scripts) (*resource.FSResolver, error) {
	switch {
	case s.Archive != "":
		return resource.OpenArchive(s.Archive, s.ArchiveDir)
	case s.FS != nil:
		return resource.NewFSResolver(s.FS, s.Dir)
	default:
		return resource.NewDirResolver(s.Dir)
	}
}

// MigrateToRequired migrates the scope to the descriptor's required state.
func (s *Schema) MigrateToRequired(ctx context.Context) error {
	return s.MigrateTo(ctx, s.Descriptor.Target(""))
}

// History returns the scope's transition journal.
func (s *Schema) History(ctx context.Context) ([]migration.HistoryEntry, error) {
	if err := s.Store.EnsureReady(ctx); err != nil {
		return nil, err
	}
	return s.Store.History(ctx, s.Descriptor.Scope)
}

// Close releases the script source.
func (s *Schema) Close() error {
	return s.resolver.Close()
}
