package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// Dialect SQL 方言，对应 migrations/<dialect>/ 目录
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// VersionTable 记录已应用版本的表
const VersionTable = "schema_migrations"

const defaultLockTimeout = 15 * time.Second

func (d Dialect) dir() (string, error) {
	switch d {
	case DialectPostgres, DialectMySQL, DialectSQLite:
		return path.Join("migrations", string(d)), nil
	}
	return "", fmt.Errorf("unsupported dialect %q", d)
}

// sqlDriver database/sql 注册名；sqlite 走 golang-migrate 自带的 sqlite3
func (d Dialect) sqlDriver() string {
	if d == DialectSQLite {
		return "sqlite3"
	}
	return string(d)
}

// Revision 内嵌的一个迁移版本
type Revision struct {
	Version uint
	Name    string
}

// Step 某个版本在目标库上的状态
type Step struct {
	Revision
	Applied bool
	Dirty   bool
}

// Summary 迁移进度
type Summary struct {
	Current uint
	Dirty   bool
	Total   int
	Applied int
	Pending int
}

// Options 打开迁移器所需参数
type Options struct {
	Dialect Dialect
	// URL 连接串，格式见 URLFor
	URL         string
	Table       string
	LockTimeout time.Duration
}

// Migrator 管理记忆表与归档表的 Schema 版本
type Migrator interface {
	Up(ctx context.Context) error
	// Down 回滚最近一个版本
	Down(ctx context.Context) error
	DownAll(ctx context.Context) error
	// Steps 正数前进，负数回滚
	Steps(ctx context.Context, n int) error
	// Force 只改写版本号，用于清除 dirty 标记
	Force(ctx context.Context, version int) error
	// Version 尚未迁移时返回 0
	Version(ctx context.Context) (uint, bool, error)
	Status(ctx context.Context) ([]Step, error)
	Summary(ctx context.Context) (Summary, error)
	Close() error
}

// Schema 基于 golang-migrate 的 Migrator
type Schema struct {
	opts    Options
	db      *sql.DB
	migrate *migrate.Migrate
}

var _ Migrator = (*Schema)(nil)

// Open 连接数据库并装载内嵌迁移
func Open(opts Options) (*Schema, error) {
	if opts.URL == "" {
		return nil, errors.New("migration: database URL is required")
	}
	dir, err := opts.Dialect.dir()
	if err != nil {
		return nil, fmt.Errorf("migration: %w", err)
	}
	if opts.Table == "" {
		opts.Table = VersionTable
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}

	db, err := sql.Open(opts.Dialect.sqlDriver(), opts.URL)
	if err != nil {
		return nil, fmt.Errorf("migration: open %s: %w", opts.Dialect, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration: ping %s: %w", opts.Dialect, err)
	}

	target, err := versionDriver(opts, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration: %s driver: %w", opts.Dialect, err)
	}
	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration: embedded source: %w", err)
	}
	mg, err := migrate.NewWithInstance("iofs", src, string(opts.Dialect), target)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	mg.LockTimeout = opts.LockTimeout

	return &Schema{opts: opts, db: db, migrate: mg}, nil
}

func versionDriver(opts Options, db *sql.DB) (database.Driver, error) {
	switch opts.Dialect {
	case DialectPostgres:
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: opts.Table})
	case DialectMySQL:
		return mysql.WithInstance(db, &mysql.Config{MigrationsTable: opts.Table})
	default:
		return sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: opts.Table})
	}
}

// settle 没有可执行的迁移不算失败
func settle(op string, err error) error {
	if err == nil || errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return fmt.Errorf("migrate %s: %w", op, err)
}

// Up implements Migrator.
func (s *Schema) Up(context.Context) error { return settle("up", s.migrate.Up()) }

// Down implements Migrator.
func (s *Schema) Down(context.Context) error { return settle("down", s.migrate.Steps(-1)) }

// DownAll implements Migrator.
func (s *Schema) DownAll(context.Context) error { return settle("down-all", s.migrate.Down()) }

// Steps implements Migrator.
func (s *Schema) Steps(_ context.Context, n int) error {
	return settle("steps "+strconv.Itoa(n), s.migrate.Steps(n))
}

// Force implements Migrator.
func (s *Schema) Force(_ context.Context, version int) error {
	if err := s.migrate.Force(version); err != nil {
		return fmt.Errorf("migrate force %d: %w", version, err)
	}
	return nil
}

// Version implements Migrator.
func (s *Schema) Version(context.Context) (uint, bool, error) {
	v, dirty, err := s.migrate.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("migrate version: %w", err)
	}
	return v, dirty, nil
}

// Status implements Migrator.
func (s *Schema) Status(ctx context.Context) ([]Step, error) {
	current, dirty, err := s.Version(ctx)
	if err != nil {
		return nil, err
	}
	revs, err := Revisions(s.opts.Dialect)
	if err != nil {
		return nil, err
	}
	steps := make([]Step, len(revs))
	for i, r := range revs {
		steps[i] = Step{
			Revision: r,
			Applied:  r.Version <= current,
			Dirty:    dirty && r.Version == current,
		}
	}
	return steps, nil
}

// Summary implements Migrator.
func (s *Schema) Summary(ctx context.Context) (Summary, error) {
	steps, err := s.Status(ctx)
	if err != nil {
		return Summary{}, err
	}
	return summarize(steps), nil
}

func summarize(steps []Step) Summary {
	sum := Summary{Total: len(steps)}
	for _, st := range steps {
		if st.Applied {
			sum.Applied++
			sum.Current = st.Version
		}
		if st.Dirty {
			sum.Dirty = true
		}
	}
	sum.Pending = sum.Total - sum.Applied
	return sum
}

// Close implements Migrator.
func (s *Schema) Close() error {
	srcErr, dbErr := s.migrate.Close()
	return errors.Join(srcErr, dbErr)
}

// Revisions 列出某方言内嵌的迁移，按版本升序
func Revisions(d Dialect) ([]Revision, error) {
	dir, err := d.dir()
	if err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded migrations: %w", err)
	}

	var revs []Revision
	for _, e := range entries {
		// 000001_create_memory_entries.up.sql
		base, ok := strings.CutSuffix(e.Name(), ".up.sql")
		if e.IsDir() || !ok {
			continue
		}
		num, name, ok := strings.Cut(base, "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(num, 10, 32)
		if err != nil {
			continue
		}
		revs = append(revs, Revision{Version: uint(v), Name: name})
	}
	sort.Slice(revs, func(i, j int) bool { return revs[i].Version < revs[j].Version })
	return revs, nil
}
