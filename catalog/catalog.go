// Package catalog 以 SQLite 记录每次计算
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"towerfield"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("catalog: run not found")

// Run 一次计算的记录
type Run struct {
	ID              string  `db:"id"`
	CaseName        string  `db:"case_name"`
	StartedUnix     int64   `db:"started_unix"`
	MeshFile        string  `db:"mesh_file"`
	Strategy        string  `db:"strategy"`
	MaxConductivity float64 `db:"max_conductivity"`
	RobinCoeff      float64 `db:"robin_coeff"`
	Success         bool    `db:"success"`
	Error           string  `db:"error"`
	Path            string  `db:"path"`
	MaxE            float64 `db:"max_e"`
	BoxAirPoints    int     `db:"box_air_points"`
	Percentage      float64 `db:"percentage"`
	Seconds         float64 `db:"seconds"`
	Metadata        string  `db:"metadata_json"`
}

// Started 开始时间
func (r Run) Started() time.Time { return time.Unix(r.StartedUnix, 0) }

// FromResult 由计算结果生成记录，res 为空表示计算失败
func FromResult(caseName string, opt towerfield.Options, res *towerfield.Result, err error) Run {
	r := Run{
		CaseName:        caseName,
		StartedUnix:     time.Now().Unix(),
		MeshFile:        opt.MeshFile,
		MaxConductivity: opt.MaxConductivity,
		RobinCoeff:      opt.RobinCoeff,
	}
	if err != nil {
		r.ID = uuid.NewString()
		r.Error = err.Error()
		return r
	}
	meta, _ := json.Marshal(res.Metadata)
	r.ID = res.RunID
	r.StartedUnix = res.Metadata.StartTime.Unix()
	r.MeshFile = res.Metadata.MeshFile
	r.Strategy = res.Strategy.String()
	r.Success = res.ExportErr == nil
	if res.ExportErr != nil {
		r.Error = "export: " + res.ExportErr.Error()
	}
	r.Path = res.Path
	r.MaxE = res.Summary.MaxE
	r.BoxAirPoints = res.Filter.BoxAirPoints
	r.Percentage = res.Filter.Percentage
	r.Seconds = res.Duration.Seconds()
	r.Metadata = string(meta)
	return r
}

// Catalog 运行记录库
type Catalog struct {
	conn *sqlx.DB
}

// Open 打开或创建记录库
func Open(path string) (*Catalog, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	c := &Catalog{conn: conn}
	if err := c.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return c, nil
}

// Close 关闭连接
func (c *Catalog) Close() error { return c.conn.Close() }

func (c *Catalog) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		case_name TEXT NOT NULL,
		started_unix INTEGER NOT NULL,
		mesh_file TEXT NOT NULL,
		strategy TEXT NOT NULL,
		max_conductivity REAL NOT NULL,
		robin_coeff REAL NOT NULL,
		success INTEGER NOT NULL,
		error TEXT NOT NULL,
		path TEXT NOT NULL,
		max_e REAL NOT NULL,
		box_air_points INTEGER NOT NULL,
		percentage REAL NOT NULL,
		seconds REAL NOT NULL,
		metadata_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_unix);
	CREATE INDEX IF NOT EXISTS idx_runs_case ON runs(case_name);
	`
	_, err := c.conn.Exec(schema)
	return err
}

// Record 写入记录，相同 ID 覆盖
func (c *Catalog) Record(ctx context.Context, r Run) error {
	_, err := c.conn.NamedExecContext(ctx, `INSERT OR REPLACE INTO runs
		(id, case_name, started_unix, mesh_file, strategy, max_conductivity, robin_coeff,
		 success, error, path, max_e, box_air_points, percentage, seconds, metadata_json)
		VALUES (:id, :case_name, :started_unix, :mesh_file, :strategy, :max_conductivity, :robin_coeff,
		 :success, :error, :path, :max_e, :box_air_points, :percentage, :seconds, :metadata_json)`, r)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

// Get 按 ID 读取
func (c *Catalog) Get(ctx context.Context, id string) (Run, error) {
	var r Run
	err := c.conn.GetContext(ctx, &r, `SELECT * FROM runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return r, err
}

// List 按开始时间倒序列出，caseName 为空时列出全部
func (c *Catalog) List(ctx context.Context, caseName string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	var runs []Run
	var err error
	if caseName == "" {
		err = c.conn.SelectContext(ctx, &runs,
			`SELECT * FROM runs ORDER BY started_unix DESC, id LIMIT ?`, limit)
	} else {
		err = c.conn.SelectContext(ctx, &runs,
			`SELECT * FROM runs WHERE case_name = ? ORDER BY started_unix DESC, id LIMIT ?`, caseName, limit)
	}
	return runs, err
}

// SuccessRate 指定算例的成功率（百分比），没有记录时返回 0
func (c *Catalog) SuccessRate(ctx context.Context, caseName string) (float64, error) {
	var rate sql.NullFloat64
	err := c.conn.GetContext(ctx, &rate,
		`SELECT AVG(success) * 100 FROM runs WHERE case_name = ?`, caseName)
	return rate.Float64, err
}
