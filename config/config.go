// Package config 读取 YAML 配置
//
// 配置文件查找顺序：
//  1. $TOWERFIELD_CONFIG
//  2. ./towerfield.yaml
//
// 找不到时使用默认配置。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath  = "TOWERFIELD_CONFIG"
	ConfigFileName = "towerfield.yaml"
)

// Config 顶层配置
type Config struct {
	Output  OutputConfig  `yaml:"output"`
	Mesh    MeshConfig    `yaml:"mesh"`
	Physics PhysicsConfig `yaml:"physics"`
	Solver  SolverConfig  `yaml:"solver"`
	Batch   BatchConfig   `yaml:"batch"`
	Catalog CatalogConfig `yaml:"catalog"`
	Report  ReportConfig  `yaml:"report"`
}

// OutputConfig 数据集输出
type OutputConfig struct {
	Dir  string `yaml:"dir"`
	Stem string `yaml:"stem"`
}

// MeshConfig 网格来源，File 为空时生成合成网格
type MeshConfig struct {
	File      string          `yaml:"file,omitempty"`
	Synthetic SyntheticConfig `yaml:"synthetic"`
}

// SyntheticConfig 合成塔网格
type SyntheticConfig struct {
	Size   float64 `yaml:"size"` // 立方体边长 (m)
	NX     int     `yaml:"nx"`
	NY     int     `yaml:"ny"`
	NZ     int     `yaml:"nz"`
	Jitter float64 `yaml:"jitter,omitempty"`
	Seed   int64   `yaml:"seed,omitempty"`
}

// PhysicsConfig 物理参数
type PhysicsConfig struct {
	MaxConductivity float64 `yaml:"max_conductivity"`
	RobinCoeff      float64 `yaml:"robin_coeff"`
	Frequency       float64 `yaml:"frequency"`
	Voltage         float64 `yaml:"voltage"`
	SeedFactor      float64 `yaml:"seed_factor"`
}

// SolverConfig 线性求解参数
type SolverConfig struct {
	Restart        int     `yaml:"restart"`
	RelTol         float64 `yaml:"rtol"`
	AbsTol         float64 `yaml:"atol"`
	MaxIter        int     `yaml:"max_iter"`
	MaxBandEntries int     `yaml:"max_band_entries"`
	DebugHTML      string  `yaml:"debug_html,omitempty"` // 非空时写出残差曲线页面
}

// BatchConfig 批量计算
type BatchConfig struct {
	Root    string   `yaml:"root"`
	Workers int      `yaml:"workers"`
	Timeout Duration `yaml:"timeout"`
	Summary string   `yaml:"summary"` // xlsx 汇总文件名
}

// CatalogConfig 运行记录库
type CatalogConfig struct {
	Path string `yaml:"path"` // 为空时不记录
}

// ReportConfig 数据集分析
type ReportConfig struct {
	Histogram string `yaml:"histogram"` // 直方图 PNG 文件名
}

// Load 查找并加载配置文件，找不到时返回默认配置
func Load() (*Config, string, error) {
	path := FindConfigPath()
	if path == "" {
		return DefaultConfig(), "", nil
	}
	return LoadFromPath(path)
}

// FindConfigPath 按顺序查找配置文件
func FindConfigPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" && fileExists(path) {
		return path
	}
	if fileExists(ConfigFileName) {
		if abs, err := filepath.Abs(ConfigFileName); err == nil {
			return abs
		}
		return ConfigFileName
	}
	return ""
}

// LoadFromPath 加载指定配置文件
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}
	// robin_coeff 为 0 是合法取值（纯 Neumann），缺省值在解析前写入
	cfg := Config{Physics: PhysicsConfig{RobinCoeff: DefaultRobinCoeff}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, path, nil
}

// Save 写出配置
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultRobinCoeff Robin 梯度项系数缺省值
const DefaultRobinCoeff = 0.5

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	c := &Config{Physics: PhysicsConfig{RobinCoeff: DefaultRobinCoeff}}
	c.applyDefaults()
	return c
}

// applyDefaults 填充缺省值
func (c *Config) applyDefaults() {
	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if c.Output.Stem == "" {
		c.Output.Stem = "tower_field"
	}
	s := &c.Mesh.Synthetic
	if s.Size == 0 {
		s.Size = 60
	}
	if s.NX == 0 {
		s.NX = 30
	}
	if s.NY == 0 {
		s.NY = s.NX
	}
	if s.NZ == 0 {
		s.NZ = s.NX
	}
	p := &c.Physics
	if p.MaxConductivity == 0 {
		p.MaxConductivity = 35000
	}
	if p.Frequency == 0 {
		p.Frequency = 50
	}
	if p.Voltage == 0 {
		p.Voltage = 120e3
	}
	if p.SeedFactor == 0 {
		p.SeedFactor = 0.1
	}
	v := &c.Solver
	if v.Restart == 0 {
		v.Restart = 30
	}
	if v.RelTol == 0 {
		v.RelTol = 1e-6
	}
	if v.AbsTol == 0 {
		v.AbsTol = 1e-9
	}
	if v.MaxIter == 0 {
		v.MaxIter = 2000
	}
	if v.MaxBandEntries == 0 {
		v.MaxBandEntries = 1 << 27
	}
	b := &c.Batch
	if b.Root == "" {
		b.Root = "./batch_results"
	}
	if b.Workers == 0 {
		b.Workers = 3
	}
	if b.Timeout == 0 {
		b.Timeout = Duration(time.Hour)
	}
	if b.Summary == "" {
		b.Summary = "batch_summary.xlsx"
	}
	if c.Report.Histogram == "" {
		c.Report.Histogram = "e_field_histogram.png"
	}
}

// Duration 支持 "1h30m" 形式的 YAML 时长
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration 底层时长
func (d Duration) Duration() time.Duration { return time.Duration(d) }

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
