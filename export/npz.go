package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sbinet/npyio/npz"
	"gonum.org/v1/gonum/mat"

	"towerfield/mesh"
)

// 数据集中的数组名
const (
	KeyCoordinates = "coordinates.npy"
	KeyPhiReal     = "phi_real.npy"
	KeyPhiImag     = "phi_imag.npy"
	KeyEReal       = "E_real.npy"
	KeyEImag       = "E_imag.npy"
	KeyEMag        = "E_mag.npy"
	KeyEpsilon     = "epsilon.npy"
	KeySigma       = "sigma.npy"
	KeyFreq        = "freq.npy"
	KeyMetadata    = "metadata.npy"
)

// TimestampLayout 文件名中的时间格式
const TimestampLayout = "20060102_150405"

// FileName {stem}_{YYYYMMDD_HHMMSS}.npz
func FileName(stem string, t time.Time) string {
	return fmt.Sprintf("%s_%s.npz", stem, t.Format(TimestampLayout))
}

// Exporter 数据集写出
type Exporter struct {
	Dir  string
	Stem string
	Now  func() time.Time // nil 使用 time.Now
}

// Write 校验并写出数据集，返回文件路径
// 已存在同名文件时返回 os.ErrExist，不覆盖
func (e *Exporter) Write(ds *Dataset) (string, error) {
	if err := ds.Validate(); err != nil {
		return "", err
	}
	if ds.Len() == 0 {
		return "", ErrEmptyDataset
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	path := filepath.Join(e.Dir, FileName(e.Stem, now()))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	err = write(f, ds)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("export: %s: %w", path, err)
	}
	size := int64(0)
	if st, err := os.Stat(path); err == nil {
		size = st.Size()
	}
	slog.Info("数据集已写出",
		"path", path,
		"points", humanize.Comma(int64(ds.Len())),
		"size", humanize.Bytes(uint64(size)))
	return path, nil
}

func write(f *os.File, ds *Dataset) error {
	meta, err := json.Marshal(ds.Metadata)
	if err != nil {
		return err
	}
	w := npz.NewWriter(f)
	items := []struct {
		key string
		val any
	}{
		{KeyCoordinates, vectors(ds.Coordinates)},
		{KeyPhiReal, ds.PhiReal},
		{KeyPhiImag, ds.PhiImag},
		{KeyEReal, vectors(ds.EReal)},
		{KeyEImag, vectors(ds.EImag)},
		{KeyEMag, ds.EMag},
		{KeyEpsilon, ds.Epsilon},
		{KeySigma, ds.Sigma},
		{KeyFreq, ds.Freq},
		{KeyMetadata, meta},
	}
	for _, it := range items {
		if err := w.Write(it.key, it.val); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// vectors 转为 N×3 矩阵
func vectors(ps []mesh.Point) *mat.Dense {
	d := mat.NewDense(len(ps), 3, nil)
	for i, p := range ps {
		d.SetRow(i, []float64{p.X, p.Y, p.Z})
	}
	return d
}

func points(d *mat.Dense) ([]mesh.Point, error) {
	r, c := d.Dims()
	if c != 3 {
		return nil, fmt.Errorf("%d columns: %w", c, ErrShapeMismatch)
	}
	out := make([]mesh.Point, r)
	for i := range out {
		out[i] = mesh.Point{X: d.At(i, 0), Y: d.At(i, 1), Z: d.At(i, 2)}
	}
	return out, nil
}

// Read 读取数据集
func Read(path string) (*Dataset, error) {
	r, err := npz.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("export: %s: %w", path, os.ErrNotExist)
		}
		return nil, fmt.Errorf("export: %w", err)
	}
	defer r.Close()

	ds := &Dataset{}
	var coords, eRe, eIm mat.Dense
	var meta []uint8
	for key, ptr := range map[string]any{
		KeyCoordinates: &coords,
		KeyPhiReal:     &ds.PhiReal,
		KeyPhiImag:     &ds.PhiImag,
		KeyEReal:       &eRe,
		KeyEImag:       &eIm,
		KeyEMag:        &ds.EMag,
		KeyEpsilon:     &ds.Epsilon,
		KeySigma:       &ds.Sigma,
		KeyFreq:        &ds.Freq,
		KeyMetadata:    &meta,
	} {
		if err := r.Read(key, ptr); err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
	}
	if ds.Coordinates, err = points(&coords); err != nil {
		return nil, fmt.Errorf("export: coordinates: %w", err)
	}
	if ds.EReal, err = points(&eRe); err != nil {
		return nil, fmt.Errorf("export: E_real: %w", err)
	}
	if ds.EImag, err = points(&eIm); err != nil {
		return nil, fmt.Errorf("export: E_imag: %w", err)
	}
	if err := json.Unmarshal(meta, &ds.Metadata); err != nil {
		return nil, fmt.Errorf("export: metadata: %w", err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}
