package cache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/imageds/imgio"
	"github.com/hupe1980/imageds/internal/fs"
	"github.com/hupe1980/imageds/sample"
)

// Format selects the on-disk encoding of one field, decided once from
// the schema sample.
type Format uint8

const (
	// FormatImage stores displayable uint8 layouts as lossless PNG.
	FormatImage Format = iota
	// FormatPacked stores 2-D wide-integer arrays byte-packed into PNG,
	// recording the original dtype for byte-exact reconstruction.
	FormatPacked
	// FormatRaw stores everything else as a raw (optionally compressed)
	// array dump.
	FormatRaw
)

// String implements fmt.Stringer.
func (f Format) String() string {
	switch f {
	case FormatImage:
		return "image"
	case FormatPacked:
		return "packed-image"
	default:
		return "raw"
	}
}

// Metadata describes how one field is cached on disk.
type Metadata struct {
	Format      Format
	PackedDType sample.DType // original dtype for FormatPacked
	Dir         string
	spec        sample.FieldSpec
}

// Disk caches materialized samples as one file per (field, item) under a
// per-field directory, persisting across process and run boundaries.
//
// Cached state is derived by probing file existence; a roaring bitmap
// mirror accelerates repeat checks within a process. Fields are cached
// as a unit per item: an item missing any field file is a full miss and
// is recomputed and rewritten (self-healing after a crash).
type Disk struct {
	provider Provider
	root     string
	fsys     fs.FileSystem
	comp     imgio.Compression
	log      *slog.Logger

	mu          sync.Mutex // guards initialization and remap
	initialized bool

	schema  sample.Schema
	fields  map[string]*Metadata
	scalars []string
	renames [][2]string // backend-level renames, replayed onto misses

	mirror   *roaring.Bitmap
	mirrorMu sync.RWMutex

	needsFill bool
}

// DiskOption configures a Disk backend.
type DiskOption func(*Disk)

// WithFileSystem overrides the file system (used by fault-injection tests).
func WithFileSystem(fsys fs.FileSystem) DiskOption {
	return func(c *Disk) {
		if fsys != nil {
			c.fsys = fsys
		}
	}
}

// WithCompression selects the raw-dump payload compression.
func WithCompression(comp imgio.Compression) DiskOption {
	return func(c *Disk) { c.comp = comp }
}

// WithDiskLogger sets the logger.
func WithDiskLogger(log *slog.Logger) DiskOption {
	return func(c *Disk) {
		if log != nil {
			c.log = log
		}
	}
}

// NewDisk creates a disk backend rooted at root (which already embeds the
// dataset and pipeline identities, see imageds.DiskCacheRoot). No
// directories are created until Init.
func NewDisk(provider Provider, root string, opts ...DiskOption) *Disk {
	c := &Disk{
		provider: provider,
		root:     root,
		fsys:     fs.Default,
		comp:     imgio.CompressionZSTD,
		log:      slog.Default(),
		fields:   make(map[string]*Metadata),
		mirror:   roaring.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Root returns the cache root directory.
func (c *Disk) Root() string { return c.root }

// Init pins the schema from item 0, decides the per-field format, and
// creates the per-field directories. A directory that already holds one
// file per item marks the whole backend as filled.
func (c *Disk) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}

	n := c.provider.NumSamples()
	if n <= 0 {
		return ErrEmptyDataset
	}

	schemaSample, err := c.provider.Materialize(0)
	if err != nil {
		return fmt.Errorf("cache: materializing schema sample: %w", err)
	}
	c.schema = sample.SchemaOf(schemaSample)

	for _, name := range c.schema.ScalarFields() {
		if _, ok := c.provider.Scalar(name, 0); !ok {
			return fmt.Errorf("cache: scalar field %q not backed by a ground-truth table", name)
		}
		c.scalars = append(c.scalars, name)
	}

	for _, name := range c.schema.ArrayFields() {
		spec := c.schema[name]
		meta := &Metadata{Dir: filepath.Join(c.root, name), spec: spec}

		probe := sample.NewArray(spec.DType, spec.Shape...)
		switch {
		case imgio.IsImage(probe):
			meta.Format = FormatImage
		case imgio.PackableDType(probe) != sample.DTypeInvalid:
			meta.Format = FormatPacked
			meta.PackedDType = spec.DType
		default:
			meta.Format = FormatRaw
		}

		if err := c.fsys.MkdirAll(meta.Dir, 0o755); err != nil {
			return &AllocationError{Resource: "cache folder " + meta.Dir, cause: err}
		}
		c.log.Info("cache folder ready", "dir", meta.Dir, "format", meta.Format.String())
		c.fields[name] = meta
	}

	c.needsFill = c.fillNeededLocked(n)
	if !c.needsFill {
		c.mirrorMu.Lock()
		c.mirror.AddRange(0, uint64(n))
		c.mirrorMu.Unlock()
	}

	c.initialized = true
	return nil
}

// fillNeededLocked checks whether every field directory already holds
// the right number of files.
func (c *Disk) fillNeededLocked(n int) bool {
	for _, meta := range c.fields {
		entries, err := c.fsys.ReadDir(meta.Dir)
		if err != nil || len(entries) != n {
			return true
		}
	}
	return false
}

// fileName returns the per-item file path for a field. Fields with their
// own per-item filename table keep that name; everything else uses the
// item's canonical display filename. The extension follows the format.
func (c *Disk) fileName(field string, index int) string {
	meta := c.fields[field]

	name, ok := c.provider.FieldItemName(field, index)
	if !ok {
		name = c.provider.ItemName(index)
	}

	ext := ".png"
	if meta.Format == FormatRaw {
		ext = ".arr"
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.Join(meta.Dir, base+ext)
}

// Get implements Backend.
func (c *Disk) Get(index int) (*sample.Sample, error) {
	if err := c.Init(); err != nil {
		return nil, err
	}

	n := c.provider.NumSamples()
	if index < 0 || index >= n {
		return nil, &RangeError{Index: index, Length: n}
	}

	if c.isCached(index) || c.probeFiles(index) {
		c.markCached(index)
		s, err := c.readItem(index)
		if err == nil {
			return s, nil
		}
		// A file deleted or corrupted behind our back is treated as a
		// miss. Corrupt files still stat fine, so every field is
		// rewritten, not just the missing ones.
		c.log.Warn("cached item unreadable, recomputing", "index", index, "error", err)
		return c.cacheItem(index, true)
	}
	return c.cacheItem(index, false)
}

func (c *Disk) isCached(index int) bool {
	c.mirrorMu.RLock()
	defer c.mirrorMu.RUnlock()
	return c.mirror.Contains(uint32(index))
}

func (c *Disk) markCached(index int) {
	c.mirrorMu.Lock()
	defer c.mirrorMu.Unlock()
	c.mirror.Add(uint32(index))
}

// probeFiles reports whether every field file for the item exists.
func (c *Disk) probeFiles(index int) bool {
	for name := range c.fields {
		if _, err := c.fsys.Stat(c.fileName(name, index)); err != nil {
			return false
		}
	}
	return true
}

// cacheItem computes the item, writes every missing field file, marks
// the item cached, and returns the freshly computed sample without a
// redundant read-back. With overwrite set, existing field files are
// rewritten too (an unreadable item heals once instead of recomputing
// forever).
func (c *Disk) cacheItem(index int, overwrite bool) (*sample.Sample, error) {
	s, err := c.provider.Materialize(index)
	if err != nil {
		return nil, err
	}
	c.applyRenames(s)
	if err := c.schema.Validate(s); err != nil {
		return nil, err
	}

	for name := range c.fields {
		path := c.fileName(name, index)
		if !overwrite {
			if _, err := c.fsys.Stat(path); err == nil {
				continue
			}
		}
		if err := c.writeField(name, s.Array(name), path); err != nil {
			return nil, err
		}
	}
	c.markCached(index)

	return s, nil
}

func (c *Disk) writeField(field string, arr *sample.Array, path string) error {
	meta := c.fields[field]

	var data []byte
	var err error
	switch meta.Format {
	case FormatImage:
		data, err = imgio.EncodePNG(arr)
	case FormatPacked:
		var packed *sample.Array
		packed, err = imgio.Pack(arr)
		if err == nil {
			data, err = imgio.EncodePNG(packed)
		}
	case FormatRaw:
		data, err = imgio.EncodeRaw(arr, c.comp)
	}
	if err != nil {
		return fmt.Errorf("cache: encoding field %q: %w", field, err)
	}

	if err := fs.WriteFileAtomic(c.fsys, path, data, 0o644); err != nil {
		return fmt.Errorf("cache: writing %s: %w", path, err)
	}
	return nil
}

// readItem decodes every field file of a cached item.
func (c *Disk) readItem(index int) (*sample.Sample, error) {
	out := sample.New()

	for name, meta := range c.fields {
		path := c.fileName(name, index)
		data, err := fs.ReadFile(c.fsys, path)
		if err != nil {
			return nil, fmt.Errorf("cache: reading %s: %w", path, err)
		}

		var arr *sample.Array
		switch meta.Format {
		case FormatImage:
			arr, err = imgio.DecodePNG(data, imageChannels(meta.spec.Shape))
			if err == nil {
				arr, err = reshape(arr, meta.spec.Shape)
			}
		case FormatPacked:
			packedChannels := 4
			if meta.PackedDType.Size() == 2 {
				packedChannels = 3
			}
			var img *sample.Array
			img, err = imgio.DecodePNG(data, packedChannels)
			if err == nil {
				arr, err = imgio.Unpack(img, meta.PackedDType)
			}
		case FormatRaw:
			arr, err = imgio.DecodeRaw(data)
		}
		if err != nil {
			return nil, fmt.Errorf("cache: decoding %s: %w", path, err)
		}
		out.SetArray(name, arr)
	}

	for _, name := range c.scalars {
		v, ok := c.provider.Scalar(name, index)
		if !ok {
			return nil, fmt.Errorf("cache: scalar field %q missing for item %d", name, index)
		}
		out.Set(name, v)
	}

	if err := c.schema.Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

func imageChannels(shape []int) int {
	if len(shape) == 3 {
		return shape[2]
	}
	return 1
}

// reshape reinterprets an array under the pinned schema shape; PNG
// decoding drops trailing single-channel axes.
func reshape(arr *sample.Array, shape []int) (*sample.Array, error) {
	want := 1
	for _, dim := range shape {
		want *= dim
	}
	if arr.NumElems() != want {
		return nil, &sample.SchemaError{Reason: fmt.Sprintf("decoded %d elems, want %d", arr.NumElems(), want)}
	}
	arr.Shape = slices.Clone(shape)
	return arr, nil
}

// Remap implements Backend: the per-field directory is renamed on disk
// along with the in-process bookkeeping. Remapping a field that was
// already remapped is a no-op.
func (c *Disk) Remap(old, new string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if meta, ok := c.fields[old]; ok {
		newDir := filepath.Join(c.root, new)
		if err := c.fsys.Rename(meta.Dir, newDir); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("cache: renaming field dir: %w", err)
		}
		meta.Dir = newDir
		delete(c.fields, old)
		c.fields[new] = meta
	}
	for i, name := range c.scalars {
		if name == old {
			c.scalars[i] = new
		}
	}
	c.schema.Rename(old, new)
	c.renames = append(c.renames, [2]string{old, new})
	return nil
}

// applyRenames replays recorded renames onto a freshly materialized
// sample, which may still carry pre-remap field names when only the
// backend was remapped. Renaming an absent field is a no-op.
func (c *Disk) applyRenames(s *sample.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.renames {
		s.Rename(r[0], r[1])
	}
}

// NeedsFill implements Backend.
func (c *Disk) NeedsFill() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.needsFill
}

// Schema implements Backend.
func (c *Disk) Schema() sample.Schema {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schema
}

// Close implements Backend. Disk state is durable; nothing to release.
func (c *Disk) Close() error { return nil }

var _ Backend = (*Disk)(nil)
