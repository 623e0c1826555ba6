package imageds

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hupe1980/imageds/cache"
	"github.com/hupe1980/imageds/imgio"
	"github.com/hupe1980/imageds/sample"
	"github.com/hupe1980/imageds/transform"
)

// ImageField is the field name every image source lists its primary
// files under.
const ImageField = "image"

// supportedExtensions are the file suffixes considered when listing an
// image root. They match what imgio can decode.
var supportedExtensions = []string{"jpg", "jpeg", "png", "gif", "bmp", "tif", "tiff"}

type sourceConfig struct {
	recursive  bool
	height     int
	width      int
	keepRatio  bool
	autoResize bool
	autoPad    bool
	interp     transform.Interpolation
	extractID  func(string) string
	logger     *Logger

	labelField   string
	labelCSV     string
	fileColumn   string
	labelColumns []string
}

// ImageSourceOption configures an ImageSource or ClassificationSource.
type ImageSourceOption func(*sourceConfig)

// WithRecursive toggles recursive directory listing (default true).
func WithRecursive(recursive bool) ImageSourceOption {
	return func(c *sourceConfig) { c.recursive = recursive }
}

// WithShape sets a target (height, width) every loaded image is resized
// and center-padded to. Without a shape, images are served at their
// native sizes and caching requires them to be uniform.
func WithShape(height, width int) ImageSourceOption {
	return func(c *sourceConfig) {
		c.height, c.width = height, width
		c.autoResize, c.autoPad = true, true
	}
}

// WithKeepRatio preserves the aspect ratio when resizing, relying on
// padding to reach the exact target shape (default true).
func WithKeepRatio(keep bool) ImageSourceOption {
	return func(c *sourceConfig) { c.keepRatio = keep }
}

// WithAutoResize toggles the resize step of shape normalization.
func WithAutoResize(resize bool) ImageSourceOption {
	return func(c *sourceConfig) { c.autoResize = resize }
}

// WithAutoPad toggles the pad step of shape normalization.
func WithAutoPad(pad bool) ImageSourceOption {
	return func(c *sourceConfig) { c.autoPad = pad }
}

// WithInterpolation selects the resize filter (default bilinear).
func WithInterpolation(interp transform.Interpolation) ImageSourceOption {
	return func(c *sourceConfig) { c.interp = interp }
}

// WithExtractID sets the function that derives a matching key from an
// image filename, used to join companion fields and CSV label rows.
// The default strips the directory and extension.
func WithExtractID(fn func(string) string) ImageSourceOption {
	return func(c *sourceConfig) { c.extractID = fn }
}

// WithSourceLogger sets the logger used during listing and loading.
func WithSourceLogger(logger *Logger) ImageSourceOption {
	return func(c *sourceConfig) { c.logger = logger }
}

func defaultSourceConfig() *sourceConfig {
	return &sourceConfig{
		recursive:  true,
		keepRatio:  true,
		interp:     transform.InterpBilinear,
		extractID:  stem,
		logger:     NoopLogger(),
		labelField: "label",
		fileColumn: ImageField,
	}
}

// stem returns the filename without directory or extension.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ImageSource lists image files under one or more roots and loads them
// as uint8 arrays, optionally normalized to a fixed shape. Additional
// per-item image fields (segmentation masks, paired views) can be
// joined from their own roots, and scalar ground-truth columns can be
// attached directly.
type ImageSource struct {
	cfg     *sourceConfig
	roots   []string
	primary string // current name of the primary image field

	files map[string][]string       // field -> one path per item
	gts   map[string][]sample.Value // field -> one scalar per item
}

// NewImageSource lists the supported image files under the given roots.
func NewImageSource(roots []string, opts ...ImageSourceOption) (*ImageSource, error) {
	if len(roots) == 0 {
		return nil, ErrNoSource
	}

	cfg := defaultSourceConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	s := &ImageSource{
		cfg:     cfg,
		roots:   roots,
		primary: ImageField,
		files:   make(map[string][]string),
		gts:     make(map[string][]sample.Value),
	}

	paths, err := listImages(roots, cfg.recursive)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images under %v: %w", roots, cache.ErrEmptyDataset)
	}
	s.files[ImageField] = paths

	cfg.logger.Info("listed image source", "roots", roots, "items", len(paths))

	return s, nil
}

func listImages(roots []string, recursive bool) ([]string, error) {
	supported := func(name string) bool {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
		for _, e := range supportedExtensions {
			if ext == e {
				return true
			}
		}
		return false
	}

	var paths []string
	for _, root := range roots {
		if recursive {
			err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && supported(d.Name()) {
					paths = append(paths, path)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("listing %s: %w", root, err)
			}
			continue
		}

		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", root, err)
		}
		for _, e := range entries {
			if !e.IsDir() && supported(e.Name()) {
				paths = append(paths, filepath.Join(root, e.Name()))
			}
		}
	}

	sort.Strings(paths)
	return paths, nil
}

// AddImageField joins a companion image field (for example a mask per
// item) listed under its own roots. Companion files are matched to the
// primary images by extracted id and must cover every item.
func (s *ImageSource) AddImageField(field string, roots []string) error {
	if field == s.primary {
		return fmt.Errorf("field %q is reserved", s.primary)
	}
	if _, ok := s.files[field]; ok {
		return fmt.Errorf("field %q already exists", field)
	}

	paths, err := listImages(roots, s.cfg.recursive)
	if err != nil {
		return err
	}

	byID := make(map[string]string, len(paths))
	for _, p := range paths {
		byID[s.cfg.extractID(p)] = p
	}

	matched := make([]string, len(s.files[s.primary]))
	for i, img := range s.files[s.primary] {
		id := s.cfg.extractID(img)
		p, ok := byID[id]
		if !ok {
			return fmt.Errorf("field %q: no file matching %q under %v", field, id, roots)
		}
		matched[i] = p
	}

	s.files[field] = matched
	return nil
}

// AddScalarField attaches one scalar ground-truth value per item.
func (s *ImageSource) AddScalarField(field string, values []sample.Value) error {
	if len(values) != s.Len() {
		return fmt.Errorf("field %q: %d values for %d items", field, len(values), s.Len())
	}
	if _, ok := s.files[field]; ok {
		return fmt.Errorf("field %q already exists", field)
	}
	s.gts[field] = values
	return nil
}

// Len implements Source.
func (s *ImageSource) Len() int { return len(s.files[s.primary]) }

// Load implements Source: decodes every image field, applies shape
// normalization, and attaches the scalar ground-truth fields.
func (s *ImageSource) Load(index int) (*sample.Sample, error) {
	if index < 0 || index >= s.Len() {
		return nil, &cache.RangeError{Index: index, Length: s.Len()}
	}

	out := sample.New()
	for field, paths := range s.files {
		arr, err := imgio.ReadFile(paths[index])
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", paths[index], err)
		}
		if arr, err = s.normalize(arr); err != nil {
			return nil, fmt.Errorf("normalizing %s: %w", paths[index], err)
		}
		out.SetArray(field, arr)
	}
	for field, values := range s.gts {
		out.Set(field, values[index])
	}
	return out, nil
}

func (s *ImageSource) normalize(arr *sample.Array) (*sample.Array, error) {
	var err error
	if s.cfg.autoResize {
		arr, err = transform.ResizeArray(arr, s.cfg.height, s.cfg.width, s.cfg.keepRatio, s.cfg.interp)
		if err != nil {
			return nil, err
		}
	}
	if s.cfg.autoPad {
		if arr, err = transform.PadArray(arr, s.cfg.height, s.cfg.width); err != nil {
			return nil, err
		}
	}
	return arr, nil
}

// ItemName implements Source.
func (s *ImageSource) ItemName(index int) string {
	return filepath.Base(s.files[s.primary][index])
}

// FieldItemName implements Source.
func (s *ImageSource) FieldItemName(field string, index int) (string, bool) {
	paths, ok := s.files[field]
	if !ok {
		return "", false
	}
	return filepath.Base(paths[index]), true
}

// Scalar implements Source.
func (s *ImageSource) Scalar(field string, index int) (sample.Value, bool) {
	values, ok := s.gts[field]
	if !ok {
		return sample.Value{}, false
	}
	return values[index], true
}

// Subset implements Source: keeps only the given original indices, in
// the given order.
func (s *ImageSource) Subset(indices []int) error {
	n := s.Len()
	for _, i := range indices {
		if i < 0 || i >= n {
			return &cache.RangeError{Index: i, Length: n}
		}
	}
	for field, paths := range s.files {
		kept := make([]string, len(indices))
		for j, i := range indices {
			kept[j] = paths[i]
		}
		s.files[field] = kept
	}
	for field, values := range s.gts {
		kept := make([]sample.Value, len(indices))
		for j, i := range indices {
			kept[j] = values[i]
		}
		s.gts[field] = kept
	}
	return nil
}

// Remap implements Source: renames a field across the file and
// ground-truth tables. Unknown fields are ignored.
func (s *ImageSource) Remap(old, new string) error {
	if paths, ok := s.files[old]; ok {
		delete(s.files, old)
		s.files[new] = paths
	}
	if values, ok := s.gts[old]; ok {
		delete(s.gts, old)
		s.gts[new] = values
	}
	if s.primary == old {
		s.primary = new
	}
	return nil
}

// DefaultCacheDir returns a cache root under the first image root.
func (s *ImageSource) DefaultCacheDir() string {
	return filepath.Join(s.roots[0], ".imageds-cache")
}
