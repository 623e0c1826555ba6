package imageds

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/hupe1980/imageds/sample"
)

// WithLabelField sets the field name folder-derived labels are stored
// under (default "label").
func WithLabelField(field string) ImageSourceOption {
	return func(c *sourceConfig) { c.labelField = field }
}

// WithLabelCSV reads per-item labels from a CSV file instead of parent
// folder names. fileColumn holds the image id each row belongs to;
// labelColumns name the label columns to attach (default "label").
func WithLabelCSV(path, fileColumn string, labelColumns ...string) ImageSourceOption {
	return func(c *sourceConfig) {
		c.labelCSV = path
		c.fileColumn = fileColumn
		c.labelColumns = labelColumns
	}
}

// ClassificationSource is an ImageSource with one or more integer label
// columns per item. Labels come from the parent folder name of each
// image, or from a CSV file matched by image id. String labels are
// remapped to dense integer ids; the mapping is available via Classes.
type ClassificationSource struct {
	*ImageSource

	classes map[string][]string // label field -> id -> original label
}

// NewClassificationSource lists images like NewImageSource and attaches
// label columns.
func NewClassificationSource(roots []string, opts ...ImageSourceOption) (*ClassificationSource, error) {
	base, err := NewImageSource(roots, opts...)
	if err != nil {
		return nil, err
	}

	s := &ClassificationSource{
		ImageSource: base,
		classes:     make(map[string][]string),
	}

	if base.cfg.labelCSV != "" {
		err = s.labelsFromCSV()
	} else {
		err = s.labelsFromFolders()
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ClassificationSource) labelsFromFolders() error {
	raw := make([]string, s.Len())
	for i, path := range s.files[ImageField] {
		raw[i] = filepath.Base(filepath.Dir(path))
	}
	return s.attachColumn(s.cfg.labelField, raw)
}

func (s *ClassificationSource) labelsFromCSV() error {
	f, err := os.Open(s.cfg.labelCSV)
	if err != nil {
		return fmt.Errorf("opening label file: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.cfg.labelCSV, err)
	}
	if len(rows) < 2 {
		return fmt.Errorf("label file %s has no data rows", s.cfg.labelCSV)
	}

	header := rows[0]
	col := func(name string) int {
		for i, h := range header {
			if h == name {
				return i
			}
		}
		return -1
	}

	fileCol := col(s.cfg.fileColumn)
	if fileCol < 0 {
		return fmt.Errorf("label file %s: no column %q", s.cfg.labelCSV, s.cfg.fileColumn)
	}

	labelColumns := s.cfg.labelColumns
	if len(labelColumns) == 0 {
		labelColumns = []string{s.cfg.labelField}
	}

	byID := make(map[string][]string, len(rows)-1)
	for _, row := range rows[1:] {
		byID[stem(row[fileCol])] = row
	}

	for _, name := range labelColumns {
		c := col(name)
		if c < 0 {
			return fmt.Errorf("label file %s: no column %q", s.cfg.labelCSV, name)
		}

		raw := make([]string, s.Len())
		for i, path := range s.files[ImageField] {
			id := s.cfg.extractID(path)
			row, ok := byID[id]
			if !ok {
				return fmt.Errorf("label file %s: no row for %q", s.cfg.labelCSV, id)
			}
			raw[i] = row[c]
		}
		if err := s.attachColumn(name, raw); err != nil {
			return err
		}
	}
	return nil
}

// attachColumn remaps raw labels to integers and stores them as a
// scalar ground-truth column. Numeric labels are kept as-is; string
// labels get dense ids in sorted order, recorded in classes.
func (s *ClassificationSource) attachColumn(field string, raw []string) error {
	numeric := true
	for _, v := range raw {
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			numeric = false
			break
		}
	}

	values := make([]sample.Value, len(raw))
	if numeric {
		for i, v := range raw {
			n, _ := strconv.ParseInt(v, 10, 64)
			values[i] = sample.Int(n)
		}
		return s.AddScalarField(field, values)
	}

	seen := make(map[string]struct{}, len(raw))
	for _, v := range raw {
		seen[v] = struct{}{}
	}
	labels := make([]string, 0, len(seen))
	for v := range seen {
		labels = append(labels, v)
	}
	sort.Strings(labels)

	ids := make(map[string]int64, len(labels))
	for i, v := range labels {
		ids[v] = int64(i)
	}
	for i, v := range raw {
		values[i] = sample.Int(ids[v])
	}

	if err := s.AddScalarField(field, values); err != nil {
		return err
	}
	s.classes[field] = labels
	return nil
}

// Classes returns the original string labels by integer id for a label
// field, or nil when the labels were numeric to begin with.
func (s *ClassificationSource) Classes(field string) []string {
	return s.classes[field]
}

// NClasses returns the number of distinct labels in a field.
func (s *ClassificationSource) NClasses(field string) int {
	if labels, ok := s.classes[field]; ok {
		return len(labels)
	}
	seen := make(map[int64]struct{})
	for _, v := range s.gts[field] {
		seen[v.I64] = struct{}{}
	}
	return len(seen)
}

// ClassCount returns the number of items per label id.
func (s *ClassificationSource) ClassCount(field string) map[int64]int {
	counts := make(map[int64]int)
	for _, v := range s.gts[field] {
		counts[v.I64]++
	}
	return counts
}

// Remap renames a label field, keeping the class mapping attached.
func (s *ClassificationSource) Remap(old, new string) error {
	if labels, ok := s.classes[old]; ok {
		delete(s.classes, old)
		s.classes[new] = labels
	}
	return s.ImageSource.Remap(old, new)
}
