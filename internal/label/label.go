// Package label implements the label map (C9 support): a per-point set
// of label ids backed by roaring-bitmap posting lists, a label-to-seed-
// medoids map, and an optional universal label that matches every filter.
package label

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
)

// ErrUnknownLabel is returned when a filter string has no entry in the
// label map and no universal label is defined.
type ErrUnknownLabel struct {
	Label string
}

func (e *ErrUnknownLabel) Error() string {
	return fmt.Sprintf("label: unknown label %q", e.Label)
}

// Map resolves user-facing label strings to integer ids, holds one
// roaring-bitmap posting list per label id, and knows which points carry
// which labels. A universal label, if set, matches every filter: points
// that carry it pass any label filter, and a filter for the universal
// label itself accepts every point.
type Map struct {
	nameToID map[string]uint32
	postings map[uint32]*roaring.Bitmap // label id -> point ids
	pointsOf [][]uint32                 // pointsOf[pointID] = its label ids
	seeds    map[uint32][]uint32        // label id -> seed medoid ids
	universal uint32
	hasUniversal bool
}

// New builds an empty Map.
func New() *Map {
	return &Map{
		nameToID: make(map[string]uint32),
		postings: make(map[uint32]*roaring.Bitmap),
		seeds:    make(map[uint32][]uint32),
	}
}

// LoadLabelsMap parses `_labels_map.txt`: tab-separated "string<TAB>id" lines.
func (m *Map) LoadLabelsMap(r io.Reader) error {
	sc := bufio.NewScanner(r)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, "\t")
		if len(parts) != 2 {
			return fmt.Errorf("label: malformed labels_map line %q", line)
		}

		id, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return fmt.Errorf("label: bad label id in %q: %w", line, err)
		}

		m.nameToID[parts[0]] = uint32(id)
	}

	return sc.Err()
}

// LoadLabels parses `_labels.txt`: one line per point, comma-separated
// numeric label ids, and builds the posting lists.
func (m *Map) LoadLabels(r io.Reader) error {
	sc := bufio.NewScanner(r)

	var pointID uint32

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		var ids []uint32

		if line != "" {
			for _, tok := range strings.Split(line, ",") {
				v, err := strconv.ParseUint(strings.TrimSpace(tok), 10, 32)
				if err != nil {
					return fmt.Errorf("label: bad label id at point %d: %w", pointID, err)
				}

				lid := uint32(v)
				ids = append(ids, lid)

				bm, ok := m.postings[lid]
				if !ok {
					bm = roaring.New()
					m.postings[lid] = bm
				}

				bm.Add(pointID)
			}
		}

		m.pointsOf = append(m.pointsOf, ids)
		pointID++
	}

	return sc.Err()
}

// LoadLabelsToMedoids parses `_labels_to_medoids.txt`: csv "label, m1, m2, ...".
func (m *Map) LoadLabelsToMedoids(r io.Reader) error {
	sc := bufio.NewScanner(r)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, ",")

		label, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
		if err != nil {
			return fmt.Errorf("label: bad label in labels_to_medoids %q: %w", line, err)
		}

		medoids := make([]uint32, 0, len(parts)-1)

		for _, tok := range parts[1:] {
			v, err := strconv.ParseUint(strings.TrimSpace(tok), 10, 32)
			if err != nil {
				return fmt.Errorf("label: bad medoid in labels_to_medoids %q: %w", line, err)
			}

			medoids = append(medoids, uint32(v))
		}

		m.seeds[uint32(label)] = medoids
	}

	return sc.Err()
}

// SetUniversalLabel parses `_universal_label.txt`'s single integer.
func (m *Map) SetUniversalLabel(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	v, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 32)
	if err != nil {
		return fmt.Errorf("label: bad universal label: %w", err)
	}

	m.universal = uint32(v)
	m.hasUniversal = true

	return nil
}

// Resolve maps a user-facing label string to its integer id, failing
// with ErrUnknownLabel if absent and no universal label is defined.
func (m *Map) Resolve(name string) (uint32, error) {
	if id, ok := m.nameToID[name]; ok {
		return id, nil
	}

	if m.hasUniversal {
		return m.universal, nil
	}

	return 0, &ErrUnknownLabel{Label: name}
}

// SeedMedoids returns the seed medoid ids associated with a label id.
func (m *Map) SeedMedoids(label uint32) []uint32 {
	return m.seeds[label]
}

// HasUniversal reports whether a universal label is configured.
func (m *Map) HasUniversal() bool {
	return m.hasUniversal
}

// Universal returns the universal label id; only meaningful if
// HasUniversal is true.
func (m *Map) Universal() uint32 {
	return m.universal
}

// Accepts reports whether point id passes a filter for label: it does if
// label is the universal label, if the point carries label, or if the
// point carries the universal label.
func (m *Map) Accepts(id uint32, label uint32) bool {
	if m.hasUniversal && label == m.universal {
		return true
	}

	if bm, ok := m.postings[label]; ok && bm.Contains(id) {
		return true
	}

	return m.hasUniversal && m.pointHasUniversal(id)
}

func (m *Map) pointHasUniversal(id uint32) bool {
	if int(id) >= len(m.pointsOf) {
		return false
	}

	for _, l := range m.pointsOf[id] {
		if l == m.universal {
			return true
		}
	}

	return false
}
