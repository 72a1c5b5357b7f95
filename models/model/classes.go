package model

import (
	"fmt"

	"github.com/pkg/errors"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet ties a family to its full list of labels.
type OutputClassSet struct {
	// Class set identifier.
	Family Family
	// Classes that are supported and mappable, indexed by label id.
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// NewOutputClassSet builds a set whose label ids are the positions of names.
func NewOutputClassSet(family Family, names ...string) *OutputClassSet {
	s := &OutputClassSet{Family: family, Classes: make([]OutputClass, len(names))}
	for i, name := range names {
		s.Classes[i] = OutputClass{Index: i, Name: name}
	}
	s.buildNameIndexMap()

	return s
}

func (s *OutputClassSet) buildNameIndexMap() {
	s.nameToIdx = make(map[string]int, len(s.Classes))
	for _, c := range s.Classes {
		s.nameToIdx[c.Name] = c.Index
	}
}

// Name returns the label for idx.
func (s *OutputClassSet) Name(idx int) (string, error) {
	if idx < 0 || idx >= len(s.Classes) {
		return "", errors.Errorf("index %d out of range for family %q", idx, s.Family)
	}

	return s.Classes[idx].Name, nil
}

// Index returns the label id for name.
func (s *OutputClassSet) Index(name string) (int, error) {
	idx, ok := s.nameToIdx[name]
	if !ok {
		return -1, errors.Errorf("name %q not found in family %q", name, s.Family)
	}

	return idx, nil
}

// Label returns the name for idx, or "class_<idx>" when the set does not cover it.
func (s *OutputClassSet) Label(idx int) string {
	if s != nil {
		if name, err := s.Name(idx); err == nil {
			return name
		}
	}

	return fmt.Sprintf("class_%d", idx)
}

// ClassManager holds all registered class sets.
type ClassManager struct {
	sets map[Family]*OutputClassSet
}

// NewClassManager initializes and registers the given sets.
func NewClassManager(sets ...*OutputClassSet) *ClassManager {
	mgr := &ClassManager{sets: make(map[Family]*OutputClassSet, len(sets))}
	for _, set := range sets {
		mgr.sets[set.Family] = set
	}

	return mgr
}

// Get returns the set registered for family.
func (m *ClassManager) Get(family Family) (*OutputClassSet, error) {
	set, ok := m.sets[family]
	if !ok {
		return nil, errors.Errorf("family %q not registered", family)
	}

	return set, nil
}

// MapClass maps an index from one family to another, returning the target OutputClass.
func (m *ClassManager) MapClass(from Family, idx int, to Family) (OutputClass, error) {
	src, err := m.Get(from)
	if err != nil {
		return OutputClass{}, err
	}
	dst, err := m.Get(to)
	if err != nil {
		return OutputClass{}, err
	}

	name, err := src.Name(idx)
	if err != nil {
		return OutputClass{}, err
	}
	toIdx, err := dst.Index(name)
	if err != nil {
		return OutputClass{}, err
	}

	return OutputClass{Index: toIdx, Name: name}, nil
}

var cocoNames = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier",
	"toothbrush",
}

// COCOClasses is the full 80 COCO classes plus "__background__" at index 0.
var COCOClasses = NewOutputClassSet(ModelFamilyCOCO, append([]string{"__background__"}, cocoNames...)...)

// YOLOClasses is the 80 COCO classes (no background).
// YOLO models index directly into this zero-based list.
var YOLOClasses = NewOutputClassSet(ModelFamilyYOLO, cocoNames...)

// FaceClasses is the two-way face detector label set; label 1 is "face".
var FaceClasses = NewOutputClassSet(ModelFamilyFace, "background", "face")

// Classes is the manager holding every built-in set.
var Classes = NewClassManager(COCOClasses, YOLOClasses, FaceClasses)
