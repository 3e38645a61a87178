package config

import (
	"io/ioutil"
	"math"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/mogaika/recursive_apply_transform/utils"
)

const MinScale = 0.0001

var ErrInvalidTarget = errors.New("invalid target transform")

// TargetTransform is what the root is moved to. Rotation is intrinsic XYZ euler in radians.
type TargetTransform struct {
	Location mgl64.Vec3 `json:"location"`
	Rotation mgl64.Vec3 `json:"rotation"`
	Scale    mgl64.Vec3 `json:"scale"`
}

func DefaultTarget() TargetTransform {
	return TargetTransform{Scale: mgl64.Vec3{1, 1, 1}}
}

func (t TargetTransform) Validate() error {
	for name, v := range map[string]mgl64.Vec3{"location": t.Location, "rotation": t.Rotation, "scale": t.Scale} {
		for i, c := range v {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return errors.Wrapf(ErrInvalidTarget, "%s[%d] is %v", name, i, c)
			}
		}
	}
	for i, c := range t.Scale {
		if c < MinScale {
			return errors.Wrapf(ErrInvalidTarget, "scale[%d] = %v, minimum is %v", i, c, MinScale)
		}
	}
	return nil
}

// TargetFile is the on-disk / on-wire form of a target. Missing scale means 1.
type TargetFile struct {
	Root     string      `yaml:"root,omitempty" json:"root,omitempty"`
	Location mgl64.Vec3  `yaml:"location" json:"location"`
	Rotation mgl64.Vec3  `yaml:"rotation" json:"rotation"`
	Degrees  bool        `yaml:"degrees,omitempty" json:"degrees,omitempty"`
	Scale    *mgl64.Vec3 `yaml:"scale,omitempty" json:"scale,omitempty"`
}

func (f TargetFile) Target() (TargetTransform, error) {
	t := DefaultTarget()
	t.Location = f.Location
	t.Rotation = f.Rotation
	if f.Degrees {
		t.Rotation = utils.DegreeToRadiansV3(f.Rotation)
	}
	if f.Scale != nil {
		t.Scale = *f.Scale
	}
	return t, t.Validate()
}

func ParseTarget(data []byte) (TargetTransform, string, error) {
	var f TargetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return TargetTransform{}, "", errors.Wrapf(err, "Failed to parse target")
	}
	t, err := f.Target()
	return t, f.Root, err
}

func LoadTarget(path string) (TargetTransform, string, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return TargetTransform{}, "", errors.Wrapf(err, "Cannot read target file %q", path)
	}
	return ParseTarget(data)
}

// ParseVec3 parses "x,y,z".
func ParseVec3(s string) (mgl64.Vec3, error) {
	var v mgl64.Vec3
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return v, errors.Errorf("expected 3 comma separated numbers, got %q", s)
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return v, errors.Wrapf(err, "component %d of %q", i, s)
		}
		v[i] = f
	}
	return v, nil
}
