// Package sceneio reads and writes scenes: YAML scene files, glTF documents
// and FBX exports.
package sceneio

import (
	"fmt"
	"io"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/mogaika/recursive_apply_transform/affine"
	"github.com/mogaika/recursive_apply_transform/config"
	"github.com/mogaika/recursive_apply_transform/scene"
	"github.com/mogaika/recursive_apply_transform/utils"
)

type yamlBone struct {
	Name string     `yaml:"name,omitempty"`
	Head mgl64.Vec3 `yaml:"head,flow"`
	Tail mgl64.Vec3 `yaml:"tail,flow"`
}

type yamlMesh struct {
	Vertices []mgl64.Vec3 `yaml:"vertices"`
	Faces    [][]int      `yaml:"faces,omitempty"`
}

type yamlSkeleton struct {
	Bones []yamlBone `yaml:"bones"`
}

type yamlNode struct {
	Name     string      `yaml:"name,omitempty"`
	Kind     string      `yaml:"kind,omitempty"`
	Mesh     string      `yaml:"mesh,omitempty"`
	Skeleton string      `yaml:"skeleton,omitempty"`
	Location *mgl64.Vec3 `yaml:"location,omitempty,flow"`
	Rotation *mgl64.Vec3 `yaml:"rotation,omitempty,flow"`
	Degrees  bool        `yaml:"degrees,omitempty"`
	Scale    *mgl64.Vec3 `yaml:"scale,omitempty,flow"`
	Matrix   *mgl64.Mat4 `yaml:"matrix,omitempty,flow"`
	Locked   bool        `yaml:"locked,omitempty"`
	Selected bool        `yaml:"selected,omitempty"`
	Children []*yamlNode `yaml:"children,omitempty"`
}

type yamlScene struct {
	Meshes    map[string]*yamlMesh     `yaml:"meshes,omitempty"`
	Skeletons map[string]*yamlSkeleton `yaml:"skeletons,omitempty"`
	Root      *yamlNode                `yaml:"root"`
}

// Load reads a YAML scene. Text is decoded with config.GetEncoding first.
// Geometry referenced by several nodes is shared, unnamed nodes get a generated name.
func Load(r io.Reader) (*scene.Node, error) {
	var ys yamlScene
	if err := yaml.NewDecoder(config.DecodeReader(r)).Decode(&ys); err != nil {
		return nil, errors.Wrapf(err, "Failed to decode scene")
	}
	if ys.Root == nil {
		return nil, errors.New("scene has no root")
	}

	meshes := make(map[string]*scene.MeshData)
	for id, ym := range ys.Meshes {
		for _, face := range ym.Faces {
			for _, idx := range face {
				if idx < 0 || idx >= len(ym.Vertices) {
					return nil, errors.Errorf("mesh %q: face index %d out of range", id, idx)
				}
			}
		}
		meshes[id] = &scene.MeshData{Vertices: ym.Vertices, Faces: ym.Faces}
	}
	skeletons := make(map[string]*scene.SkeletonData)
	for id, ysk := range ys.Skeletons {
		sk := &scene.SkeletonData{Bones: make([]scene.Bone, len(ysk.Bones))}
		for i, b := range ysk.Bones {
			sk.Bones[i] = scene.Bone{Name: b.Name, Head: b.Head, Tail: b.Tail}
		}
		skeletons[id] = sk
	}

	var names utils.RandomNameGenerator
	ys.Root.reserveNames(&names)

	root, err := ys.Root.build(meshes, skeletons, &names)
	if err != nil {
		return nil, err
	}
	return root, root.Validate()
}

func (yn *yamlNode) reserveNames(names *utils.RandomNameGenerator) {
	if yn.Name != "" {
		names.Reserve(yn.Name)
	}
	for _, c := range yn.Children {
		c.reserveNames(names)
	}
}

func (yn *yamlNode) build(meshes map[string]*scene.MeshData, skeletons map[string]*scene.SkeletonData, names *utils.RandomNameGenerator) (*scene.Node, error) {
	kind, err := scene.ParseKind(yn.Kind)
	if err != nil {
		return nil, err
	}
	if yn.Kind == "" {
		// kind inferred from the geometry reference
		if yn.Mesh != "" {
			kind = scene.KindMesh
		} else if yn.Skeleton != "" {
			kind = scene.KindSkeleton
		}
	}

	name := yn.Name
	if name == "" {
		name = names.RandomName(kind.String() + "_")
	}
	n := scene.NewNode(name)
	n.Kind = kind
	n.Locked = yn.Locked
	n.Selected = yn.Selected

	switch kind {
	case scene.KindMesh:
		if n.Mesh = meshes[yn.Mesh]; n.Mesh == nil {
			return nil, errors.Errorf("node %q: unknown mesh %q", name, yn.Mesh)
		}
	case scene.KindSkeleton:
		if n.Skeleton = skeletons[yn.Skeleton]; n.Skeleton == nil {
			return nil, errors.Errorf("node %q: unknown skeleton %q", name, yn.Skeleton)
		}
	}

	if yn.Matrix != nil {
		n.Transform = *yn.Matrix
	} else {
		loc, rot, scale := mgl64.Vec3{}, mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}
		if yn.Location != nil {
			loc = *yn.Location
		}
		if yn.Rotation != nil {
			rot = *yn.Rotation
			if yn.Degrees {
				rot = utils.DegreeToRadiansV3(rot)
			}
		}
		if yn.Scale != nil {
			scale = *yn.Scale
		}
		n.Transform = affine.FromLocRotScale(loc, rot, scale)
	}

	for _, yc := range yn.Children {
		c, err := yc.build(meshes, skeletons, names)
		if err != nil {
			return nil, err
		}
		n.AddChild(c)
	}
	return n, nil
}

// Save writes root as a YAML scene. Transforms are written as full matrices.
func Save(w io.Writer, root *scene.Node) error {
	ys := yamlScene{
		Meshes:    make(map[string]*yamlMesh),
		Skeletons: make(map[string]*yamlSkeleton),
	}
	ids := make(map[interface{}]string)
	taken := make(map[string]bool)
	geometryId := func(n *scene.Node, g interface{}) string {
		if id, ok := ids[g]; ok {
			return id
		}
		id := n.Name
		for i := 1; taken[id]; i++ {
			id = fmt.Sprintf("%s.%03d", n.Name, i)
		}
		taken[id] = true
		ids[g] = id
		return id
	}

	var convert func(n *scene.Node) *yamlNode
	convert = func(n *scene.Node) *yamlNode {
		m := n.Transform
		yn := &yamlNode{
			Name:     n.Name,
			Kind:     n.Kind.String(),
			Matrix:   &m,
			Locked:   n.Locked,
			Selected: n.Selected,
		}
		switch g := n.Geometry().(type) {
		case *scene.MeshData:
			yn.Mesh = geometryId(n, g)
			ys.Meshes[yn.Mesh] = &yamlMesh{Vertices: g.Vertices, Faces: g.Faces}
		case *scene.SkeletonData:
			yn.Skeleton = geometryId(n, g)
			ysk := &yamlSkeleton{Bones: make([]yamlBone, len(g.Bones))}
			for i, b := range g.Bones {
				ysk.Bones[i] = yamlBone{Name: b.Name, Head: b.Head, Tail: b.Tail}
			}
			ys.Skeletons[yn.Skeleton] = ysk
		}
		for _, c := range n.Childs {
			yn.Children = append(yn.Children, convert(c))
		}
		return yn
	}
	ys.Root = convert(root)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&ys); err != nil {
		return errors.Wrapf(err, "Failed to encode scene")
	}
	return enc.Close()
}
