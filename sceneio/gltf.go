package sceneio

import (
	"encoding/json"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/mogaika/recursive_apply_transform/scene"
	"github.com/mogaika/recursive_apply_transform/utils"
	"github.com/mogaika/recursive_apply_transform/utils/gltfutils"
)

type gltfBone struct {
	Name string     `json:"name,omitempty"`
	Head [3]float64 `json:"head"`
	Tail [3]float64 `json:"tail"`
}

// stored in node extras, glTF has no notion of edit bones or locks
type gltfNodeExtras struct {
	Kind     string     `json:"kind"`
	Skeleton *int       `json:"skeleton,omitempty"`
	Bones    []gltfBone `json:"bones,omitempty"`
	Locked   bool       `json:"locked,omitempty"`
	Selected bool       `json:"selected,omitempty"`
}

// ExportGLTF converts the hierarchy under root into a glTF document with a
// single scene. Meshes shared between nodes are written once.
func ExportGLTF(root *scene.Node) (*gltf.Document, error) {
	c := gltfutils.NewCacher()
	doc := c.Doc
	skeletons := make(map[*scene.SkeletonData]int)

	var export func(n *scene.Node) (uint32, error)
	export = func(n *scene.Node) (uint32, error) {
		gn := &gltf.Node{
			Name:     n.Name,
			Matrix:   utils.Mat4To32(n.Transform),
			Rotation: gltf.DefaultRotation,
			Scale:    gltf.DefaultScale,
		}
		extras := &gltfNodeExtras{
			Kind:     n.Kind.String(),
			Locked:   n.Locked,
			Selected: n.Selected,
		}
		gn.Extras = extras
		idx := uint32(len(doc.Nodes))
		doc.Nodes = append(doc.Nodes, gn)

		switch g := n.Geometry().(type) {
		case *scene.MeshData:
			if len(g.Vertices) != 0 {
				meshIdx := c.GetCachedOr(g, func() interface{} {
					return exportGLTFMesh(doc, n.Name, g)
				}).(uint32)
				gn.Mesh = gltf.Index(meshIdx)
			}
		case *scene.SkeletonData:
			id, ok := skeletons[g]
			if !ok {
				id = len(skeletons)
				skeletons[g] = id
			}
			extras.Skeleton = &id
			for _, b := range g.Bones {
				extras.Bones = append(extras.Bones, gltfBone{Name: b.Name, Head: b.Head, Tail: b.Tail})
			}
		}

		for _, child := range n.Childs {
			ci, err := export(child)
			if err != nil {
				return 0, err
			}
			gn.Children = append(gn.Children, ci)
		}
		return idx, nil
	}

	rootIdx, err := export(root)
	if err != nil {
		return nil, err
	}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, rootIdx)
	return doc, nil
}

func exportGLTFMesh(doc *gltf.Document, name string, mesh *scene.MeshData) uint32 {
	positions := make([][3]float32, len(mesh.Vertices))
	for i, v := range mesh.Vertices {
		positions[i] = utils.Vec3To32(v)
	}

	primitive := &gltf.Primitive{
		Attributes: map[string]uint32{
			"POSITION": modeler.WritePosition(doc, positions),
		},
		Mode: gltf.PrimitivePoints,
	}

	// polygons are fanned into triangles
	var indices []uint32
	for _, face := range mesh.Faces {
		for i := 2; i < len(face); i++ {
			indices = append(indices, uint32(face[0]), uint32(face[i-1]), uint32(face[i]))
		}
	}
	if len(indices) != 0 {
		primitive.Indices = gltf.Index(modeler.WriteIndices(doc, indices))
		primitive.Mode = gltf.PrimitiveTriangles
	}

	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Name:       name,
		Primitives: []*gltf.Primitive{primitive},
	})
	return uint32(len(doc.Meshes) - 1)
}

// ImportGLTF builds a hierarchy from the default scene of doc. A scene with
// several top level nodes gets an extra root of kind other.
func ImportGLTF(doc *gltf.Document) (*scene.Node, error) {
	sceneIdx := uint32(0)
	if doc.Scene != nil {
		sceneIdx = *doc.Scene
	}
	if int(sceneIdx) >= len(doc.Scenes) {
		return nil, errors.Errorf("document has no scene %d", sceneIdx)
	}

	imp := &gltfImporter{
		doc:       doc,
		meshes:    make(map[uint32]*scene.MeshData),
		skeletons: make(map[int]*scene.SkeletonData),
		used:      make(map[uint32]bool),
	}
	for _, n := range doc.Nodes {
		if n.Name != "" {
			imp.names.Reserve(n.Name)
		}
	}

	top := doc.Scenes[sceneIdx].Nodes
	if len(top) == 1 {
		root, err := imp.node(top[0])
		if err != nil {
			return nil, err
		}
		return root, root.Validate()
	}

	root := scene.NewNode(imp.names.RandomName("scene_"))
	for _, idx := range top {
		n, err := imp.node(idx)
		if err != nil {
			return nil, err
		}
		root.AddChild(n)
	}
	return root, root.Validate()
}

type gltfImporter struct {
	doc       *gltf.Document
	meshes    map[uint32]*scene.MeshData
	skeletons map[int]*scene.SkeletonData
	used      map[uint32]bool
	names     utils.RandomNameGenerator
}

func (imp *gltfImporter) node(idx uint32) (*scene.Node, error) {
	if int(idx) >= len(imp.doc.Nodes) {
		return nil, errors.Errorf("node index %d out of range", idx)
	}
	if imp.used[idx] {
		return nil, errors.Errorf("node %d is referenced twice", idx)
	}
	imp.used[idx] = true
	gn := imp.doc.Nodes[idx]

	var extras gltfNodeExtras
	if gn.Extras != nil {
		// extras are whatever the json decoder produced, round trip them into our struct
		raw, err := json.Marshal(gn.Extras)
		if err != nil {
			return nil, errors.Wrapf(err, "node %d extras", idx)
		}
		if err := json.Unmarshal(raw, &extras); err != nil {
			return nil, errors.Wrapf(err, "node %d extras", idx)
		}
	}

	kind, err := scene.ParseKind(extras.Kind)
	if err != nil {
		return nil, errors.Wrapf(err, "node %d", idx)
	}
	if gn.Mesh != nil {
		kind = scene.KindMesh
	}

	name := gn.Name
	if name == "" {
		name = imp.names.RandomName(kind.String() + "_")
	}
	n := scene.NewNode(name)
	n.Kind = kind
	n.Transform = gltfNodeTransform(gn)
	n.Locked = extras.Locked
	n.Selected = extras.Selected

	switch kind {
	case scene.KindMesh:
		if gn.Mesh == nil {
			n.Mesh = &scene.MeshData{}
		} else if n.Mesh, err = imp.mesh(*gn.Mesh); err != nil {
			return nil, errors.Wrapf(err, "node %q", name)
		}
	case scene.KindSkeleton:
		n.Skeleton = imp.skeleton(extras)
	}

	for _, ci := range gn.Children {
		c, err := imp.node(ci)
		if err != nil {
			return nil, err
		}
		n.AddChild(c)
	}
	return n, nil
}

func (imp *gltfImporter) mesh(idx uint32) (*scene.MeshData, error) {
	if mesh, ok := imp.meshes[idx]; ok {
		return mesh, nil
	}
	if int(idx) >= len(imp.doc.Meshes) {
		return nil, errors.Errorf("mesh index %d out of range", idx)
	}

	mesh := &scene.MeshData{}
	for pi, p := range imp.doc.Meshes[idx].Primitives {
		posAcr, ok := p.Attributes["POSITION"]
		if !ok {
			continue
		}
		acr, err := imp.accessor(posAcr)
		if err != nil {
			return nil, errors.Wrapf(err, "mesh %d primitive %d positions", idx, pi)
		}
		positions, err := modeler.ReadPosition(imp.doc, acr, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "mesh %d primitive %d positions", idx, pi)
		}
		base := len(mesh.Vertices)
		for _, pos := range positions {
			mesh.Vertices = append(mesh.Vertices, utils.Vec3From32(pos))
		}

		if p.Indices != nil && p.Mode == gltf.PrimitiveTriangles {
			acr, err := imp.accessor(*p.Indices)
			if err != nil {
				return nil, errors.Wrapf(err, "mesh %d primitive %d indices", idx, pi)
			}
			indices, err := modeler.ReadIndices(imp.doc, acr, nil)
			if err != nil {
				return nil, errors.Wrapf(err, "mesh %d primitive %d indices", idx, pi)
			}
			for i := 0; i+2 < len(indices); i += 3 {
				face := []int{base + int(indices[i]), base + int(indices[i+1]), base + int(indices[i+2])}
				for _, fi := range face {
					if fi >= len(mesh.Vertices) {
						return nil, errors.Errorf("mesh %d primitive %d: index %d out of range", idx, pi, fi)
					}
				}
				mesh.Faces = append(mesh.Faces, face)
			}
		}
	}
	imp.meshes[idx] = mesh
	return mesh, nil
}

// accessor returns accessor idx after checking that the data it points at exists.
func (imp *gltfImporter) accessor(idx uint32) (*gltf.Accessor, error) {
	if int(idx) >= len(imp.doc.Accessors) || imp.doc.Accessors[idx] == nil {
		return nil, errors.Errorf("accessor index %d out of range", idx)
	}
	acr := imp.doc.Accessors[idx]
	if acr.BufferView == nil {
		return acr, nil
	}
	if int(*acr.BufferView) >= len(imp.doc.BufferViews) || imp.doc.BufferViews[*acr.BufferView] == nil {
		return nil, errors.Errorf("accessor %d: buffer view %d out of range", idx, *acr.BufferView)
	}
	bv := imp.doc.BufferViews[*acr.BufferView]
	if int(bv.Buffer) >= len(imp.doc.Buffers) || imp.doc.Buffers[bv.Buffer] == nil {
		return nil, errors.Errorf("accessor %d: buffer %d out of range", idx, bv.Buffer)
	}
	if end := uint64(bv.ByteOffset) + uint64(bv.ByteLength); end > uint64(len(imp.doc.Buffers[bv.Buffer].Data)) {
		return nil, errors.Errorf("accessor %d: buffer view %d ends at %d past buffer %d", idx, *acr.BufferView, end, bv.Buffer)
	}
	return acr, nil
}

func (imp *gltfImporter) skeleton(extras gltfNodeExtras) *scene.SkeletonData {
	if extras.Skeleton != nil {
		if sk, ok := imp.skeletons[*extras.Skeleton]; ok {
			return sk
		}
	}
	sk := &scene.SkeletonData{Bones: make([]scene.Bone, len(extras.Bones))}
	for i, b := range extras.Bones {
		sk.Bones[i] = scene.Bone{Name: b.Name, Head: b.Head, Tail: b.Tail}
	}
	if extras.Skeleton != nil {
		imp.skeletons[*extras.Skeleton] = sk
	}
	return sk
}

var (
	gltfZeroMatrix [16]float32
	gltfZeroScale  [3]float32
)

func gltfNodeTransform(gn *gltf.Node) mgl64.Mat4 {
	if gn.Matrix != gltf.DefaultMatrix && gn.Matrix != gltfZeroMatrix {
		return utils.Mat4From32(gn.Matrix)
	}
	t := mgl64.Translate3D(float64(gn.Translation[0]), float64(gn.Translation[1]), float64(gn.Translation[2]))

	r := mgl64.Ident4()
	if q := gn.Rotation; q != [4]float32{} {
		r = mgl64.Quat{
			W: float64(q[3]),
			V: mgl64.Vec3{float64(q[0]), float64(q[1]), float64(q[2])},
		}.Normalize().Mat4()
	}

	s := mgl64.Ident4()
	if gn.Scale != gltfZeroScale {
		s = mgl64.Scale3D(float64(gn.Scale[0]), float64(gn.Scale[1]), float64(gn.Scale[2]))
	}
	return t.Mul4(r).Mul4(s)
}
