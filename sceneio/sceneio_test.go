package sceneio

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"

	"github.com/mogaika/recursive_apply_transform/affine"
	"github.com/mogaika/recursive_apply_transform/config"
	"github.com/mogaika/recursive_apply_transform/scene"
	"github.com/mogaika/recursive_apply_transform/utils/gltfutils"
)

const sceneYaml = `
meshes:
  cube:
    vertices:
      - [0, 0, 0]
      - [1, 0, 0]
      - [0, 1, 0]
      - [1, 1, 0]
    faces:
      - [0, 1, 3, 2]
skeletons:
  rig:
    bones:
      - name: spine
        head: [0, 0, 0]
        tail: [0, 0, 1]
root:
  name: Root
  location: [1, 2, 3]
  rotation: [0, 0, 90]
  degrees: true
  selected: true
  children:
    - mesh: cube
    - name: Rig
      skeleton: rig
      locked: true
    - name: Copy
      kind: mesh
      mesh: cube
      scale: [2, 2, 2]
`

func matNear(a, b mgl64.Mat4, eps float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > eps {
			return false
		}
	}
	return true
}

func testScene() *scene.Node {
	shared := &scene.MeshData{
		Vertices: []mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}},
		Faces:    [][]int{{0, 1, 3, 2}},
	}
	root := scene.NewNode("Root")
	root.Transform = affine.FromLocRotScale(mgl64.Vec3{1, 2, 3}, mgl64.Vec3{0.1, 0.2, 0.3}, mgl64.Vec3{1, 1, 1})
	a := root.AddChild(scene.NewMeshNode("A", shared))
	a.Transform = mgl64.Translate3D(0, 1, 0)
	rig := a.AddChild(scene.NewSkeletonNode("Rig", &scene.SkeletonData{Bones: []scene.Bone{
		{Name: "spine", Head: mgl64.Vec3{0, 0, 0}, Tail: mgl64.Vec3{0, 0, 1}},
		{Name: "neck", Head: mgl64.Vec3{0, 0, 1}, Tail: mgl64.Vec3{0, 0.5, 1.5}},
	}}))
	rig.Locked = true
	b := root.AddChild(scene.NewMeshNode("B", shared))
	b.Selected = true
	return root
}

func TestLoadYaml(t *testing.T) {
	root, err := Load(strings.NewReader(sceneYaml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if root.Name != "Root" || len(root.Childs) != 3 || !root.Selected {
		t.Fatalf("unexpected root %s", scene.StringTree(root))
	}
	expected := affine.FromLocRotScale(mgl64.Vec3{1, 2, 3}, mgl64.Vec3{0, 0, math.Pi / 2}, mgl64.Vec3{1, 1, 1})
	if !matNear(root.Transform, expected, 1e-12) {
		t.Errorf("root transform %v; expected %v", root.Transform, expected)
	}

	unnamed := root.Childs[0]
	if unnamed.Kind != scene.KindMesh {
		t.Errorf("kind not inferred from mesh reference: %v", unnamed.Kind)
	}
	if !strings.HasPrefix(unnamed.Name, "mesh_") {
		t.Errorf("generated name %q", unnamed.Name)
	}
	if root.Childs[2].Mesh != unnamed.Mesh {
		t.Errorf("mesh cube must be shared between nodes")
	}
	if rig := root.Find("Rig"); rig == nil || rig.Kind != scene.KindSkeleton || !rig.Locked || len(rig.Skeleton.Bones) != 1 {
		t.Errorf("Rig loaded wrong: %+v", rig)
	}
}

func TestLoadYamlErrors(t *testing.T) {
	for name, src := range map[string]string{
		"no root":       "meshes: {}\n",
		"bad face":      "meshes:\n  m:\n    vertices: [[0, 0, 0]]\n    faces: [[0, 1, 2]]\nroot:\n  mesh: m\n",
		"unknown mesh":  "root:\n  mesh: nope\n",
		"unknown kind":  "root:\n  kind: camera\n",
		"missing data":  "root:\n  kind: skeleton\n",
		"broken syntax": "root: [\n",
	} {
		if _, err := Load(strings.NewReader(src)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadYamlEncoding(t *testing.T) {
	if err := config.SetEncoding("Windows 1251"); err != nil {
		t.Fatal(err)
	}
	defer config.SetEncoding("")

	src := append([]byte("root:\n  name: "), 0xcf, 0xf0, 0xe8, '\n')
	root, err := Load(bytes.NewReader(src))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if root.Name != "\u041f\u0440\u0438" {
		t.Errorf("name decoded as %q", root.Name)
	}
}

func TestSaveLoadYaml(t *testing.T) {
	src := testScene()
	var buf bytes.Buffer
	if err := Save(&buf, src); err != nil {
		t.Fatalf("Save: %v", err)
	}
	root, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v\n%s", err, buf.String())
	}

	if got, expected := scene.StringTree(root), scene.StringTree(src); got != expected {
		t.Errorf("tree after round trip:\n%s\nexpected:\n%s", got, expected)
	}
	a, b := root.Find("A"), root.Find("B")
	if a.Mesh != b.Mesh {
		t.Errorf("shared mesh split after round trip")
	}
	if !matNear(root.Transform, src.Transform, 0) {
		t.Errorf("root transform %v; expected %v", root.Transform, src.Transform)
	}
	if rig := root.Find("Rig"); rig.Skeleton.Bones[1] != src.Find("Rig").Skeleton.Bones[1] {
		t.Errorf("bone %+v", rig.Skeleton.Bones[1])
	}
}

func checkGLTFScene(t *testing.T, root *scene.Node, src *scene.Node) {
	t.Helper()
	if root.Name != "Root" || len(root.Childs) != 2 {
		t.Fatalf("imported tree:\n%s", scene.StringTree(root))
	}
	a, b := root.Find("A"), root.Find("B")
	if a == nil || b == nil || a.Mesh != b.Mesh {
		t.Fatalf("mesh sharing lost:\n%s", scene.StringTree(root))
	}
	if len(a.Mesh.Vertices) != 4 || len(a.Mesh.Faces) != 2 {
		t.Errorf("mesh has %d vertices %d faces", len(a.Mesh.Vertices), len(a.Mesh.Faces))
	}
	if !b.Selected {
		t.Errorf("B lost selection")
	}
	rig := root.Find("Rig")
	if rig == nil || rig.Kind != scene.KindSkeleton || !rig.Locked || len(rig.Skeleton.Bones) != 2 {
		t.Fatalf("rig imported as %+v", rig)
	}
	if rig.Skeleton.Bones[1] != src.Find("Rig").Skeleton.Bones[1] {
		t.Errorf("bone %+v", rig.Skeleton.Bones[1])
	}
	if !matNear(root.Transform, src.Transform, 1e-6) {
		t.Errorf("root transform %v; expected %v", root.Transform, src.Transform)
	}
}

func TestGLTFExportImport(t *testing.T) {
	src := testScene()
	doc, err := ExportGLTF(src)
	if err != nil {
		t.Fatalf("ExportGLTF: %v", err)
	}
	if len(doc.Meshes) != 1 {
		t.Errorf("shared mesh exported %d times", len(doc.Meshes))
	}
	if len(doc.Nodes) != 4 || len(doc.Scenes[0].Nodes) != 1 {
		t.Errorf("%d nodes, %d top level", len(doc.Nodes), len(doc.Scenes[0].Nodes))
	}

	root, err := ImportGLTF(doc)
	if err != nil {
		t.Fatalf("ImportGLTF: %v", err)
	}
	checkGLTFScene(t, root, src)
}

func TestGLTFBinaryRoundTrip(t *testing.T) {
	src := testScene()
	doc, err := ExportGLTF(src)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := gltfutils.ExportBinary(&buf, doc); err != nil {
		t.Fatalf("ExportBinary: %v", err)
	}

	var decoded gltf.Document
	if err := gltf.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	root, err := ImportGLTF(&decoded)
	if err != nil {
		t.Fatalf("ImportGLTF: %v", err)
	}
	checkGLTFScene(t, root, src)
}

func TestImportGLTFSeveralRoots(t *testing.T) {
	doc := gltf.NewDocument()
	doc.Nodes = []*gltf.Node{
		{Name: "left", Translation: [3]float32{-1, 0, 0}},
		{Name: "right", Translation: [3]float32{1, 0, 0}, Scale: [3]float32{2, 2, 2}},
	}
	doc.Scenes[0].Nodes = []uint32{0, 1}

	root, err := ImportGLTF(doc)
	if err != nil {
		t.Fatalf("ImportGLTF: %v", err)
	}
	if root.Kind != scene.KindOther || len(root.Childs) != 2 {
		t.Fatalf("imported tree:\n%s", scene.StringTree(root))
	}
	if !matNear(root.Childs[1].Transform, mgl64.Translate3D(1, 0, 0).Mul4(mgl64.Scale3D(2, 2, 2)), 1e-6) {
		t.Errorf("right transform %v", root.Childs[1].Transform)
	}

	doc.Nodes[0].Children = []uint32{1}
	if _, err := ImportGLTF(doc); err == nil {
		t.Errorf("node referenced twice must fail")
	}
}

func TestExportFBXSharesGeometry(t *testing.T) {
	f := ExportFBX(testScene(), "scene.fbx")

	counts := make(map[string]int)
	for _, o := range f.Objects() {
		counts[o.Name]++
	}
	if counts["Geometry"] != 1 {
		t.Errorf("%d Geometry objects; expected 1", counts["Geometry"])
	}
	// 4 scene nodes and 2 bones
	if counts["Model"] != 6 {
		t.Errorf("%d Model objects; expected 6", counts["Model"])
	}
}

func TestEncodeDecodeByExtension(t *testing.T) {
	src := testScene()
	for _, name := range []string{"out.yaml", "out.yml", "out.gltf", "out.GLB"} {
		var buf bytes.Buffer
		if err := Encode(&buf, src, name); err != nil {
			t.Errorf("Encode %s: %v", name, err)
			continue
		}
		root, err := Decode(&buf, name)
		if err != nil {
			t.Errorf("Decode %s: %v", name, err)
			continue
		}
		if root.Find("Rig") == nil || root.Find("A").Mesh != root.Find("B").Mesh {
			t.Errorf("%s:\n%s", name, scene.StringTree(root))
		}
	}

	var buf bytes.Buffer
	if err := Encode(&buf, src, "out.obj"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Encode obj: %v", err)
	}
	if _, err := Decode(strings.NewReader(""), "in.fbx"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Decode fbx: %v", err)
	}
}

func TestExportNodesWithoutGeometry(t *testing.T) {
	root := scene.NewNode("Root")
	root.AddChild(scene.NewMeshNode("Empty", nil))
	root.AddChild(scene.NewSkeletonNode("Bare", nil))

	var buf bytes.Buffer
	if err := Save(&buf, root); err != nil {
		t.Errorf("Save: %v", err)
	}
	doc, err := ExportGLTF(root)
	if err != nil {
		t.Errorf("ExportGLTF: %v", err)
	} else if len(doc.Meshes) != 0 || len(doc.Nodes) != 3 {
		t.Errorf("%d meshes, %d nodes", len(doc.Meshes), len(doc.Nodes))
	}
	counts := make(map[string]int)
	for _, o := range ExportFBX(root, "scene.fbx").Objects() {
		counts[o.Name]++
	}
	if counts["Geometry"] != 0 || counts["Model"] != 3 {
		t.Errorf("fbx objects %v", counts)
	}
}

func TestImportGLTFBrokenAccessors(t *testing.T) {
	var tests = []struct {
		name    string
		corrupt func(doc *gltf.Document)
	}{
		{"positions", func(doc *gltf.Document) { doc.Meshes[0].Primitives[0].Attributes["POSITION"] = 99 }},
		{"indices", func(doc *gltf.Document) { doc.Meshes[0].Primitives[0].Indices = gltf.Index(99) }},
		{"buffer view", func(doc *gltf.Document) {
			for _, acr := range doc.Accessors {
				acr.BufferView = gltf.Index(99)
			}
		}},
		{"short buffer", func(doc *gltf.Document) {
			for _, bv := range doc.BufferViews {
				bv.ByteLength += 1 << 20
			}
		}},
	}
	for _, test := range tests {
		doc, err := ExportGLTF(testScene())
		if err != nil {
			t.Fatal(err)
		}
		test.corrupt(doc)
		if _, err := ImportGLTF(doc); err == nil {
			t.Errorf("%s: broken document imported", test.name)
		}
	}
}
