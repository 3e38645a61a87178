package sceneio

import (
	"io"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/mogaika/fbx"
	"github.com/mogaika/fbx/builders/bfbx73"

	"github.com/mogaika/recursive_apply_transform/affine"
	"github.com/mogaika/recursive_apply_transform/scene"
	"github.com/mogaika/recursive_apply_transform/utils"
	"github.com/mogaika/recursive_apply_transform/utils/fbxbuilder"
)

type fbxExportedNode struct {
	ModelId int64
	Model   *fbx.Node
}

// ExportFBX builds an fbx scene of the hierarchy under root. Mesh data shared
// between nodes becomes one Geometry object connected to several models.
// Skeleton bones are exported as LimbNode models parented to the skeleton node.
func ExportFBX(root *scene.Node, filename string) *fbxbuilder.FBXBuilder {
	f := fbxbuilder.NewFBXBuilder(filename)
	exported := exportFbxNode(f, root)
	f.AddConnections(bfbx73.C("OO", exported.ModelId, 0))
	return f
}

func WriteFBX(w io.Writer, root *scene.Node, filename string) error {
	return ExportFBX(root, filename).Write(w)
}

func fbxModel(id int64, name string, class string, m mgl64.Mat4) *fbx.Node {
	loc, rot, scale := affine.Decompose(m)
	rot = utils.RadiansToDegreeV3(rot)
	return bfbx73.Model(id, name+"\x00\x01Model", class).AddNodes(
		bfbx73.Version(232),
		bfbx73.Properties70().AddNodes(
			bfbx73.P("RotationOrder", "enum", "", "", fbxbuilder.RotationOrderZYX),
			bfbx73.P("RotationActive", "bool", "", "", int32(1)),
			bfbx73.P("InheritType", "enum", "", "", int32(1)),
			bfbx73.P("Lcl Translation", "Lcl Translation", "", "A", loc[0], loc[1], loc[2]),
			bfbx73.P("Lcl Rotation", "Lcl Rotation", "", "A", rot[0], rot[1], rot[2]),
			bfbx73.P("Lcl Scaling", "Lcl Scaling", "", "A", scale[0], scale[1], scale[2]),
		),
		bfbx73.Shading(true),
		bfbx73.Culling("CullingOff"),
	)
}

func exportFbxNode(f *fbxbuilder.FBXBuilder, n *scene.Node) *fbxExportedNode {
	g := n.Geometry()
	class := "Null"
	if _, ok := g.(*scene.MeshData); ok {
		class = "Mesh"
	}

	fe := &fbxExportedNode{ModelId: f.GenerateId()}
	fe.Model = fbxModel(fe.ModelId, n.Name, class, n.Transform)
	f.AddObjects(fe.Model)

	switch g := g.(type) {
	case *scene.MeshData:
		geometryId := f.GetCachedOr(g, func() interface{} {
			return exportFbxGeometry(f, g)
		}).(int64)
		f.AddConnections(bfbx73.C("OO", geometryId, fe.ModelId))
	case *scene.SkeletonData:
		exportFbxBones(f, fe, n.Name, g)
	default:
		attrId := f.GenerateId()
		f.AddObjects(bfbx73.NodeAttribute(attrId, n.Name+"\x00\x01NodeAttribute", "Null").AddNodes(
			bfbx73.TypeFlags("Null"),
		))
		f.AddConnections(bfbx73.C("OO", attrId, fe.ModelId))
	}

	for _, c := range n.Childs {
		child := exportFbxNode(f, c)
		f.AddConnections(bfbx73.C("OO", child.ModelId, fe.ModelId))
	}
	return fe
}

func exportFbxGeometry(f *fbxbuilder.FBXBuilder, mesh *scene.MeshData) int64 {
	vertices := make([]float64, 0, len(mesh.Vertices)*3)
	for _, v := range mesh.Vertices {
		vertices = append(vertices, v[0], v[1], v[2])
	}

	// last index of every polygon is stored as -(index)-1
	indexes := make([]int32, 0)
	for _, face := range mesh.Faces {
		for i, idx := range face {
			if i == len(face)-1 {
				indexes = append(indexes, -int32(idx)-1)
			} else {
				indexes = append(indexes, int32(idx))
			}
		}
	}

	id := f.GenerateId()
	f.AddObjects(bfbx73.Geometry(id, "\x00\x01Geometry", "Mesh").AddNodes(
		bfbx73.Properties70(),
		bfbx73.GeometryVersion(124),
		bfbx73.Vertices(vertices),
		bfbx73.PolygonVertexIndex(indexes),
		bfbx73.Layer(0).AddNodes(
			bfbx73.Version(100),
		),
	))
	return id
}

func exportFbxBones(f *fbxbuilder.FBXBuilder, fe *fbxExportedNode, name string, skeleton *scene.SkeletonData) {
	attrId := f.GenerateId()
	f.AddObjects(bfbx73.NodeAttribute(attrId, name+"\x00\x01NodeAttribute", "Null").AddNodes(
		bfbx73.TypeFlags("Null"),
	))
	f.AddConnections(bfbx73.C("OO", attrId, fe.ModelId))

	for _, b := range skeleton.Bones {
		boneId := f.GenerateId()
		f.AddObjects(fbxModel(boneId, b.Name, "LimbNode", mgl64.Translate3D(b.Head[0], b.Head[1], b.Head[2])))

		boneAttrId := f.GenerateId()
		f.AddObjects(bfbx73.NodeAttribute(boneAttrId, b.Name+"\x00\x01NodeAttribute", "LimbNode").AddNodes(
			bfbx73.Properties70().AddNodes(
				bfbx73.P("Size", "double", "Number", "", b.Length()),
			),
			bfbx73.TypeFlags("Skeleton"),
		))
		f.AddConnections(
			bfbx73.C("OO", boneAttrId, boneId),
			bfbx73.C("OO", boneId, fe.ModelId),
		)
	}
}
