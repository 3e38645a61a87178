package scene

import (
	"bytes"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

func (n *Node) StringNode(spaces string) string {
	t := n.Transform.Col(3)
	s := fmt.Sprintf("%s%s [%v] pos: %.4f %.4f %.4f", spaces, n.Name, n.Kind, t[0], t[1], t[2])
	switch n.Kind {
	case KindMesh:
		if n.Mesh != nil {
			s += fmt.Sprintf(" verts: %d", len(n.Mesh.Vertices))
		}
	case KindSkeleton:
		if n.Skeleton != nil {
			s += fmt.Sprintf(" bones: %d", len(n.Skeleton.Bones))
		}
	}
	if n.Locked {
		s += " locked"
	}
	if n.Selected {
		s += " selected"
	}
	return s + "\n"
}

func StringTree(root *Node) string {
	var buffer bytes.Buffer

	type entry struct {
		n     *Node
		depth int
	}
	stack := make([]entry, 0, 32)
	stack = append(stack, entry{root, 0})

	for len(stack) != 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		buffer.WriteString(e.n.StringNode(string(bytes.Repeat([]byte("  "), e.depth))))

		for i := len(e.n.Childs) - 1; i >= 0; i-- {
			stack = append(stack, entry{e.n.Childs[i], e.depth + 1})
		}
	}
	return buffer.String()
}

// GeometryUsers counts how many nodes of the subtree reference each geometry instance.
func GeometryUsers(root *Node) map[interface{}]int {
	users := make(map[interface{}]int)
	root.Walk(func(n *Node) error {
		if g := n.Geometry(); g != nil {
			users[g]++
		}
		return nil
	})
	return users
}

// WorldVertices returns every vertex and bone endpoint of the subtree in the
// space of top's parent, plus descendant origins, keyed by node. Shared geometry is listed once per user.
func WorldVertices(top *Node) map[*Node][]mgl64.Vec3 {
	out := make(map[*Node][]mgl64.Vec3)
	top.Walk(func(n *Node) error {
		m := n.WorldRelative(top)
		var pts []mgl64.Vec3
		switch g := n.Geometry().(type) {
		case *MeshData:
			for _, v := range g.Vertices {
				pts = append(pts, m.Mul4x1(v.Vec4(1)).Vec3())
			}
		case *SkeletonData:
			for _, b := range g.Bones {
				pts = append(pts, m.Mul4x1(b.Head.Vec4(1)).Vec3(), m.Mul4x1(b.Tail.Vec4(1)).Vec3())
			}
		}
		if n != top {
			// descendant origins are part of the appearance, top's own origin is not
			pts = append(pts, m.Col(3).Vec3())
		}
		out[n] = pts
		return nil
	})
	return out
}
