package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

type Kind int

const (
	KindOther Kind = iota
	KindMesh
	KindSkeleton
)

func (k Kind) String() string {
	switch k {
	case KindMesh:
		return "mesh"
	case KindSkeleton:
		return "skeleton"
	case KindOther:
		return "other"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "mesh", "MESH":
		return KindMesh, nil
	case "skeleton", "armature", "ARMATURE":
		return KindSkeleton, nil
	case "", "other", "empty", "EMPTY":
		return KindOther, nil
	}
	return KindOther, errors.Errorf("unknown node kind %q", s)
}

// MeshData is vertex positions in the owning node's local space.
// One MeshData may be referenced by several nodes.
type MeshData struct {
	Vertices []mgl64.Vec3
	Faces    [][]int
}

type Bone struct {
	Name string
	Head mgl64.Vec3
	Tail mgl64.Vec3
}

func (b Bone) Length() float64 {
	return b.Tail.Sub(b.Head).Len()
}

type SkeletonData struct {
	Bones []Bone
}

type Node struct {
	Name      string
	Kind      Kind
	Transform mgl64.Mat4

	Mesh     *MeshData
	Skeleton *SkeletonData

	// Locked nodes refuse edit sessions
	Locked   bool
	Selected bool

	Parent *Node
	Childs []*Node
}

func NewNode(name string) *Node {
	return &Node{Name: name, Kind: KindOther, Transform: mgl64.Ident4()}
}

func NewMeshNode(name string, mesh *MeshData) *Node {
	n := NewNode(name)
	n.Kind = KindMesh
	n.Mesh = mesh
	return n
}

func NewSkeletonNode(name string, skeleton *SkeletonData) *Node {
	n := NewNode(name)
	n.Kind = KindSkeleton
	n.Skeleton = skeleton
	return n
}

// AddChild appends c to n's children. c must not already have a parent.
func (n *Node) AddChild(c *Node) *Node {
	if c.Parent != nil {
		panic(fmt.Sprintf("node %q already has parent %q", c.Name, c.Parent.Name))
	}
	c.Parent = n
	n.Childs = append(n.Childs, c)
	return c
}

// Geometry returns the identity of the node's geometry, nil for nodes without any.
func (n *Node) Geometry() interface{} {
	switch n.Kind {
	case KindMesh:
		if n.Mesh != nil {
			return n.Mesh
		}
	case KindSkeleton:
		if n.Skeleton != nil {
			return n.Skeleton
		}
	}
	return nil
}

// Validate checks that the geometry references match the node kinds in the subtree.
func (n *Node) Validate() error {
	return n.Walk(func(c *Node) error {
		switch c.Kind {
		case KindMesh:
			if c.Mesh == nil || c.Skeleton != nil {
				return errors.Errorf("mesh node %q must reference mesh data only", c.Name)
			}
		case KindSkeleton:
			if c.Skeleton == nil || c.Mesh != nil {
				return errors.Errorf("skeleton node %q must reference skeleton data only", c.Name)
			}
		case KindOther:
			if c.Mesh != nil || c.Skeleton != nil {
				return errors.Errorf("node %q of kind other must not reference geometry", c.Name)
			}
		default:
			return errors.Errorf("node %q has invalid kind %v", c.Name, c.Kind)
		}
		for _, child := range c.Childs {
			if child.Parent != c {
				return errors.Errorf("node %q has broken parent link", child.Name)
			}
		}
		return nil
	})
}

// Walk visits n and its descendants depth first, pre-order. Stops at the first error.
func (n *Node) Walk(f func(*Node) error) error {
	if err := f(n); err != nil {
		return err
	}
	for _, c := range n.Childs {
		if err := c.Walk(f); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) Find(name string) *Node {
	var found *Node
	n.Walk(func(c *Node) error {
		if c.Name == name {
			found = c
			return errStopWalk
		}
		return nil
	})
	return found
}

var errStopWalk = errors.New("stop")

// FirstSelected returns the first selected node in pre-order, or nil.
func (n *Node) FirstSelected() *Node {
	var found *Node
	n.Walk(func(c *Node) error {
		if c.Selected {
			found = c
			return errStopWalk
		}
		return nil
	})
	return found
}

func (n *Node) AnySelected() bool {
	return n.FirstSelected() != nil
}

// World composes local transforms from the top of the hierarchy down to n.
func (n *Node) World() mgl64.Mat4 {
	m := n.Transform
	for p := n.Parent; p != nil; p = p.Parent {
		m = p.Transform.Mul4(m)
	}
	return m
}

// WorldRelative composes local transforms from top down to n, ignoring
// ancestors above top (top's own transform is included).
func (n *Node) WorldRelative(top *Node) mgl64.Mat4 {
	m := n.Transform
	for c := n; c != top && c.Parent != nil; c = c.Parent {
		m = c.Parent.Transform.Mul4(m)
	}
	return m
}

func (n *Node) Root() *Node {
	r := n
	for r.Parent != nil {
		r = r.Parent
	}
	return r
}

func (n *Node) Depth() int {
	d := 0
	for p := n.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}
