// Package scene keeps a rendering-free model of the mirrored scene: the
// entity tree, assembled geometry, materials and textures. It plugs into
// the client through delegates.
package scene

import (
	"cmp"
	"context"
	"io"
	"maps"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/noodles/ramen/internal/client"
	"github.com/noodles/ramen/internal/core/slot"
	"github.com/noodles/ramen/internal/core/value"
	"github.com/noodles/ramen/internal/net/packet"
	"github.com/noodles/ramen/internal/resource"
	"github.com/sanity-io/litter"
	"go.uber.org/zap"
)

var identity = [16]float64{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// Node is one entity in the tree.
type Node struct {
	ID        slot.ID
	Name      string
	Transform [16]float64
	Visible   bool
	Rep       *RenderRep

	parent   *Node
	children mapset.Set[*Node]
}

func newNode(id slot.ID) *Node {
	return &Node{
		ID:        id,
		Transform: identity,
		Visible:   true,
		children:  mapset.NewThreadUnsafeSet[*Node](),
	}
}

// Parent returns the parent node; nil for the root and for detached nodes.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the children ordered by slot index.
func (n *Node) Children() []*Node {
	out := n.children.ToSlice()
	slices.SortFunc(out, func(a, b *Node) int { return cmp.Compare(a.ID.Index, b.ID.Index) })
	return out
}

func (n *Node) attach(child *Node) {
	child.detach()
	child.parent = n
	n.children.Add(child)
}

func (n *Node) detach() {
	if n.parent != nil {
		n.parent.children.Remove(n)
		n.parent = nil
	}
}

// Scene is owned by the dispatch goroutine. Fetch completions reach it only
// through client.Post.
type Scene struct {
	ctx     context.Context
	fetcher *resource.Fetcher
	log     *zap.Logger

	root  *Node
	nodes map[uint32]*Node
	// children whose parent has not been created yet, by parent index
	pending map[uint32]mapset.Set[uint32]
}

func New(ctx context.Context, fetcher *resource.Fetcher, log *zap.Logger) *Scene {
	s := &Scene{
		ctx:     ctx,
		fetcher: fetcher,
		log:     log,
	}
	s.Reset()
	return s
}

// Delegates returns the lifecycle hooks the scene needs, keyed by collection.
func (s *Scene) Delegates() map[string]client.Delegate {
	return map[string]client.Delegate{
		packet.CollectionEntity: {
			OnCreate: s.onEntityCreate,
			OnUpdate: s.onEntityUpdate,
			OnDelete: s.onEntityDelete,
		},
		packet.CollectionBuffer: {
			OnCreate: s.onBufferCreate,
		},
		packet.CollectionGeometry: {
			OnCreate: s.onGeometryCreate,
			OnDelete: s.onGeometryDelete,
		},
		packet.CollectionMaterial: {
			OnCreate: s.onMaterialCreate,
			OnUpdate: s.onMaterialUpdate,
		},
		packet.CollectionTexture: {
			OnCreate: s.onTextureCreate,
		},
	}
}

// Attach clears the scene whenever the client's document is reset.
func (s *Scene) Attach(c *client.Client) {
	c.OnReset(s.Reset)
}

// Reset drops every node.
func (s *Scene) Reset() {
	s.root = newNode(slot.Null)
	s.root.Name = "root"
	s.nodes = make(map[uint32]*Node, 64)
	s.pending = make(map[uint32]mapset.Set[uint32])
}

func (s *Scene) Root() *Node { return s.root }

// Node returns the node of an entity.
func (s *Scene) Node(id slot.ID) (*Node, bool) {
	if id.IsNull() {
		return nil, false
	}
	n, ok := s.nodes[id.Index]
	return n, ok
}

// Len returns the number of live nodes, root excluded.
func (s *Scene) Len() int { return len(s.nodes) }

// Pending returns how many nodes wait for a parent.
func (s *Scene) Pending() int {
	n := 0
	for _, set := range s.pending {
		n += set.Cardinality()
	}
	return n
}

func (s *Scene) onEntityCreate(c *client.Client, rec *value.Record) {
	id, _ := slot.IDOf(rec)
	n := newNode(id)
	if old, ok := s.nodes[id.Index]; ok {
		// children of the replaced node wait on the slot and are adopted below
		old.detach()
		s.unpark(id.Index)
		for _, child := range old.Children() {
			child.detach()
			s.park(child.ID.Index, id.Index)
		}
	}
	s.nodes[id.Index] = n

	s.applyEntity(c, n, rec)
	if _, has := rec.Get("parent"); !has {
		s.root.attach(n)
	}

	// adopt children that arrived first
	if waiting, ok := s.pending[id.Index]; ok {
		delete(s.pending, id.Index)
		for _, idx := range waiting.ToSlice() {
			if child, ok := s.nodes[idx]; ok {
				n.attach(child)
			}
		}
	}
}

func (s *Scene) onEntityUpdate(c *client.Client, rec, partial *value.Record) {
	id, _ := slot.IDOf(rec)
	n, ok := s.nodes[id.Index]
	if !ok {
		return
	}
	s.applyEntity(c, n, partial)
}

func (s *Scene) onEntityDelete(c *client.Client, rec *value.Record) {
	id, _ := slot.IDOf(rec)
	n, ok := s.nodes[id.Index]
	if !ok {
		return
	}
	n.detach()
	delete(s.nodes, id.Index)
	s.unpark(n.ID.Index)
	for _, child := range n.Children() {
		child.detach()
		s.park(child.ID.Index, id.Index)
	}
}

// applyEntity copies the attributes present in fields onto n.
func (s *Scene) applyEntity(c *client.Client, n *Node, fields *value.Record) {
	if name, ok := fields.Str("name"); ok {
		n.Name = name
	}
	if parent, ok := fields.Get("parent"); ok {
		s.reparent(n, parent)
	}
	if tf, ok := fields.List("transform"); ok {
		n.Transform = readMatrix(tf)
	}
	if vis, ok := fields.Bool("visible"); ok {
		n.Visible = vis
	}
	if rep, ok := fields.Map("render_rep"); ok {
		n.Rep = s.makeRenderRep(c, n, rep)
	} else if v, ok := fields.Get("render_rep"); ok && v.IsNull() {
		n.Rep = nil
	}
}

func (s *Scene) reparent(n *Node, ref value.Value) {
	s.unpark(n.ID.Index)
	if slot.IsNullRef(ref) {
		s.root.attach(n)
		return
	}
	pid, ok := slot.FromValue(ref)
	if !ok {
		idx, _ := ref.AsUint()
		pid = slot.New(uint32(idx), 0)
	}
	if p, ok := s.nodes[pid.Index]; ok && p != n {
		p.attach(n)
		return
	}
	n.detach()
	s.park(n.ID.Index, pid.Index)
	s.log.Debug("entity parked until parent arrives",
		zap.Stringer("entity", n.ID), zap.Uint32("parent", pid.Index))
}

func (s *Scene) park(child, parent uint32) {
	set, ok := s.pending[parent]
	if !ok {
		set = mapset.NewThreadUnsafeSet[uint32]()
		s.pending[parent] = set
	}
	set.Add(child)
}

func (s *Scene) unpark(child uint32) {
	for parent, set := range s.pending {
		if set.Contains(child) {
			set.Remove(child)
			if set.Cardinality() == 0 {
				delete(s.pending, parent)
			}
		}
	}
}

func readMatrix(vs []value.Value) [16]float64 {
	if len(vs) != 16 {
		return identity
	}
	var m [16]float64
	for i, v := range vs {
		f, ok := v.AsFloat()
		if !ok {
			return identity
		}
		m[i] = f
	}
	return m
}

type dumpNode struct {
	ID        string
	Name      string
	Visible   bool
	Transform *[16]float64
	Rep       *dumpRep
	Children  []dumpNode
}

type dumpRep struct {
	Mesh      string
	Ready     bool
	Instances int
}

// Dump writes the node tree in a readable form.
func (s *Scene) Dump(w io.Writer) error {
	opts := litter.Options{HidePrivateFields: true, StripPackageNames: true}
	_, err := io.WriteString(w, opts.Sdump(s.snapshot(s.root)))
	if err != nil {
		return err
	}
	if len(s.pending) > 0 {
		_, err = io.WriteString(w, "pending: "+opts.Sdump(s.pendingSnapshot())+"\n")
	}
	return err
}

func (s *Scene) snapshot(n *Node) dumpNode {
	d := dumpNode{ID: n.ID.String(), Name: n.Name, Visible: n.Visible}
	if n.Transform != identity {
		tf := n.Transform
		d.Transform = &tf
	}
	if n.Rep != nil {
		d.Rep = &dumpRep{Mesh: n.Rep.Mesh.String(), Ready: n.Rep.Ready(), Instances: len(n.Rep.Instances())}
	}
	for _, child := range n.Children() {
		d.Children = append(d.Children, s.snapshot(child))
	}
	return d
}

func (s *Scene) pendingSnapshot() map[uint32][]uint32 {
	out := make(map[uint32][]uint32, len(s.pending))
	for _, parent := range slices.Sorted(maps.Keys(s.pending)) {
		kids := s.pending[parent].ToSlice()
		slices.Sort(kids)
		out[parent] = kids
	}
	return out
}
