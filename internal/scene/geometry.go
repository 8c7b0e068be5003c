package scene

import (
	"fmt"
	"sync"

	"github.com/noodles/ramen/internal/client"
	"github.com/noodles/ramen/internal/core/future"
	"github.com/noodles/ramen/internal/core/slot"
	"github.com/noodles/ramen/internal/core/value"
	"github.com/noodles/ramen/internal/net/packet"
	"go.uber.org/zap"
)

const keyGeometry = "geometry"

// Attribute is one decoded vertex stream, components flattened.
type Attribute struct {
	Semantic   string
	Channel    uint64
	Format     Format
	Normalized bool
	Data       []float32
}

// Patch is one drawable piece of a geometry.
type Patch struct {
	Type        string
	Material    slot.ID
	VertexCount int
	Attributes  []Attribute
	Indices     []uint32
}

// HasSemantic reports whether the patch carries an attribute of semantic.
func (p *Patch) HasSemantic(semantic string) bool {
	for _, a := range p.Attributes {
		if a.Semantic == semantic {
			return true
		}
	}
	return false
}

// Geometry assembles its patches from buffer views. Ready resolves once
// every attribute and index stream has been decoded, or rejects with the
// first failure.
type Geometry struct {
	ID    slot.ID
	Name  string
	Ready *future.Future[[]*Patch]

	mu      sync.Mutex
	patches []*Patch
}

func (s *Scene) onGeometryCreate(c *client.Client, rec *value.Record) {
	id, _ := slot.IDOf(rec)
	g := buildGeometry(c, id, rec)
	rec.SetExtern(keyGeometry, g)
	g.Ready.Then(func(_ []*Patch, err error) {
		if err != nil {
			s.log.Warn("geometry failed", zap.Stringer("id", id), zap.Error(err))
			return
		}
		s.log.Debug("geometry ready", zap.Stringer("id", id))
	})
}

func (s *Scene) onGeometryDelete(c *client.Client, rec *value.Record) {
	// Outstanding fetches are left to finish against the detached geometry.
	rec.Delete(keyGeometry)
}

// buildGeometry starts decoding every patch. The aggregate begins with one
// guard signal so that streams resolving synchronously cannot complete it
// before every patch has registered its streams.
func buildGeometry(c *client.Client, id slot.ID, rec *value.Record) *Geometry {
	g := &Geometry{
		ID:    id,
		Name:  rec.StringOr("name", ""),
		Ready: future.New[[]*Patch](),
	}
	agg := future.NewAggregate(1)
	agg.OnComplete(func(err error) {
		if err != nil {
			g.Ready.Reject(fmt.Errorf("geometry %s: %w", id, err))
			return
		}
		g.mu.Lock()
		patches := g.patches
		g.mu.Unlock()
		g.Ready.Resolve(patches)
	})

	patches, _ := rec.List("patches")
	for i, pv := range patches {
		prec, ok := pv.AsMap()
		if !ok {
			agg.Add(1)
			agg.Fail(fmt.Errorf("patch %d is %s", i, pv.Kind()))
			continue
		}
		g.startPatch(c, agg, i, prec)
	}
	agg.Done()
	return g
}

func (g *Geometry) startPatch(c *client.Client, agg *future.Aggregate, index int, rec *value.Record) {
	vertexCount, err := streamField(rec, "vertex_count")
	if err != nil {
		agg.Add(1)
		agg.Fail(fmt.Errorf("patch %d: %w", index, err))
		return
	}
	p := &Patch{
		Type:        rec.StringOr("type", "TRIANGLES"),
		VertexCount: vertexCount,
		Material:    slot.Null,
	}
	if m, ok := rec.Get("material"); ok {
		if mid, ok := slot.FromValue(m); ok {
			p.Material = mid
		}
	}
	g.mu.Lock()
	g.patches = append(g.patches, p)
	g.mu.Unlock()

	attrs, _ := rec.List("attributes")
	agg.Add(len(attrs))
	for j, av := range attrs {
		arec, ok := av.AsMap()
		if !ok {
			agg.Fail(fmt.Errorf("patch %d attribute %d is %s", index, j, av.Kind()))
			continue
		}
		g.startAttribute(c, agg, p, arec)
	}

	// Index streams are discovered per patch, after attribute streams may
	// already be in flight.
	if irec, ok := rec.Map("indices"); ok {
		agg.Add(1)
		g.startIndices(c, agg, p, irec)
	}
}

func (g *Geometry) startAttribute(c *client.Client, agg *future.Aggregate, p *Patch, rec *value.Record) {
	format, err := LookupFormat(rec.StringOr("format", ""))
	if err != nil {
		agg.Fail(err)
		return
	}
	viewRef, _ := rec.Get("view")
	bytes, err := viewBytes(c, viewRef)
	if err != nil {
		agg.Fail(err)
		return
	}
	attr := Attribute{
		Semantic:   rec.StringOr("semantic", ""),
		Channel:    rec.UintOr("channel", 0),
		Format:     format,
		Normalized: rec.BoolOr("normalized", false),
	}
	offset, err := streamField(rec, "offset")
	if err != nil {
		agg.Fail(err)
		return
	}
	stride, err := streamField(rec, "stride")
	if err != nil {
		agg.Fail(err)
		return
	}

	bytes.Then(func(b []byte, err error) {
		if err != nil {
			agg.Fail(err)
			return
		}
		data, err := decodeStrided(format, b, offset, stride, p.VertexCount)
		if err != nil {
			agg.Fail(fmt.Errorf("attribute %s: %w", attr.Semantic, err))
			return
		}
		attr.Data = data
		g.mu.Lock()
		p.Attributes = append(p.Attributes, attr)
		g.mu.Unlock()
		agg.Done()
	})
}

func (g *Geometry) startIndices(c *client.Client, agg *future.Aggregate, p *Patch, rec *value.Record) {
	format, err := LookupFormat(rec.StringOr("format", ""))
	if err != nil {
		agg.Fail(err)
		return
	}
	viewRef, _ := rec.Get("view")
	bytes, err := viewBytes(c, viewRef)
	if err != nil {
		agg.Fail(err)
		return
	}
	offset, err := streamField(rec, "offset")
	if err != nil {
		agg.Fail(err)
		return
	}
	stride, err := streamField(rec, "stride")
	if err != nil {
		agg.Fail(err)
		return
	}
	count, err := streamField(rec, "count")
	if err != nil {
		agg.Fail(err)
		return
	}

	bytes.Then(func(b []byte, err error) {
		if err != nil {
			agg.Fail(err)
			return
		}
		idx, err := decodeIndices(format, b, offset, stride, count)
		if err != nil {
			agg.Fail(err)
			return
		}
		g.mu.Lock()
		p.Indices = idx
		g.mu.Unlock()
		agg.Done()
	})
}

// geometryOf returns the geometry attached to the referenced record.
func geometryOf(c *client.Client, ref value.Value) (*Geometry, bool) {
	rec, ok := c.Resolve(packet.CollectionGeometry, ref)
	if !ok {
		return nil, false
	}
	x, ok := rec.Extern(keyGeometry)
	if !ok {
		return nil, false
	}
	g, ok := x.(*Geometry)
	return g, ok
}
