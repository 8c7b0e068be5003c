package scene

import (
	"fmt"
	"sync"

	"github.com/noodles/ramen/internal/client"
	"github.com/noodles/ramen/internal/core/future"
	"github.com/noodles/ramen/internal/core/slot"
	"github.com/noodles/ramen/internal/core/value"
	"go.uber.org/zap"
)

var mat4 = formats["MAT4"]

// RenderRep is an entity's visual: a mesh plus optional per-instance
// transforms. Its fields are filled on the dispatch goroutine once the mesh
// and the instance buffer have both arrived.
type RenderRep struct {
	Mesh slot.ID

	ready     bool
	err       error
	patches   []*Patch
	instances [][16]float32
	done      *future.Future[*RenderRep]
}

func (r *RenderRep) Ready() bool { return r.ready }
func (r *RenderRep) Err() error { return r.err }
func (r *RenderRep) Patches() []*Patch { return r.patches }
func (r *RenderRep) Instances() [][16]float32 { return r.instances }

// Done settles when the representation is complete or has failed.
func (r *RenderRep) Done() *future.Future[*RenderRep] { return r.done }

func (s *Scene) makeRenderRep(c *client.Client, n *Node, rec *value.Record) *RenderRep {
	meshRef, _ := rec.Get("mesh")
	rep := &RenderRep{Mesh: slot.Null, done: future.New[*RenderRep]()}
	if id, ok := slot.FromValue(meshRef); ok {
		rep.Mesh = id
	}

	var (
		mu        sync.Mutex
		patches   []*Patch
		instances [][16]float32
	)

	agg := future.NewAggregate(1)
	instRec, hasInstances := rec.Map("instances")
	if hasInstances {
		agg.Add(1)
	}
	agg.OnComplete(func(err error) {
		c.Post(func() {
			rep.ready = true
			rep.err = err
			if err != nil {
				s.log.Warn("render rep failed", zap.Stringer("entity", n.ID), zap.Error(err))
				rep.done.Reject(err)
				return
			}
			mu.Lock()
			rep.patches, rep.instances = patches, instances
			mu.Unlock()
			rep.done.Resolve(rep)
		})
	})

	if g, ok := geometryOf(c, meshRef); ok {
		g.Ready.Then(func(ps []*Patch, err error) {
			if err != nil {
				agg.Fail(err)
				return
			}
			mu.Lock()
			patches = ps
			mu.Unlock()
			agg.Done()
		})
	} else {
		agg.Fail(fmt.Errorf("%w: mesh %s", ErrMissingRef, meshRef))
	}

	if hasInstances {
		viewRef, _ := instRec.Get("view")
		stride, err := streamField(instRec, "stride")
		if err != nil {
			agg.Fail(err)
			return rep
		}
		bytes, err := viewBytes(c, viewRef)
		if err != nil {
			agg.Fail(err)
			return rep
		}
		bytes.Then(func(b []byte, err error) {
			if err != nil {
				agg.Fail(err)
				return
			}
			inst, err := decodeInstances(b, stride)
			if err != nil {
				agg.Fail(err)
				return
			}
			mu.Lock()
			instances = inst
			mu.Unlock()
			agg.Done()
		})
	}
	return rep
}

// decodeInstances reads packed MAT4 instance records. A stride below the
// matrix size is raised to it.
func decodeInstances(b []byte, stride int) ([][16]float32, error) {
	size := mat4.ByteSize()
	if stride < size {
		stride = size
	}
	if len(b) < size {
		return nil, nil
	}
	count := (len(b)-size)/stride + 1
	flat, err := decodeStrided(mat4, b, 0, stride, count)
	if err != nil {
		return nil, fmt.Errorf("instances: %w", err)
	}
	out := make([][16]float32, count)
	for i := range out {
		copy(out[i][:], flat[i*16:(i+1)*16])
	}
	return out, nil
}
