package scene

import (
	"fmt"

	"github.com/noodles/ramen/internal/client"
	"github.com/noodles/ramen/internal/core/future"
	"github.com/noodles/ramen/internal/core/slot"
	"github.com/noodles/ramen/internal/core/value"
	"github.com/noodles/ramen/internal/net/packet"
	"go.uber.org/zap"
)

const (
	keyMaterial = "material"
	keyTexture  = "texture"

	FilterLinear             = "LINEAR"
	FilterNearest            = "NEAREST"
	FilterLinearMipmapLinear = "LINEAR_MIPMAP_LINEAR"
)

// Material holds the physically based parameters of a material record.
type Material struct {
	ID          slot.ID
	Name        string
	BaseColor   [4]float64
	Metallic    float64
	Roughness   float64
	DoubleSided bool
	UseAlpha    bool
	TextureRef  slot.ID
	Texture     *Texture // set once the base colour texture is ready
}

// Texture is an image plus sampling parameters. Image is filled before
// Ready resolves.
type Texture struct {
	ID        slot.ID
	Image     []byte
	MagFilter string
	MinFilter string
	Ready     *future.Future[*Texture]
}

func (s *Scene) onMaterialCreate(c *client.Client, rec *value.Record) {
	id, _ := slot.IDOf(rec)
	m := &Material{ID: id, TextureRef: slot.Null}
	rec.SetExtern(keyMaterial, m)
	s.applyMaterial(c, m, rec)
}

func (s *Scene) onMaterialUpdate(c *client.Client, rec, partial *value.Record) {
	x, ok := rec.Extern(keyMaterial)
	if !ok {
		return
	}
	m, ok := x.(*Material)
	if !ok {
		return
	}
	s.applyMaterial(c, m, rec)
}

// MaterialOf returns the material built for a material record.
func MaterialOf(rec *value.Record) (*Material, bool) {
	x, ok := rec.Extern(keyMaterial)
	if !ok {
		return nil, false
	}
	m, ok := x.(*Material)
	return m, ok
}

func (s *Scene) applyMaterial(c *client.Client, m *Material, rec *value.Record) {
	m.Name = rec.StringOr("name", "")
	m.DoubleSided = rec.BoolOr("double_sided", false)
	m.UseAlpha = rec.BoolOr("use_alpha", false)
	m.BaseColor = [4]float64{1, 1, 1, 1}
	m.Metallic, m.Roughness = 1, 1

	pbr, ok := rec.Map("pbr_info")
	if !ok {
		return
	}
	if col, ok := pbr.List("base_color"); ok {
		for i := 0; i < len(col) && i < 4; i++ {
			if f, ok := col[i].AsFloat(); ok {
				m.BaseColor[i] = f
			}
		}
	}
	m.Metallic = pbr.FloatOr("metallic", 1)
	m.Roughness = pbr.FloatOr("roughness", 1)

	ref := slot.Null
	if texInfo, ok := pbr.Map("base_color_texture"); ok {
		if v, ok := texInfo.Get("texture"); ok && !slot.IsNullRef(v) {
			ref, _ = slot.FromValue(v)
		}
	}
	if ref == m.TextureRef {
		return
	}
	m.TextureRef, m.Texture = ref, nil
	if ref.IsNull() {
		return
	}
	tex, ok := textureOf(c, ref.Value())
	if !ok {
		s.log.Warn("material references unknown texture",
			zap.Stringer("material", m.ID), zap.Stringer("texture", ref))
		return
	}
	tex.Ready.Then(func(t *Texture, err error) {
		if err != nil {
			return
		}
		c.Post(func() {
			if m.TextureRef == ref {
				m.Texture = t
			}
		})
	})
}

func textureOf(c *client.Client, ref value.Value) (*Texture, bool) {
	rec, ok := c.Resolve(packet.CollectionTexture, ref)
	if !ok {
		return nil, false
	}
	x, ok := rec.Extern(keyTexture)
	if !ok {
		return nil, false
	}
	t, ok := x.(*Texture)
	return t, ok
}

func (s *Scene) onTextureCreate(c *client.Client, rec *value.Record) {
	id, _ := slot.IDOf(rec)
	t := &Texture{
		ID:        id,
		MagFilter: FilterLinear,
		MinFilter: FilterLinearMipmapLinear,
		Ready:     future.New[*Texture](),
	}
	rec.SetExtern(keyTexture, t)

	if samplerRef, ok := rec.Get("sampler"); ok {
		if sampler, ok := c.Resolve(packet.CollectionSampler, samplerRef); ok {
			t.MagFilter = sampler.StringOr("mag_filter", FilterLinear)
			t.MinFilter = sampler.StringOr("min_filter", FilterLinearMipmapLinear)
		}
	}

	src, err := s.imageBytes(c, rec)
	if err != nil {
		s.log.Warn("texture has no usable image", zap.Stringer("texture", id), zap.Error(err))
		t.Ready.Reject(err)
		return
	}
	src.Then(func(b []byte, err error) {
		if err != nil {
			t.Ready.Reject(err)
			return
		}
		t.Image = b
		t.Ready.Resolve(t)
	})
}

// imageBytes resolves a texture's image either from a buffer view or from
// its URI.
func (s *Scene) imageBytes(c *client.Client, rec *value.Record) (*future.Future[[]byte], error) {
	imageRef, _ := rec.Get("image")
	image, ok := c.Resolve(packet.CollectionImage, imageRef)
	if !ok {
		return nil, fmt.Errorf("%w: image %s", ErrMissingRef, imageRef)
	}
	if src, ok := image.Get("buffer_source"); ok && !slot.IsNullRef(src) {
		return viewBytes(c, src)
	}
	if uri, ok := image.Str("uri_source"); ok && uri != "" {
		return s.fetcher.FetchURI(s.ctx, uri), nil
	}
	return nil, fmt.Errorf("image %s has no source", imageRef)
}
