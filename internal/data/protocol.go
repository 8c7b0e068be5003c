package data

import (
	"errors"
	"fmt"
	"os"

	"github.com/noodles/ramen/internal/core/slot"
	"github.com/noodles/ramen/internal/net/packet"
	"gopkg.in/yaml.v3"
)

// CollectionEntry defines the message ids one collection owns.
type CollectionEntry struct {
	Name   string  `yaml:"name"`
	Create uint64  `yaml:"create"`
	Delete uint64  `yaml:"delete"`
	Update *uint64 `yaml:"update"` // absent when the collection has no update message
}

// Descriptor converts the entry into a registry descriptor.
func (e CollectionEntry) Descriptor() slot.Descriptor {
	d := slot.Descriptor{Name: e.Name, Create: e.Create, Delete: e.Delete}
	if e.Update != nil {
		d.Update, d.HasUpdate = *e.Update, true
	}
	return d
}

// ProtocolTable lists every collection the client mirrors, in registration order.
type ProtocolTable struct {
	collections []CollectionEntry
}

type protocolFile struct {
	Collections []CollectionEntry `yaml:"collections"`
}

// LoadProtocolTable loads protocol.yaml. A missing file yields the built-in
// table; a malformed or inconsistent one is an error.
func LoadProtocolTable(path string) (*ProtocolTable, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultProtocolTable(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read protocol table: %w", err)
	}
	var f protocolFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse protocol table: %w", err)
	}
	t := &ProtocolTable{collections: f.Collections}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("protocol table %s: %w", path, err)
	}
	return t, nil
}

func upd(id uint64) *uint64 { return &id }

// DefaultProtocolTable returns the collection table of the scene protocol.
func DefaultProtocolTable() *ProtocolTable {
	return &ProtocolTable{collections: []CollectionEntry{
		{Name: packet.CollectionMethod, Create: packet.MsgMethodCreate, Delete: packet.MsgMethodDelete},
		{Name: packet.CollectionSignal, Create: packet.MsgSignalCreate, Delete: packet.MsgSignalDelete},
		{Name: packet.CollectionEntity, Create: packet.MsgEntityCreate, Delete: packet.MsgEntityDelete, Update: upd(packet.MsgEntityUpdate)},
		{Name: packet.CollectionPlot, Create: packet.MsgPlotCreate, Delete: packet.MsgPlotDelete, Update: upd(packet.MsgPlotUpdate)},
		{Name: packet.CollectionBuffer, Create: packet.MsgBufferCreate, Delete: packet.MsgBufferDelete},
		{Name: packet.CollectionBufferView, Create: packet.MsgBufferViewCreate, Delete: packet.MsgBufferViewDelete},
		{Name: packet.CollectionMaterial, Create: packet.MsgMaterialCreate, Delete: packet.MsgMaterialDelete, Update: upd(packet.MsgMaterialUpdate)},
		{Name: packet.CollectionImage, Create: packet.MsgImageCreate, Delete: packet.MsgImageDelete},
		{Name: packet.CollectionTexture, Create: packet.MsgTextureCreate, Delete: packet.MsgTextureDelete},
		{Name: packet.CollectionSampler, Create: packet.MsgSamplerCreate, Delete: packet.MsgSamplerDelete},
		{Name: packet.CollectionLight, Create: packet.MsgLightCreate, Delete: packet.MsgLightDelete, Update: upd(packet.MsgLightUpdate)},
		{Name: packet.CollectionGeometry, Create: packet.MsgGeometryCreate, Delete: packet.MsgGeometryDelete},
		{Name: packet.CollectionTable, Create: packet.MsgTableCreate, Delete: packet.MsgTableDelete, Update: upd(packet.MsgTableUpdate)},
	}}
}

// Validate checks names and that no message id is claimed twice, either by
// two collections or by a collection and a document-level message.
func (t *ProtocolTable) Validate() error {
	if len(t.collections) == 0 {
		return errors.New("no collections")
	}
	names := make(map[string]bool, len(t.collections))
	owners := make(map[uint64]string, len(t.collections)*3)
	for i, c := range t.collections {
		if c.Name == "" {
			return fmt.Errorf("collection %d has no name", i)
		}
		if names[c.Name] {
			return fmt.Errorf("collection %q listed twice", c.Name)
		}
		names[c.Name] = true
		for _, id := range c.Descriptor().MessageIDs() {
			if packet.IsDocumentMessage(id) {
				return fmt.Errorf("collection %q uses document message id %d", c.Name, id)
			}
			if owner, taken := owners[id]; taken {
				return fmt.Errorf("message id %d claimed by %q and %q", id, owner, c.Name)
			}
			owners[id] = c.Name
		}
	}
	return nil
}

// Descriptors returns the registry descriptors in table order.
func (t *ProtocolTable) Descriptors() []slot.Descriptor {
	out := make([]slot.Descriptor, len(t.collections))
	for i, c := range t.collections {
		out[i] = c.Descriptor()
	}
	return out
}

// Get returns the entry for name.
func (t *ProtocolTable) Get(name string) (CollectionEntry, bool) {
	for _, c := range t.collections {
		if c.Name == name {
			return c, true
		}
	}
	return CollectionEntry{}, false
}

// Count returns the number of collections.
func (t *ProtocolTable) Count() int {
	return len(t.collections)
}

// Names returns the collection names in table order.
func (t *ProtocolTable) Names() []string {
	out := make([]string, len(t.collections))
	for i, c := range t.collections {
		out[i] = c.Name
	}
	return out
}
