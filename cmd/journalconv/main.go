// journalconv converts the recorded journal of one session to YAML.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/noodles/ramen/internal/config"
	rnet "github.com/noodles/ramen/internal/net"
	"github.com/noodles/ramen/internal/persist"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type journalYAML struct {
	Session string      `yaml:"session"`
	Entries []entryYAML `yaml:"entries"`
}

type entryYAML struct {
	Collection string         `yaml:"collection"`
	Op         string         `yaml:"op"`
	Index      uint32         `yaml:"index"`
	Generation uint32         `yaml:"generation"`
	At         time.Time      `yaml:"at"`
	Digest     string         `yaml:"digest"`
	Payload    map[string]any `yaml:"payload,omitempty"`
	Error      string         `yaml:"error,omitempty"`
}

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: journalconv <session> <output.yaml> [config.toml]")
		os.Exit(1)
	}
	cfgPath := "config/ramen.toml"
	if len(os.Args) > 3 {
		cfgPath = os.Args[3]
	}
	if err := run(os.Args[1], os.Args[2], cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(session, outPath, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Journal, zap.NewNop())
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := persist.NewJournalRepo(db).Entries(ctx, session)
	if err != nil {
		return err
	}

	codec, err := rnet.NewCBORCodec()
	if err != nil {
		return err
	}
	doc := convert(session, entries, codec)

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	fmt.Fprintf(out, "# Journal of session %s (%d entries)\n", session, len(doc.Entries))
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	fmt.Printf("Wrote %d journal entries to %s\n", len(doc.Entries), outPath)
	return nil
}

// convert decodes every payload and orders entries by collection, then
// slot index. Entries of one slot keep their recorded order.
func convert(session string, entries []persist.JournalEntry, codec rnet.Codec) journalYAML {
	doc := journalYAML{Session: session, Entries: make([]entryYAML, 0, len(entries))}
	for _, e := range entries {
		y := entryYAML{
			Collection: e.Collection,
			Op:         string(e.Op),
			Index:      e.Index,
			Generation: e.Generation,
			At:         e.At.UTC(),
			Digest:     e.Digest,
		}
		v, err := codec.Decode(e.Payload)
		if err != nil {
			y.Error = err.Error()
		} else if rec, ok := v.AsMap(); ok {
			y.Payload = rec.Any()
		} else {
			y.Error = fmt.Sprintf("payload is %s, not a map", v.Kind())
		}
		doc.Entries = append(doc.Entries, y)
	}

	sort.SliceStable(doc.Entries, func(i, j int) bool {
		a, b := doc.Entries[i], doc.Entries[j]
		if a.Collection != b.Collection {
			return a.Collection < b.Collection
		}
		return a.Index < b.Index
	})
	return doc
}
