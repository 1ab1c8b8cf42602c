// Package ingest decodes item and telemetry documents supplied by the
// upstream pipeline.
//
// Documents are YAML or JSON (JSON is read as YAML). Each document is
// converted to an ir.Value, validated against an embedded JSON Schema and
// only then mapped onto store types, so a document that fails validation
// never reaches the database.
package ingest

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/roach88/intelstore/internal/ir"
	"github.com/roach88/intelstore/internal/store"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// ErrInvalidDocument matches every decode and validation failure.
var ErrInvalidDocument = errors.New("invalid document")

const (
	itemsSchema     = "schemas/items.schema.json"
	telemetrySchema = "schemas/telemetry.schema.json"
)

// Document is a decoded items document.
type Document struct {
	// RunID is the document-level run; items without their own run_id
	// belong to it.
	RunID string
	Items []store.IntelItem
}

// AssignRun sets runID on every item that has no run of its own.
func (d *Document) AssignRun(runID string) {
	for i := range d.Items {
		if d.Items[i].RunID == "" {
			d.Items[i].RunID = runID
		}
	}
}

// Split partitions the items into at most n contiguous chunks of near-equal
// size, preserving document order. Empty chunks are never returned.
func (d Document) Split(n int) [][]store.IntelItem {
	if len(d.Items) == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if n > len(d.Items) {
		n = len(d.Items)
	}

	chunks := make([][]store.IntelItem, 0, n)
	size, rem := len(d.Items)/n, len(d.Items)%n
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < rem {
			end++
		}
		chunks = append(chunks, d.Items[start:end])
		start = end
	}
	return chunks
}

// ReadItems reads and decodes an items document.
func ReadItems(r io.Reader) (Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Document{}, fmt.Errorf("read items document: %w", err)
	}
	return DecodeItems(data)
}

// DecodeItems decodes and validates an items document:
//
//	run_id: run-001        # optional
//	items:
//	  - item_id: item-001
//	    item_type: news
//	    title: Acme recall
//	    scores: {relevance: 80}
//	    decision: promote
func DecodeItems(data []byte) (Document, error) {
	root, err := decodeValidated(data, itemsSchema)
	if err != nil {
		return Document{}, fmt.Errorf("items document: %w", err)
	}

	doc := Document{RunID: stringField(root, "run_id")}
	list, _ := root["items"].(ir.Array)
	doc.Items = make([]store.IntelItem, 0, len(list))
	for _, elem := range list {
		obj, _ := elem.(ir.Object)
		doc.Items = append(doc.Items, toItem(obj))
	}
	doc.AssignRun(doc.RunID)
	return doc, nil
}

// ReadTelemetry reads and decodes a telemetry document.
func ReadTelemetry(r io.Reader) (ir.Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read telemetry document: %w", err)
	}
	return DecodeTelemetry(data)
}

// DecodeTelemetry decodes a telemetry document, which may be any object.
func DecodeTelemetry(data []byte) (ir.Object, error) {
	root, err := decodeValidated(data, telemetrySchema)
	if err != nil {
		return nil, fmt.Errorf("telemetry document: %w", err)
	}
	return root, nil
}

func toItem(obj ir.Object) store.IntelItem {
	return store.IntelItem{
		ItemID:         stringField(obj, "item_id"),
		RunID:          stringField(obj, "run_id"),
		ItemType:       stringField(obj, "item_type"),
		Title:          stringField(obj, "title"),
		Summary:        stringField(obj, "summary"),
		Claims:         obj["claims"],
		Evidence:       obj["evidence"],
		Scores:         obj["scores"],
		RiskFlags:      obj["risk_flags"],
		Explainability: obj["explainability"],
		Decision:       optionalString(obj, "decision"),
		DecisionReason: optionalString(obj, "decision_reason"),
	}
}

func stringField(obj ir.Object, key string) string {
	s, _ := obj[key].(ir.String)
	return string(s)
}

// optionalString maps an absent or null field to nil.
func optionalString(obj ir.Object, key string) *string {
	s, ok := obj[key].(ir.String)
	if !ok {
		return nil
	}
	return store.Ptr(string(s))
}

// decodeValidated parses data, converts it to an ir.Object and validates it
// against the named schema.
func decodeValidated(data []byte, schemaName string) (ir.Object, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidDocument)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("%w: parse: %w", ErrInvalidDocument, err)
	}
	raw, err := nodeToAny(&node)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	v, err := ir.FromAny(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	schemas, err := compiledSchemas()
	if err != nil {
		return nil, err
	}
	if err := schemas[schemaName].Validate(ir.ToAny(v)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	obj, ok := v.(ir.Object)
	if !ok {
		return nil, fmt.Errorf("%w: expected object, got %s", ErrInvalidDocument, ir.Kind(v))
	}
	return obj, nil
}

// nodeToAny converts a YAML node tree to JSON-compatible values. Timestamps
// keep their source text instead of becoming time.Time.
func nodeToAny(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeToAny(n.Content[0])
	case yaml.AliasNode:
		return nodeToAny(n.Alias)
	case yaml.SequenceNode:
		out := make([]any, len(n.Content))
		for i, c := range n.Content {
			v, err := nodeToAny(c)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: object keys must be scalars", k.Line)
			}
			if _, dup := out[k.Value]; dup {
				return nil, fmt.Errorf("line %d: duplicate key %q", k.Line, k.Value)
			}
			val, err := nodeToAny(v)
			if err != nil {
				return nil, err
			}
			out[k.Value] = val
		}
		return out, nil
	case yaml.ScalarNode:
		if n.ShortTag() == "!!timestamp" {
			return n.Value, nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
	}
}

var compiledSchemas = sync.OnceValues(func() (map[string]*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	names := []string{itemsSchema, telemetrySchema}
	for _, name := range names {
		data, err := schemaFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", name, err)
		}
		if err := c.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}

	out := make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		sch, err := c.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		out[name] = sch
	}
	return out, nil
})
