package invoice

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrMissingEnvelope is returned when a JSON payload has no "invoice" key
var ErrMissingEnvelope = errors.New(`missing "invoice" envelope`)

const indent = "  "

// ParseJSON parses a model response into a Document.
// A leading code fence (with or without a language tag) and a trailing fence
// are removed first. Anything else that is not a single JSON object carrying
// the "invoice" envelope is rejected.
func ParseJSON(text string) (*Document, error) {
	text = StripCodeFence(text)
	if text == "" {
		return nil, errors.New("empty response")
	}

	var envelope struct {
		Invoice *json.RawMessage `json:"invoice"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}
	if envelope.Invoice == nil {
		return nil, ErrMissingEnvelope
	}

	var doc Document
	if err := json.Unmarshal(*envelope.Invoice, &doc.Invoice); err != nil {
		return nil, fmt.Errorf("unmarshaling invoice: %w", err)
	}
	doc.normalize()

	return &doc, nil
}

// openingFence matches a leading code fence and its optional language tag
var openingFence = regexp.MustCompile("^```[A-Za-z]*")

// StripCodeFence removes markdown code block markers around a payload.
// Only the fence and its language tag are dropped, so JSON that starts on the
// fence line is kept.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = openingFence.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")

	return strings.TrimSpace(text)
}

// ToJSON renders a document as indented JSON under its "invoice" envelope.
// Non-ASCII characters are written literally.
func ToJSON(doc Document) (string, error) {
	doc = doc.clone()
	doc.normalize()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("encoding invoice: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// StoreToJSON renders all entries as {"invoices": {"<id>": {"invoice": ...}}}.
// Keys appear in the order of entries.
func StoreToJSON(entries []StoreEntry) (string, error) {
	var compact bytes.Buffer
	compact.WriteString(`{"invoices":{`)
	for i, e := range entries {
		if i > 0 {
			compact.WriteByte(',')
		}
		key, err := marshalCompact(e.ID)
		if err != nil {
			return "", fmt.Errorf("encoding identifier %q: %w", e.ID, err)
		}
		doc := e.Document.clone()
		doc.normalize()
		value, err := marshalCompact(doc)
		if err != nil {
			return "", fmt.Errorf("encoding invoice %q: %w", e.ID, err)
		}
		compact.Write(key)
		compact.WriteByte(':')
		compact.Write(value)
	}
	compact.WriteString(`}}`)

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", indent); err != nil {
		return "", fmt.Errorf("indenting json: %w", err)
	}
	return out.String(), nil
}

// ParseStoreJSON reads the output of StoreToJSON back into entries, keeping key order
func ParseStoreJSON(text string) ([]StoreEntry, error) {
	dec := json.NewDecoder(strings.NewReader(text))

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("reading collection key: %w", err)
	}
	if key, ok := tok.(string); !ok || key != "invoices" {
		return nil, fmt.Errorf(`missing "invoices" envelope`)
	}
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	entries := make([]StoreEntry, 0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("reading identifier: %w", err)
		}
		id, _ := tok.(string)
		var doc Document
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding invoice %q: %w", id, err)
		}
		doc.normalize()
		entries = append(entries, StoreEntry{ID: id, Document: doc})
	}
	return entries, nil
}

// ExportFileName builds a timestamped download name such as invoice_data_20240115_103000.json
func ExportFileName(prefix, ext string, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, now.Format("20060102_150405"), ext)
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("reading json: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
