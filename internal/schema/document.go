// Package schema loads Lex bot schema documents. A Document keeps the full
// decoded JSON so fields this tool does not model survive re-serialization,
// and exposes a typed domain.BotDefinition for the fields it reads.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"lex-bot-deploy/internal/archive"
	"lex-bot-deploy/internal/domain"
)

// requiredFields lists the keys of "resource" the deployment relies on.
var requiredFields = []string{
	"name",
	"locale",
	"voiceId",
	"idleSessionTTLInSeconds",
	"childDirected",
	"abortStatement",
	"clarificationPrompt",
	"intents",
}

// Document is a parsed schema document.
type Document struct {
	FileName string
	Bot      domain.BotDefinition

	raw map[string]any
}

// Replacement records one endpoint rewrite.
type Replacement struct {
	Intent string
	Hook   string
	From   string
	To     string
}

// LoadFile reads and parses the schema document at path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %q: %w", path, err)
	}
	return Parse(filepath.Base(path), data)
}

// Parse decodes a schema document. fileName becomes the archive entry name
// when the document is packaged; when empty it defaults to
// "<bot name>_Export.json".
func Parse(fileName string, data []byte) (*Document, error) {
	fileName = strings.TrimSpace(fileName)
	label := fileName
	if label == "" {
		label = "inline schema"
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("schema: decode %s: %w", label, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("schema: decode %s: unexpected content after the document", label)
	}
	resource, ok := raw["resource"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("schema: %s: missing object \"resource\"", label)
	}
	var missing []string
	for _, key := range requiredFields {
		if _, ok := resource[key]; !ok {
			missing = append(missing, "resource."+key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("schema: %s: missing required fields: %s", label, strings.Join(missing, ", "))
	}

	doc := &Document{FileName: fileName, raw: raw}
	if err := doc.refresh(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.Bot.Name) == "" {
		return nil, fmt.Errorf("schema: %s: resource.name must not be empty", label)
	}
	if doc.FileName == "" {
		doc.FileName = doc.Bot.Name + exampleSuffix
	}
	for i, intent := range doc.Bot.Intents {
		if strings.TrimSpace(intent.Name) == "" {
			return nil, fmt.Errorf("schema: %s: resource.intents[%d].name must not be empty", label, i)
		}
	}
	return doc, nil
}

// refresh re-derives the typed view from the raw document.
func (d *Document) refresh() error {
	buf, err := json.Marshal(d.raw["resource"])
	if err != nil {
		return fmt.Errorf("schema: %s: encode resource: %w", d.FileName, err)
	}
	var bot domain.BotDefinition
	if err := json.Unmarshal(buf, &bot); err != nil {
		return fmt.Errorf("schema: %s: decode resource: %w", d.FileName, err)
	}
	d.Bot = bot
	return nil
}

// ReplaceEndpoints points every fulfillment code hook and dialog code hook at
// uri and returns what changed.
func (d *Document) ReplaceEndpoints(uri string) ([]Replacement, error) {
	resource, _ := d.raw["resource"].(map[string]any)
	intents, _ := resource["intents"].([]any)

	var out []Replacement
	for _, item := range intents {
		intent, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := intent["name"].(string)
		if activity, ok := intent["fulfillmentActivity"].(map[string]any); ok {
			if hook, ok := activity["codeHook"].(map[string]any); ok {
				out = append(out, replaceURI(hook, name, "fulfillmentActivity.codeHook", uri))
			}
		}
		if hook, ok := intent["dialogCodeHook"].(map[string]any); ok {
			out = append(out, replaceURI(hook, name, "dialogCodeHook", uri))
		}
	}
	if err := d.refresh(); err != nil {
		return nil, err
	}
	return out, nil
}

func replaceURI(hook map[string]any, intent, path, uri string) Replacement {
	old, _ := hook["uri"].(string)
	hook["uri"] = uri
	return Replacement{Intent: intent, Hook: path, From: old, To: uri}
}

// Marshal encodes the full document, including fields the typed view omits.
func (d *Document) Marshal() ([]byte, error) {
	buf, err := json.Marshal(d.raw)
	if err != nil {
		return nil, fmt.Errorf("schema: encode %s: %w", d.FileName, err)
	}
	return buf, nil
}

// Package returns the import payload: a zip holding the document under its
// original file name.
func (d *Document) Package() ([]byte, error) {
	buf, err := d.Marshal()
	if err != nil {
		return nil, err
	}
	return archive.Pack(d.FileName, buf)
}
