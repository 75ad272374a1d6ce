// Package manifest loads declarative bot manifests.
//
// A manifest is a YAML document listing bots with their settings:
//
//	version: 1
//	bots:
//	  - id: welcome
//	    name: Welcome Bot
//	    owner: u1
//	    auto_restart: true
//	    secret_env: WELCOME_TOKEN
//	    deploy: true
//	    settings:
//	      PREFIX: "!"
//
// Documents are validated against an embedded JSON Schema before they are
// decoded, so structural mistakes are reported with their location.
package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "manifest.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("load manifest schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Manifest is a decoded manifest document.
type Manifest struct {
	Version int   `yaml:"version"`
	Bots    []Bot `yaml:"bots"`
}

// Bot is one manifest entry.
type Bot struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Owner       string            `yaml:"owner"`
	AutoRestart bool              `yaml:"auto_restart"`
	Secret      string            `yaml:"secret"`
	SecretEnv   string            `yaml:"secret_env"`
	Deploy      bool              `yaml:"deploy"`
	Settings    map[string]string `yaml:"settings"`
}

// ResolveSecret returns the inline secret or reads it from SecretEnv.
func (b Bot) ResolveSecret(lookup func(string) (string, bool)) (string, error) {
	if b.Secret != "" {
		return b.Secret, nil
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, ok := lookup(b.SecretEnv)
	if !ok || v == "" {
		return "", fmt.Errorf("bot %s: environment variable %s is not set", b.ID, b.SecretEnv)
	}
	return v, nil
}

// Parse validates data against the manifest schema and decodes it.
func Parse(data []byte) (*Manifest, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	// The schema validator works on JSON values, so round-trip the YAML tree
	// through encoding/json. UseNumber keeps integers exact.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	sch, err := compiled()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(value); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	seen := make(map[string]bool, len(m.Bots))
	for _, b := range m.Bots {
		if seen[b.ID] {
			return nil, fmt.Errorf("invalid manifest: bot %s listed twice", b.ID)
		}
		seen[b.ID] = true
	}
	return &m, nil
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data)
}
