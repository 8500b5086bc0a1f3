// Package annotation keeps the process-wide table of annotation namespaces and
// reads their settings from struct tags.
//
// An annotation is a struct tag whose key is a registered namespace, e.g.
//
//	Slug string `gedmo:"slug;fields:Title;unique"`
//
// Settings are separated by ';' and keys are case-insensitive.
package annotation

import (
	"reflect"
	"sort"
	"strings"
	"sync"

	"gorm.io/gorm/schema"
)

// Gedmo is the namespace used by the behavior listeners
const Gedmo = "gedmo"

var (
	namespacesMu sync.RWMutex
	namespaces   = make(map[string]string)
)

// RegisterNamespace maps an annotation namespace to the directory holding its sources.
// Registering an existing namespace replaces its path.
func RegisterNamespace(namespace, path string) {
	namespacesMu.Lock()
	defer namespacesMu.Unlock()
	namespaces[namespace] = path
}

// NamespacePath returns the path registered for namespace
func NamespacePath(namespace string) (string, bool) {
	namespacesMu.RLock()
	defer namespacesMu.RUnlock()
	path, ok := namespaces[namespace]
	return path, ok
}

// Namespaces returns the registered namespace names, sorted
func Namespaces() []string {
	namespacesMu.RLock()
	defer namespacesMu.RUnlock()

	names := make([]string, 0, len(namespaces))
	for name := range namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Settings holds the parsed key/values of one annotation.
// Keys are upper-cased; a bare key maps to itself.
type Settings map[string]string

// Parse parses an annotation value such as "slug;fields:Title,Subtitle;unique"
func Parse(value string) Settings {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return Settings(schema.ParseTagSetting(value, ";"))
}

// Has reports whether key is present
func (s Settings) Has(key string) bool {
	_, ok := s[strings.ToUpper(key)]
	return ok
}

// Get returns the value of key, or "" when absent
func (s Settings) Get(key string) string {
	return s[strings.ToUpper(key)]
}

// List splits a comma separated value
func (s Settings) List(key string) []string {
	raw := s.Get(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Lookup parses the annotation for namespace from a struct tag
func Lookup(tag reflect.StructTag, namespace string) (Settings, bool) {
	value, ok := tag.Lookup(namespace)
	if !ok {
		return nil, false
	}
	return Parse(value), true
}

// Reader extracts the annotations of registered namespaces from struct tags
type Reader struct{}

// NewReader creates a reader over the process-wide namespace table
func NewReader() *Reader {
	return &Reader{}
}

// Read returns the raw annotation values of every registered namespace found in tag
func (r *Reader) Read(tag reflect.StructTag) map[string]string {
	var out map[string]string
	for _, ns := range Namespaces() {
		if value, ok := tag.Lookup(ns); ok {
			if out == nil {
				out = make(map[string]string)
			}
			out[ns] = value
		}
	}
	return out
}
