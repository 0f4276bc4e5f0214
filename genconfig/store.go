// Package genconfig loads structured generation configuration documents and
// resolves their inheritance chains into flattened, immutable documents.
//
// A document is a mapping from section name (shot, subject, scene, ...) to
// nested mappings or strings. A document may declare a parent via the
// reserved "_extends" key; resolution merges ancestor-to-descendant so that
// a descendant's leaf values always win while nested mappings merge
// recursively. The flattened result never contains "_extends".
package genconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Document is one configuration document: section name to nested
// mappings/strings. Documents handed out by the Store are copies; callers
// may not observe each other's mutations.
type Document map[string]any

// ExtendsKey is the reserved key naming a parent document.
const ExtendsKey = "_extends"

// supported file extensions, in lookup order.
var extensions = []string{".json", ".yaml", ".yml"}

// Store loads documents by name from a directory and resolves inheritance.
// Inline documents can be added with Add; they shadow files of the same name.
// The Store is safe for concurrent readers.
type Store struct {
	dir string

	mu     sync.RWMutex
	inline map[string]Document
	cache  map[string]Document
}

// NewStore creates a Store reading documents from dir. The directory does
// not have to exist; a Store over a missing directory simply has no file
// documents.
func NewStore(dir string) *Store {
	return &Store{
		dir:    dir,
		inline: make(map[string]Document),
		cache:  make(map[string]Document),
	}
}

// Add registers an inline document under name. It replaces any previously
// added inline document with the same name and shadows a file document.
func (s *Store) Add(name string, doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inline[name] = deepCopy(doc)
	delete(s.cache, name)
}

// Resolve loads the named document, walks its _extends chain and returns the
// flattened result. It fails with *NotFoundError when no document with that
// name exists and with *CycleError when the chain revisits a name.
func (s *Store) Resolve(name string) (Document, error) {
	// Walk from the named document up to its root ancestor.
	var chain []Document
	visited := make(map[string]bool)
	var order []string

	current := name
	for {
		if visited[current] {
			return nil, &CycleError{Chain: append(order, current)}
		}
		visited[current] = true
		order = append(order, current)

		doc, err := s.load(current)
		if err != nil {
			return nil, err
		}
		chain = append(chain, doc)

		parent, ok := doc[ExtendsKey]
		if !ok {
			break
		}
		parentName, ok := parent.(string)
		if !ok || strings.TrimSpace(parentName) == "" {
			return nil, &ParseError{Name: current, Reason: fmt.Sprintf("%s must be a non-empty string", ExtendsKey)}
		}
		current = parentName
	}

	// Merge ancestor-to-descendant: the last chain element is the root
	// ancestor, the first is the requested document.
	merged := Document{}
	for i := len(chain) - 1; i >= 0; i-- {
		merged = deepMerge(merged, chain[i])
	}
	delete(merged, ExtendsKey)
	return merged, nil
}

// ListAvailable enumerates the known document names. The order is sorted and
// therefore stable across calls.
func (s *Store) ListAvailable() []string {
	seen := make(map[string]bool)

	s.mu.RLock()
	for name := range s.inline {
		seen[name] = true
	}
	s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			base := entry.Name()
			ext := filepath.Ext(base)
			if !isSupportedExt(ext) {
				continue
			}
			name := strings.TrimSuffix(base, ext)
			if strings.HasPrefix(name, "_") {
				continue
			}
			seen[name] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// load returns the raw (unflattened) document for name, consulting inline
// documents first, then the cache, then the directory. Direct file paths are
// accepted as names so callers can point at a document outside the store
// directory.
func (s *Store) load(name string) (Document, error) {
	s.mu.RLock()
	if doc, ok := s.inline[name]; ok {
		s.mu.RUnlock()
		return deepCopy(doc), nil
	}
	if doc, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return deepCopy(doc), nil
	}
	s.mu.RUnlock()

	path := s.findFile(name)
	if path == "" {
		return nil, &NotFoundError{Name: name}
	}
	doc, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[name] = doc
	s.mu.Unlock()
	return deepCopy(doc), nil
}

func (s *Store) findFile(name string) string {
	// A name that is itself a readable file wins (inline authorship via path).
	if isSupportedExt(filepath.Ext(name)) {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	for _, ext := range extensions {
		path := filepath.Join(s.dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func isSupportedExt(ext string) bool {
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func loadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Name: path, Reason: err.Error()}
	}

	var doc Document
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, &ParseError{Name: path, Reason: err.Error()}
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, &ParseError{Name: path, Reason: err.Error()}
		}
	}
	if doc == nil {
		doc = Document{}
	}
	return normalize(doc).(Document), nil
}

// normalize rewrites yaml's map[any]any values into map[string]any so the
// rest of the pipeline sees one map shape regardless of the source format.
func normalize(v any) any {
	switch val := v.(type) {
	case Document:
		out := Document{}
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case map[string]any:
		out := map[string]any{}
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case map[any]any:
		out := map[string]any{}
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}
