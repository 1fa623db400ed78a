// Package mapping loads entity mapping files from disk.
//
// The on-disk layout is one directory per entity type, each holding a
// mapping.json with the canonical records for that type:
//
//	<mapping-dir>/city/mapping.json
//	<mapping-dir>/restaurant/mapping.json
//
// A mapping file is either a JSON array of records or an object with an
// "entities" array. Records carry "cname" (required), optional "id" and
// "whitelist", and any other fields, which are preserved verbatim through
// to resolved output.
package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/conversekit/kbresolve/internal/entity"
	kberrors "github.com/conversekit/kbresolve/internal/errors"
)

// MappingFileName is the per-entity-type mapping file name.
const MappingFileName = "mapping.json"

// Record is one raw mapping entry as found in a mapping file.
type Record struct {
	ID        string
	Cname     string
	Whitelist []string
	Extra     map[string]any
}

// UnmarshalJSON decodes a record, diverting unknown fields into Extra.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Record{}
	for key, val := range raw {
		switch key {
		case "id":
			s, ok := val.(string)
			if !ok {
				return fmt.Errorf("field %q must be a string", key)
			}
			r.ID = s
		case "cname":
			s, ok := val.(string)
			if !ok {
				return fmt.Errorf("field %q must be a string", key)
			}
			r.Cname = s
		case "whitelist":
			list, ok := val.([]any)
			if !ok {
				return fmt.Errorf("field %q must be an array of strings", key)
			}
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return fmt.Errorf("field %q must be an array of strings", key)
				}
				r.Whitelist = append(r.Whitelist, s)
			}
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]any)
			}
			r.Extra[key] = val
		}
	}
	return nil
}

// MarshalJSON encodes a record with Extra fields inlined.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+3)
	for k, v := range r.Extra {
		out[k] = v
	}
	out["cname"] = r.Cname
	if r.ID != "" {
		out["id"] = r.ID
	}
	if len(r.Whitelist) > 0 {
		out["whitelist"] = r.Whitelist
	}
	return json.Marshal(out)
}

// Item converts the record to a canonical knowledge-base item.
func (r Record) Item() entity.CanonicalItem {
	return entity.CanonicalItem{
		ID:        r.ID,
		Cname:     r.Cname,
		Whitelist: r.Whitelist,
		Extra:     r.Extra,
	}
}

// mappingFile covers the object form {"entities": [...]}.
type mappingFile struct {
	Entities []Record `json:"entities"`
}

// Loader reads mapping files from a root directory.
type Loader struct {
	dir string
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Dir returns the mapping root directory.
func (l *Loader) Dir() string {
	return l.dir
}

// MappingPath returns the mapping file path for an entity type.
func (l *Loader) MappingPath(entityType string) string {
	return filepath.Join(l.dir, entityType, MappingFileName)
}

// EntityTypes lists entity types that have a mapping file, sorted.
func (l *Loader) EntityTypes() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kberrors.New(kberrors.ErrCodeMappingNotFound,
				fmt.Sprintf("mapping directory %s does not exist", l.dir), err)
		}
		return nil, fmt.Errorf("failed to read mapping directory: %w", err)
	}

	var types []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(l.MappingPath(e.Name())); err == nil {
			types = append(types, e.Name())
		}
	}
	sort.Strings(types)
	return types, nil
}

// Load reads and validates the mapping for one entity type, returning the
// records in file order.
func (l *Loader) Load(entityType string) ([]entity.CanonicalItem, error) {
	path := l.MappingPath(entityType)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kberrors.New(kberrors.ErrCodeMappingNotFound,
				fmt.Sprintf("no mapping file for entity type %q", entityType), err).
				WithDetail("path", path)
		}
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}

	records, err := parseRecords(data)
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeMappingInvalid,
			fmt.Sprintf("invalid mapping for entity type %q: %v", entityType, err), err).
			WithDetail("path", path)
	}

	items := make([]entity.CanonicalItem, 0, len(records))
	for i, rec := range records {
		if rec.Cname == "" {
			return nil, kberrors.New(kberrors.ErrCodeInvalidRecord,
				fmt.Sprintf("record %d in %q mapping has no cname", i, entityType), nil).
				WithDetail("path", path)
		}
		items = append(items, rec.Item())
	}
	return items, nil
}

// parseRecords accepts both the bare-array and {"entities": [...]} forms.
func parseRecords(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}

	var wrapped mappingFile
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Entities == nil {
		return nil, fmt.Errorf("expected a JSON array or an object with an \"entities\" array")
	}
	return wrapped.Entities, nil
}

// FileSource adapts the loader to a single entity type so the resolver can
// re-read records on every fit without knowing about the file layout.
type FileSource struct {
	loader     *Loader
	entityType string
}

// Source returns a FileSource for the given entity type.
func (l *Loader) Source(entityType string) *FileSource {
	return &FileSource{loader: l, entityType: entityType}
}

// Records loads the current mapping records for the source's entity type.
func (s *FileSource) Records() ([]entity.CanonicalItem, error) {
	return s.loader.Load(s.entityType)
}
