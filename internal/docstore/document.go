package docstore

import (
	"fmt"

	"github.com/roach88/relmap/internal/dialect"
	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/record"
)

// E is one document element.
type E struct {
	Key   string
	Value any
}

// D is an ordered document. Order is significant for commands and keeps
// encoded documents deterministic.
type D []E

// Get returns the value under key.
func (d D) Get(key string) (any, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Map converts d, recursively, into plain maps and slices.
func (d D) Map() map[string]any {
	m := make(map[string]any, len(d))
	for _, e := range d {
		m[e.Key] = plain(e.Value)
	}
	return m
}

func plain(v any) any {
	switch v := v.(type) {
	case D:
		return v.Map()
	case []any:
		out := make([]any, len(v))
		for i, x := range v {
			out[i] = plain(x)
		}
		return out
	default:
		return v
	}
}

// Document renders rec as a nested document: sub-records become embedded
// documents, arrays become lists (holes are nil, scalar arrays list their
// values). When nextVersion is set the version field holds the value a
// write stores.
func Document(rec *record.Record, nextVersion bool) (D, error) {
	doc := make(D, 0, len(rec.Members()))
	for _, m := range rec.Members() {
		switch m.Kind {
		case record.MemberField:
			v := m.Field.Value()
			if nextVersion && m.Field.IsVersion() {
				next, err := dialect.NextVersion(m.Field)
				if err != nil {
					return nil, err
				}
				v = next
			}
			if err := checkLength(m.Field); err != nil {
				return nil, err
			}
			doc = append(doc, E{Key: m.Field.Name(), Value: ir.ToAny(v)})
		case record.MemberRecord:
			sub, err := Document(m.Record, false)
			if err != nil {
				return nil, err
			}
			doc = append(doc, E{Key: m.Record.Name(), Value: sub})
		case record.MemberArray:
			list, err := arrayList(m.Array)
			if err != nil {
				return nil, err
			}
			doc = append(doc, E{Key: m.Array.Name(), Value: list})
		}
	}
	return doc, nil
}

func arrayList(a *record.Array) ([]any, error) {
	list := make([]any, a.Len())
	for i := range list {
		e := a.At(i)
		if e == nil {
			continue
		}
		if a.IsScalar() {
			f := e.Field(record.ScalarElement)
			if err := checkLength(f); err != nil {
				return nil, err
			}
			list[i] = ir.ToAny(f.Value())
			continue
		}
		sub, err := Document(e, false)
		if err != nil {
			return nil, err
		}
		list[i] = sub
	}
	return list, nil
}

// checkLength rejects text longer than the field's length hint.
func checkLength(f *record.Field) error {
	if f.Kind() == record.KindText && f.Length() > 0 && f.RuneLength() > f.Length() {
		return ir.FieldError(ir.ErrCodeValueTooLong, f.Name(),
			"%d runes exceeds length %d", f.RuneLength(), f.Length())
	}
	return nil
}

// Load fills rec from doc without marking fields modified. Missing members
// are left untouched; arrays are resized to the stored list and marked
// loaded. Nested documents may be D or map[string]any.
func Load(rec *record.Record, doc D) error {
	return load(rec, lookupD(doc), "")
}

type lookup func(key string) (any, bool)

func lookupD(d D) lookup { return d.Get }

func lookupMap(m map[string]any) lookup {
	return func(k string) (any, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func asLookup(v any) (lookup, bool) {
	switch v := v.(type) {
	case D:
		return lookupD(v), true
	case map[string]any:
		return lookupMap(v), true
	}
	return nil, false
}

func load(rec *record.Record, get lookup, prefix string) error {
	for _, m := range rec.Members() {
		name := m.Name()
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		raw, ok := get(name)
		if !ok {
			continue
		}
		switch m.Kind {
		case record.MemberField:
			if err := loadField(m.Field, raw, path); err != nil {
				return err
			}
		case record.MemberRecord:
			if raw == nil {
				continue
			}
			sub, ok := asLookup(raw)
			if !ok {
				return ir.FieldError(ir.ErrCodeTypeMismatch, path, "expected a document, got %T", raw)
			}
			if err := load(m.Record, sub, path); err != nil {
				return err
			}
		case record.MemberArray:
			if err := loadArray(m.Array, raw, path); err != nil {
				return err
			}
		}
	}
	return nil
}

func loadField(f *record.Field, raw any, path string) error {
	v, err := ir.FromAny(raw)
	if err != nil {
		return ir.Wrap(ir.ErrCodeTypeMismatch, err, "read %s", path)
	}
	cv, err := f.Coerce(v)
	if err != nil {
		e := ir.Wrap(ir.ErrCodeTypeMismatch, err, "read %s", f.Kind())
		e.Path = path
		return e
	}
	return f.Load(cv)
}

func loadArray(a *record.Array, raw any, path string) error {
	var list []any
	switch v := raw.(type) {
	case nil:
	case []any:
		list = v
	default:
		return ir.FieldError(ir.ErrCodeTypeMismatch, path, "expected a list, got %T", raw)
	}
	a.Resize(0)
	a.Resize(len(list))
	for i, item := range list {
		if item == nil {
			continue
		}
		elem, err := a.Ensure(i)
		if err != nil {
			return err
		}
		at := fmt.Sprintf("%s[%d]", path, i)
		if a.IsScalar() {
			if err := loadField(elem.Field(record.ScalarElement), item, at); err != nil {
				return err
			}
			continue
		}
		sub, ok := asLookup(item)
		if !ok {
			return ir.FieldError(ir.ErrCodeTypeMismatch, at, "expected a document, got %T", item)
		}
		if err := load(elem, sub, at); err != nil {
			return err
		}
	}
	a.MarkLoaded()
	return nil
}
