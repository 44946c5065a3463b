package docstore

import (
	"github.com/go-openapi/inflect"

	"github.com/roach88/relmap/internal/dialect"
	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/queryir"
	"github.com/roach88/relmap/internal/record"
)

// Op names a document command.
type Op string

const (
	OpInsert  Op = "insert"
	OpUpdate  Op = "update"
	OpReplace Op = "replace"
	OpDelete  Op = "delete"
	OpFind    Op = "find"
)

// Command is one document-store request. A document backend executes it
// as a single round trip; there are no detail collections.
type Command struct {
	Op         Op     `msgpack:"op"`
	Collection string `msgpack:"collection"`
	Filter     D      `msgpack:"filter,omitempty"`
	Doc        D      `msgpack:"doc,omitempty"`
	Update     D      `msgpack:"update,omitempty"`
	Sort       D      `msgpack:"sort,omitempty"`
	Upsert     bool   `msgpack:"upsert,omitempty"`

	// Versioned is set when Filter carries the version predicate; a
	// versioned command that matches nothing is a lock conflict.
	Versioned bool `msgpack:"versioned,omitempty"`
}

// Option configures a Compiler.
type Option func(*Compiler)

// OnlyModified restricts $set to modified fields. Arrays are always set
// whole.
func OnlyModified() Option { return func(c *Compiler) { c.onlyModified = true } }

// WithoutVersionCheck drops the version predicate from filters.
func WithoutVersionCheck() Option { return func(c *Compiler) { c.noVersionCheck = true } }

// Compiler renders document commands for one record.
type Compiler struct {
	rec            *record.Record
	collection     string
	ix             *record.Index
	onlyModified   bool
	noVersionCheck bool
}

// New binds a compiler to rec. The collection is the underscored record
// name.
func New(rec *record.Record, opts ...Option) *Compiler {
	c := &Compiler{rec: rec, collection: inflect.Underscore(rec.Name())}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collection returns the collection name.
func (c *Compiler) Collection() string { return c.collection }

// Index returns the field index used to resolve filter references.
func (c *Compiler) Index() *record.Index {
	if c.ix == nil {
		c.ix = record.NewIndex(c.rec)
	}
	return c.ix
}

// Save picks insert for a new version, update otherwise. An unknown
// version updates with upsert, which is the document-store form of the
// insert fallback.
func (c *Compiler) Save() (Command, error) {
	if dialect.StateOf(c.rec.VersionField()) == dialect.VersionNew {
		return c.InsertOne()
	}
	return c.UpdateOne()
}

// InsertOne renders the whole record with its next version.
func (c *Compiler) InsertOne() (Command, error) {
	doc, err := Document(c.rec, true)
	if err != nil {
		return Command{}, err
	}
	return Command{Op: OpInsert, Collection: c.collection, Doc: doc}, nil
}

// UpdateOne renders a $set of the record's values filtered by key and
// version. An unknown version is incremented in place with $inc and the
// command upserts.
func (c *Compiler) UpdateOne() (Command, error) {
	filter, versioned, err := c.keyFilter()
	if err != nil {
		return Command{}, err
	}
	vf := c.rec.VersionField()
	unknown := dialect.StateOf(vf) == dialect.VersionUnknown

	set := D{}
	for _, m := range c.rec.Members() {
		switch m.Kind {
		case record.MemberField:
			f := m.Field
			if f.IsKey() || (f.IsVersion() && unknown) {
				continue
			}
			v := f.Value()
			if f.IsVersion() {
				if v, err = dialect.NextVersion(f); err != nil {
					return Command{}, err
				}
			} else if c.onlyModified && !f.Modified() {
				continue
			} else if err := checkLength(f); err != nil {
				return Command{}, err
			}
			set = append(set, E{Key: f.Name(), Value: ir.ToAny(v)})
		case record.MemberRecord:
			if (c.onlyModified || m.Record.Lazy()) && !m.Record.HasModified() {
				continue
			}
			sub, err := Document(m.Record, false)
			if err != nil {
				return Command{}, err
			}
			set = append(set, E{Key: m.Record.Name(), Value: sub})
		case record.MemberArray:
			list, err := arrayList(m.Array)
			if err != nil {
				return Command{}, err
			}
			set = append(set, E{Key: m.Array.Name(), Value: list})
		}
	}

	update := D{}
	if len(set) > 0 {
		update = append(update, E{Key: "$set", Value: set})
	}
	if unknown && vf != nil {
		update = append(update, E{Key: "$inc", Value: D{{Key: vf.Name(), Value: int64(1)}}})
	}
	return Command{
		Op:         OpUpdate,
		Collection: c.collection,
		Filter:     filter,
		Update:     update,
		Upsert:     unknown,
		Versioned:  versioned,
	}, nil
}

// ReplaceOne renders the whole record as an upserting replacement keyed
// by the key fields only.
func (c *Compiler) ReplaceOne() (Command, error) {
	filter, err := c.keys()
	if err != nil {
		return Command{}, err
	}
	doc, err := Document(c.rec, true)
	if err != nil {
		return Command{}, err
	}
	return Command{Op: OpReplace, Collection: c.collection, Filter: filter, Doc: doc, Upsert: true}, nil
}

// DeleteOne renders a delete filtered by key and version.
func (c *Compiler) DeleteOne() (Command, error) {
	filter, versioned, err := c.keyFilter()
	if err != nil {
		return Command{}, err
	}
	return Command{Op: OpDelete, Collection: c.collection, Filter: filter, Versioned: versioned}, nil
}

// Find renders a filtered, sorted find.
func (c *Compiler) Find(items []queryir.Item, sort *queryir.SortSpec) (Command, error) {
	root, err := queryir.Build(items)
	if err != nil {
		return Command{}, err
	}
	filter, err := Filter(root, c.Index())
	if err != nil {
		return Command{}, err
	}
	order, err := Sort(sort, c.Index())
	if err != nil {
		return Command{}, err
	}
	return Command{Op: OpFind, Collection: c.collection, Filter: filter, Sort: order}, nil
}

// keys renders the key equality filter. Key fields inside sub-records use
// dotted paths.
func (c *Compiler) keys() (D, error) {
	var filter D
	var walk func(r *record.Record, prefix string) error
	walk = func(r *record.Record, prefix string) error {
		for _, m := range r.Members() {
			switch m.Kind {
			case record.MemberField:
				if !m.Field.IsKey() {
					continue
				}
				path := prefix + m.Field.Name()
				if m.Field.IsNull() {
					return ir.FieldError(ir.ErrCodeMissingKey, path, "key field is null")
				}
				filter = append(filter, E{Key: path, Value: ir.ToAny(m.Field.Value())})
			case record.MemberRecord:
				if err := walk(m.Record, prefix+m.Record.Name()+"."); err != nil {
					return err
				}
			case record.MemberArray:
			}
		}
		return nil
	}
	if err := walk(c.rec, ""); err != nil {
		return nil, err
	}
	if len(filter) == 0 {
		return nil, ir.Errorf(ir.ErrCodeMissingKey, "record %s has no key fields", c.rec.Name())
	}
	return filter, nil
}

func (c *Compiler) keyFilter() (D, bool, error) {
	filter, err := c.keys()
	if err != nil {
		return nil, false, err
	}
	vf := c.rec.VersionField()
	if vf == nil || c.noVersionCheck || dialect.StateOf(vf) == dialect.VersionUnknown {
		return filter, false, nil
	}
	return append(filter, E{Key: vf.Name(), Value: ir.ToAny(vf.Value())}), true, nil
}
