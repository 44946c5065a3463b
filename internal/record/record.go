package record

// MemberKind tags the variant held by a Member.
type MemberKind int

const (
	MemberField MemberKind = iota + 1
	MemberRecord
	MemberArray
)

// Member is one ordered child of a Record. Exactly one of Field, Record or
// Array is set, selected by Kind; consumers switch on Kind exhaustively.
type Member struct {
	Kind   MemberKind
	Field  *Field
	Record *Record
	Array  *Array
}

// Name returns the member's name regardless of variant.
func (m Member) Name() string {
	switch m.Kind {
	case MemberField:
		return m.Field.Name()
	case MemberRecord:
		return m.Record.Name()
	case MemberArray:
		return m.Array.Name()
	}
	return ""
}

// Record is a named node holding an ordered list of members.
//
// The caller constructs and owns a Record. Compilers read it; read-back
// mutates it in place.
type Record struct {
	name    string
	lazy    bool
	members []Member
}

// New creates an empty record.
func New(name string) *Record {
	return &Record{name: name}
}

// Name returns the record name.
func (r *Record) Name() string { return r.name }

// Lazy reports whether the record is loaded on demand when it is a sub-record.
func (r *Record) Lazy() bool { return r.lazy }

// SetLazy marks a sub-record as detail-only.
func (r *Record) SetLazy(lazy bool) *Record {
	r.lazy = lazy
	return r
}

// Members returns the ordered members. The slice must not be modified.
func (r *Record) Members() []Member { return r.members }

// AddField appends a field member and returns it.
func (r *Record) AddField(f *Field) *Field {
	r.members = append(r.members, Member{Kind: MemberField, Field: f})
	return f
}

// AddRecord appends a sub-record member and returns it.
func (r *Record) AddRecord(sub *Record) *Record {
	r.members = append(r.members, Member{Kind: MemberRecord, Record: sub})
	return sub
}

// AddArray appends an array member and returns it.
func (r *Record) AddArray(a *Array) *Array {
	r.members = append(r.members, Member{Kind: MemberArray, Array: a})
	return a
}

// Field returns the direct field member with the given name, or nil.
func (r *Record) Field(name string) *Field {
	for _, m := range r.members {
		if m.Kind == MemberField && m.Field.Name() == name {
			return m.Field
		}
	}
	return nil
}

// Record returns the direct sub-record member with the given name, or nil.
func (r *Record) Record(name string) *Record {
	for _, m := range r.members {
		if m.Kind == MemberRecord && m.Record.Name() == name {
			return m.Record
		}
	}
	return nil
}

// Array returns the direct array member with the given name, or nil.
func (r *Record) Array(name string) *Array {
	for _, m := range r.members {
		if m.Kind == MemberArray && m.Array.Name() == name {
			return m.Array
		}
	}
	return nil
}

// Keys returns the key fields of r and its flattened sub-records, in order.
func (r *Record) Keys() []*Field {
	var keys []*Field
	for _, m := range r.members {
		switch m.Kind {
		case MemberField:
			if m.Field.IsKey() {
				keys = append(keys, m.Field)
			}
		case MemberRecord:
			keys = append(keys, m.Record.Keys()...)
		case MemberArray:
		}
	}
	return keys
}

// VersionField returns the version field of r and its flattened
// sub-records, or nil when the record is not versioned.
func (r *Record) VersionField() *Field {
	for _, m := range r.members {
		switch m.Kind {
		case MemberField:
			if m.Field.IsVersion() {
				return m.Field
			}
		case MemberRecord:
			if f := m.Record.VersionField(); f != nil {
				return f
			}
		case MemberArray:
		}
	}
	return nil
}

// Clone returns a deep copy of r: values, modified flags, array contents and
// initial sizes are copied; index handles are not.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := &Record{name: r.name, lazy: r.lazy, members: make([]Member, len(r.members))}
	for i, m := range r.members {
		switch m.Kind {
		case MemberField:
			c.members[i] = Member{Kind: MemberField, Field: m.Field.clone()}
		case MemberRecord:
			c.members[i] = Member{Kind: MemberRecord, Record: m.Record.Clone()}
		case MemberArray:
			c.members[i] = Member{Kind: MemberArray, Array: m.Array.clone()}
		}
	}
	return c
}

// AcceptChanges clears every modified flag and marks every array loaded at
// its current size. The store calls it after a successful commit.
func (r *Record) AcceptChanges() {
	for _, m := range r.members {
		switch m.Kind {
		case MemberField:
			m.Field.ClearModified()
		case MemberRecord:
			m.Record.AcceptChanges()
		case MemberArray:
			for _, e := range m.Array.elems {
				if e != nil {
					e.AcceptChanges()
				}
			}
			m.Array.MarkLoaded()
		}
	}
}

// HasModified reports whether any field of r (recursively) is modified.
func (r *Record) HasModified() bool {
	for _, m := range r.members {
		switch m.Kind {
		case MemberField:
			if m.Field.Modified() {
				return true
			}
		case MemberRecord:
			if m.Record.HasModified() {
				return true
			}
		case MemberArray:
			for _, e := range m.Array.elems {
				if e != nil && e.HasModified() {
					return true
				}
			}
		}
	}
	return false
}
