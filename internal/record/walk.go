package record

// Visitor receives callbacks during Walk. Any nil callback is skipped.
//
// EnterRecord and EnterArray return whether to descend. For arrays,
// descending visits every element, holes included, through Element.
type Visitor struct {
	Field       func(p Path, f *Field) error
	EnterRecord func(p Path, r *Record) (bool, error)
	LeaveRecord func(p Path, r *Record) error
	EnterArray  func(p Path, a *Array) (bool, error)
	Element     func(p Path, a *Array, i int, e *Record) (bool, error)
	LeaveArray  func(p Path, a *Array) error
}

// Walk visits r's members depth first, in declaration order. The root record
// itself is not reported; its members are visited with single-step paths.
func Walk(r *Record, v Visitor) error {
	return walkMembers(r, nil, v)
}

func walkMembers(r *Record, prefix Path, v Visitor) error {
	for _, m := range r.Members() {
		switch m.Kind {
		case MemberField:
			if v.Field != nil {
				if err := v.Field(prefix.Append(Step{Kind: StepField, Name: m.Field.Name(), Index: -1}), m.Field); err != nil {
					return err
				}
			}
		case MemberRecord:
			p := prefix.Append(Step{Kind: StepRecord, Name: m.Record.Name(), Index: -1})
			descend := true
			if v.EnterRecord != nil {
				var err error
				if descend, err = v.EnterRecord(p, m.Record); err != nil {
					return err
				}
			}
			if descend {
				if err := walkMembers(m.Record, p, v); err != nil {
					return err
				}
			}
			if v.LeaveRecord != nil {
				if err := v.LeaveRecord(p, m.Record); err != nil {
					return err
				}
			}
		case MemberArray:
			if err := walkArray(m.Array, prefix.Append(Step{Kind: StepArray, Name: m.Array.Name(), Index: -1}), v); err != nil {
				return err
			}
		}
	}
	return nil
}

func walkArray(a *Array, p Path, v Visitor) error {
	descend := true
	if v.EnterArray != nil {
		var err error
		if descend, err = v.EnterArray(p, a); err != nil {
			return err
		}
	}
	if descend {
		for i := 0; i < a.Len(); i++ {
			e := a.At(i)
			ep := p.WithIndex(i)
			into := e != nil
			if v.Element != nil {
				var err error
				if into, err = v.Element(ep, a, i, e); err != nil {
					return err
				}
			}
			if into && e != nil {
				if err := walkMembers(e, ep, v); err != nil {
					return err
				}
			}
		}
	}
	if v.LeaveArray != nil {
		return v.LeaveArray(p, a)
	}
	return nil
}
