package metadata

import "slices"

// Accessor is a read-only, typed view over a metadata tree.
type Accessor struct {
	m Map
}

// NewAccessor wraps m. The caller must not mutate m afterwards.
func NewAccessor(m Map) Accessor {
	if m == nil {
		m = Map{}
	}
	return Accessor{m: m}
}

// Get returns the value at path, or a *MissingKeyError.
func (a Accessor) Get(path ...string) (any, error) {
	var cur any = a.m
	for i, seg := range path {
		m, ok := cur.(Map)
		if !ok {
			return nil, &MissingKeyError{Path: slices.Clone(path[:i+1])}
		}
		cur, ok = m[seg]
		if !ok {
			return nil, &MissingKeyError{Path: slices.Clone(path[:i+1])}
		}
	}
	return cloneValue(cur), nil
}

// Has reports whether a value exists at path.
func (a Accessor) Has(path ...string) bool {
	_, err := a.Get(path...)
	return err == nil
}

// GetOr returns the value at path, or def when the path is absent.
func (a Accessor) GetOr(def any, path ...string) any {
	v, err := a.Get(path...)
	if err != nil {
		return def
	}
	return v
}

// GetString returns the string at path.
func (a Accessor) GetString(path ...string) (string, error) {
	v, err := a.Get(path...)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", &TypeError{Path: path, Want: "a string", Got: v}
	}
	return s, nil
}

// GetInt returns the integer at path.
func (a Accessor) GetInt(path ...string) (int64, error) {
	v, err := a.Get(path...)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, &TypeError{Path: path, Want: "an integer", Got: v}
	}
	return n, nil
}

// GetBool returns the boolean at path.
func (a Accessor) GetBool(path ...string) (bool, error) {
	v, err := a.Get(path...)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, &TypeError{Path: path, Want: "a bool", Got: v}
	}
	return b, nil
}

// GetMap returns a copy of the map at path.
func (a Accessor) GetMap(path ...string) (Map, error) {
	v, err := a.Get(path...)
	if err != nil {
		return nil, err
	}
	m, ok := v.(Map)
	if !ok {
		return nil, &TypeError{Path: path, Want: "a map", Got: v}
	}
	return m, nil
}

// GetSet returns a copy of the set at path. A sequence is accepted and
// converted.
func (a Accessor) GetSet(path ...string) (Set, error) {
	v, err := a.Get(path...)
	if err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case Set:
		return val, nil
	case []any:
		s := make(Set, len(val))
		for _, item := range val {
			if !isScalar(item) {
				return nil, &TypeError{Path: path, Want: "a set of scalars", Got: v}
			}
			s[item] = struct{}{}
		}
		return s, nil
	}
	return nil, &TypeError{Path: path, Want: "a set", Got: v}
}

// GetList returns a copy of the sequence at path.
func (a Accessor) GetList(path ...string) ([]any, error) {
	v, err := a.Get(path...)
	if err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case []any:
		return val, nil
	case Set:
		return val.Values(), nil
	}
	return nil, &TypeError{Path: path, Want: "a sequence", Got: v}
}

// Map returns a deep copy of the whole tree.
func (a Accessor) Map() Map {
	return a.m.Clone()
}
