package memory

import (
	"sync/atomic"

	"github.com/sharesphere/spherecore/internal/apperr"
)

// uniqueIndex maps the key of every row in its partition to the row id.
// key reports false for rows outside the partition (revoked, retired, deleted).
type uniqueIndex[T any] struct {
	name string
	key  func(*T) (string, bool)
	ids  map[string]int64
}

// table holds committed rows. All fields except seq are guarded by Store.mu.
type table[T any] struct {
	name    string
	id      func(*T) int64
	setID   func(*T, int64)
	rows    map[int64]T
	uniques []*uniqueIndex[T]
	// check enforces cross-row references against the transaction's view
	check func(tx *memTx, row *T) error
	seq   atomic.Int64
}

func newTable[T any](name string, id func(*T) int64, setID func(*T, int64)) *table[T] {
	return &table[T]{
		name:  name,
		id:    id,
		setID: setID,
		rows:  make(map[int64]T),
	}
}

func (t *table[T]) unique(name string, key func(*T) (string, bool)) *table[T] {
	t.uniques = append(t.uniques, &uniqueIndex[T]{name: name, key: key, ids: make(map[string]int64)})
	return t
}

// txTable is a table seen through one transaction: committed rows overlaid with
// the transaction's own writes. A nil entry in dirty marks a deleted row.
type txTable[T any] struct {
	t     *table[T]
	tx    *memTx
	dirty map[int64]*T
}

func (v *txTable[T]) get(id int64) (T, bool) {
	if r, ok := v.dirty[id]; ok {
		if r == nil {
			var zero T
			return zero, false
		}
		return *r, true
	}
	v.tx.rlock()
	defer v.tx.runlock()
	r, ok := v.t.rows[id]
	return r, ok
}

// lookup finds the row holding key in unique index idx
func (v *txTable[T]) lookup(idx int, key string) (T, bool) {
	var zero T
	u := v.t.uniques[idx]
	for _, r := range v.dirty {
		if r == nil {
			continue
		}
		if k, ok := u.key(r); ok && k == key {
			return *r, true
		}
	}

	v.tx.rlock()
	id, ok := u.ids[key]
	var row T
	if ok {
		row = v.t.rows[id]
	}
	v.tx.runlock()

	if !ok {
		return zero, false
	}
	if _, shadowed := v.dirty[id]; shadowed {
		// the overlay version no longer holds key, or it would have matched above
		return zero, false
	}
	return row, true
}

// scan returns a copy of every visible row that matches keep
func (v *txTable[T]) scan(keep func(*T) bool) []T {
	var out []T
	v.tx.rlock()
	for id, r := range v.t.rows {
		if _, shadowed := v.dirty[id]; shadowed {
			continue
		}
		if keep(&r) {
			out = append(out, r)
		}
	}
	v.tx.runlock()
	for _, r := range v.dirty {
		if r != nil && keep(r) {
			out = append(out, *r)
		}
	}
	return out
}

func (v *txTable[T]) insert(row *T) error {
	if err := v.tx.writable(); err != nil {
		return err
	}
	assigned := false
	if v.t.id(row) == 0 {
		v.t.setID(row, v.t.seq.Add(1))
		assigned = true
	}
	if err := v.put(row); err != nil {
		if assigned {
			v.t.setID(row, 0)
		}
		return err
	}
	return nil
}

func (v *txTable[T]) update(row *T) error {
	if err := v.tx.writable(); err != nil {
		return err
	}
	if _, ok := v.get(v.t.id(row)); !ok {
		return apperr.NotFoundf("%s %d", v.t.name, v.t.id(row))
	}
	return v.put(row)
}

func (v *txTable[T]) remove(id int64) error {
	if err := v.tx.writable(); err != nil {
		return err
	}
	if _, ok := v.get(id); !ok {
		return apperr.NotFoundf("%s %d", v.t.name, id)
	}
	v.ensureDirty()
	v.dirty[id] = nil
	return nil
}

func (v *txTable[T]) put(row *T) error {
	if v.t.check != nil {
		if err := v.t.check(v.tx, row); err != nil {
			return err
		}
	}
	id := v.t.id(row)
	for i, u := range v.t.uniques {
		k, ok := u.key(row)
		if !ok {
			continue
		}
		if other, found := v.lookup(i, k); found && v.t.id(&other) != id {
			return apperr.Conflictf("%s: %s already taken", v.t.name, u.name)
		}
	}
	cp := *row
	v.ensureDirty()
	v.dirty[id] = &cp
	return nil
}

func (v *txTable[T]) ensureDirty() {
	if v.dirty == nil {
		v.dirty = make(map[int64]*T)
	}
}

// verify re-checks the unique indexes against committed state. Caller holds Store.mu.
func (v *txTable[T]) verify() error {
	for _, u := range v.t.uniques {
		claimed := make(map[string]int64, len(v.dirty))
		for id, r := range v.dirty {
			if r == nil {
				continue
			}
			k, ok := u.key(r)
			if !ok {
				continue
			}
			if prev, dup := claimed[k]; dup && prev != id {
				return apperr.Conflictf("%s: %s already taken", v.t.name, u.name)
			}
			claimed[k] = id

			owner, exists := u.ids[k]
			if !exists || owner == id {
				continue
			}
			if next, touched := v.dirty[owner]; touched {
				if next == nil {
					continue
				}
				if nk, ok := u.key(next); !ok || nk != k {
					continue
				}
			}
			return apperr.Conflictf("%s: %s already taken", v.t.name, u.name)
		}
	}
	return nil
}

// apply publishes the overlay. Caller holds Store.mu exclusively and has run verify.
func (v *txTable[T]) apply() {
	for id, r := range v.dirty {
		if old, ok := v.t.rows[id]; ok {
			for _, u := range v.t.uniques {
				if k, ok := u.key(&old); ok && u.ids[k] == id {
					delete(u.ids, k)
				}
			}
		}
		if r == nil {
			delete(v.t.rows, id)
			continue
		}
		v.t.rows[id] = *r
	}
	for id, r := range v.dirty {
		if r == nil {
			continue
		}
		for _, u := range v.t.uniques {
			if k, ok := u.key(r); ok {
				u.ids[k] = id
			}
		}
	}
}

func ptrs[T any](rows []T) []*T {
	out := make([]*T, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out
}

func found[T any](row T, ok bool) *T {
	if !ok {
		return nil
	}
	return &row
}
