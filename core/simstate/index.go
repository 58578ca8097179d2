package simstate

import (
	"fmt"

	"github.com/benbjohnson/immutable"

	"github.com/kilianp07/fleetsim/core/geo"
)

type stringComparer struct{}

func (stringComparer) Compare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

type idSet = immutable.SortedMap[string, struct{}]

// index maps a cell to the ids located in it. Empty buckets are dropped.
type index struct {
	m *immutable.SortedMap[geo.ID, *idSet]
}

func newIndex() index {
	return index{m: immutable.NewSortedMap[geo.ID, *idSet](geo.Comparer{})}
}

func (ix index) add(g geo.ID, id string) index {
	bucket, ok := ix.m.Get(g)
	if !ok {
		bucket = immutable.NewSortedMap[string, struct{}](stringComparer{})
	}
	return index{m: ix.m.Set(g, bucket.Set(id, struct{}{}))}
}

func (ix index) remove(g geo.ID, id string) index {
	bucket, ok := ix.m.Get(g)
	if !ok {
		return ix
	}
	bucket = bucket.Delete(id)
	if bucket.Len() == 0 {
		return index{m: ix.m.Delete(g)}
	}
	return index{m: ix.m.Set(g, bucket)}
}

// ids lists the bucket for g in ascending order.
func (ix index) ids(g geo.ID) []string {
	bucket, ok := ix.m.Get(g)
	if !ok {
		return nil
	}
	out := make([]string, 0, bucket.Len())
	itr := bucket.Iterator()
	for !itr.Done() {
		id, _, _ := itr.Next()
		out = append(out, id)
	}
	return out
}

// each visits every (cell, id) pair.
func (ix index) each(fn func(g geo.ID, id string)) {
	itr := ix.m.Iterator()
	for !itr.Done() {
		g, bucket, _ := itr.Next()
		bi := bucket.Iterator()
		for !bi.Done() {
			id, _, _ := bi.Next()
			fn(g, id)
		}
	}
}

type locatable interface {
	GeoID() geo.ID
}

// collection is one entity map with its location and search indices. Every
// mutation touches all three from the same geoid.
type collection[T locatable] struct {
	byID   *immutable.SortedMap[string, T]
	loc    index
	search index
}

func newCollection[T locatable]() collection[T] {
	return collection[T]{
		byID:   immutable.NewSortedMap[string, T](stringComparer{}),
		loc:    newIndex(),
		search: newIndex(),
	}
}

func (c collection[T]) get(id string) (T, bool) { return c.byID.Get(id) }

func (c collection[T]) len() int { return c.byID.Len() }

func (c collection[T]) insert(id string, e T, searchRes int) (collection[T], error) {
	g := e.GeoID()
	parent, err := g.Parent(searchRes)
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrResolution, err)
	}
	return collection[T]{
		byID:   c.byID.Set(id, e),
		loc:    c.loc.add(g, id),
		search: c.search.add(parent, id),
	}, nil
}

func (c collection[T]) remove(id string, searchRes int) (collection[T], error) {
	old, ok := c.byID.Get(id)
	if !ok {
		return c, ErrNotFound
	}
	g := old.GeoID()
	parent, err := g.Parent(searchRes)
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrResolution, err)
	}
	return collection[T]{
		byID:   c.byID.Delete(id),
		loc:    c.loc.remove(g, id),
		search: c.search.remove(parent, id),
	}, nil
}

// replace swaps the entity stored at id, moving its index entries when the
// geoid changed.
func (c collection[T]) replace(id string, e T, searchRes int) (collection[T], error) {
	old, ok := c.byID.Get(id)
	if !ok {
		return c, ErrNotFound
	}
	if old.GeoID() == e.GeoID() {
		return collection[T]{byID: c.byID.Set(id, e), loc: c.loc, search: c.search}, nil
	}
	without, err := c.remove(id, searchRes)
	if err != nil {
		return c, err
	}
	return without.insert(id, e, searchRes)
}

func (c collection[T]) values() []T {
	out := make([]T, 0, c.byID.Len())
	itr := c.byID.Iterator()
	for !itr.Done() {
		_, v, _ := itr.Next()
		out = append(out, v)
	}
	return out
}

func (c collection[T]) ids() []string {
	out := make([]string, 0, c.byID.Len())
	itr := c.byID.Iterator()
	for !itr.Done() {
		id, _, _ := itr.Next()
		out = append(out, id)
	}
	return out
}

func (c collection[T]) geoIndex() geo.Index[T] {
	return geo.Index[T]{
		Len:    c.byID.Len(),
		Bucket: c.search.ids,
		Get:    c.byID.Get,
		Locate: func(e T) geo.ID { return e.GeoID() },
	}
}
