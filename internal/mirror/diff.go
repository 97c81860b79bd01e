package mirror

import (
	"cmp"
	"slices"
)

type ChangeKind int

const (
	NoChange ChangeKind = iota
	Upsert
	Delete
)

func (k ChangeKind) String() string {
	switch k {
	case Upsert:
		return "upsert"
	case Delete:
		return "delete"
	default:
		return "none"
	}
}

// Change is one classified item of a diff. Upserts and no-ops carry the
// remote item, deletes carry the cached one.
type Change[T any] struct {
	Kind ChangeKind
	Item T
}

// Differ reconciles a cached snapshot against a remote one with a merge-join
// over both sides sorted by key.
//
// Keys must be unique within each side.
type Differ[T any, K cmp.Ordered] struct {
	Key func(T) K
	// Changed reports whether the remote copy of an item supersedes the
	// cached one.
	Changed func(remote, cached T) bool
	// Force holds keys that are upserted whenever they exist remotely.
	Force map[K]bool
}

// Diff classifies every key of either side exactly once, in ascending key
// order. Neither input is modified.
func (d Differ[T, K]) Diff(cached, remote []T) []Change[T] {
	var (
		byKey = func(a, b T) int { return cmp.Compare(d.Key(a), d.Key(b)) }
		cs    = slices.SortedFunc(slices.Values(cached), byKey)
		rs    = slices.SortedFunc(slices.Values(remote), byKey)
		out   = make([]Change[T], 0, max(len(cs), len(rs)))
		i, j  int
	)

	for i < len(cs) && j < len(rs) {
		c, r := cs[i], rs[j]
		switch cmp.Compare(d.Key(r), d.Key(c)) {
		case -1:
			// Only exists remotely
			out = append(out, Change[T]{Kind: Upsert, Item: r})
			j++
		case 1:
			// Gone from the remote side
			out = append(out, Change[T]{Kind: Delete, Item: c})
			i++
		default:
			kind := NoChange
			if d.Force[d.Key(r)] || d.Changed(r, c) {
				kind = Upsert
			}
			out = append(out, Change[T]{Kind: kind, Item: r})
			i++
			j++
		}
	}
	for ; i < len(cs); i++ {
		out = append(out, Change[T]{Kind: Delete, Item: cs[i]})
	}
	for ; j < len(rs); j++ {
		out = append(out, Change[T]{Kind: Upsert, Item: rs[j]})
	}

	return out
}

// Effective drops the no-op changes.
func Effective[T any](changes []Change[T]) []Change[T] {
	out := make([]Change[T], 0, len(changes))
	for _, c := range changes {
		if c.Kind != NoChange {
			out = append(out, c)
		}
	}

	return out
}

// RepoDiffer reconciles the catalog by ID. A repo is re-synced when it was
// pushed to after the cached copy, or when its ID is in force.
func RepoDiffer(force ...int64) Differ[Repo, int64] {
	keys := make(map[int64]bool, len(force))
	for _, id := range force {
		keys[id] = true
	}

	return Differ[Repo, int64]{
		Key: func(r Repo) int64 { return r.ID },
		Changed: func(remote, cached Repo) bool {
			return remote.PushedAt.After(cached.PushedAt)
		},
		Force: keys,
	}
}

// DocumentDiffer reconciles documents by path. Content hashes are compared
// for equality; any difference is a change.
func DocumentDiffer() Differ[Document, string] {
	return Differ[Document, string]{
		Key: func(d Document) string { return d.Path },
		Changed: func(remote, cached Document) bool {
			return remote.SHA != cached.SHA
		},
	}
}
