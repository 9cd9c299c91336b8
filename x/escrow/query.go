package escrow

import (
	"encoding/binary"
	"sort"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/orm"
)

const defaultQueryLimit = 10

// bucketPrefix is the raw store prefix of the escrow bucket.
var bucketPrefix = []byte("esc:")

// Record pairs an escrow with its identifier.
type Record struct {
	ID     uint64
	Escrow *Escrow
}

// Querier provides programmatic read access to the escrow bucket, on
// top of the raw "/escrows" routes registered via RegisterQuery.
type Querier struct {
	bucket orm.ModelBucket
}

func NewQuerier() *Querier {
	return &Querier{bucket: NewBucket()}
}

// Escrow returns the escrow with the given ID or nil when it does not
// exist.
func (q *Querier) Escrow(db weave.ReadOnlyKVStore, id uint64) (*Escrow, error) {
	var esc Escrow
	switch err := q.bucket.One(db, sequenceID(id), &esc); {
	case err == nil:
		return &esc, nil
	case errors.ErrNotFound.Is(err):
		return nil, nil
	default:
		return nil, errors.Wrap(err, "cannot load escrow")
	}
}

// ByParticipant returns all escrows the address takes part in, as
// source, beneficiary or approver, ascending by ID and strictly after
// startAfter. Index entries whose record is gone are skipped.
func (q *Querier) ByParticipant(db weave.ReadOnlyKVStore, addr weave.Address, startAfter uint64, limit int) ([]Record, error) {
	if err := addr.Validate(); err != nil {
		return nil, errors.Wrap(err, "address")
	}
	limit = queryLimit(limit)

	seen := make(map[uint64]struct{})
	var ids []uint64
	for _, index := range []string{"source", "beneficiary", "approver"} {
		var escrows []Escrow
		keys, err := q.bucket.ByIndex(db, index, addr, &escrows)
		if err != nil {
			return nil, errors.Wrapf(err, "index %s", index)
		}
		for _, key := range keys {
			if len(key) != 8 {
				continue
			}
			id := binary.BigEndian.Uint64(key)
			if id <= startAfter {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Record, 0, limit)
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		esc, err := q.Escrow(db, id)
		if err != nil {
			return nil, err
		}
		if esc == nil {
			continue
		}
		out = append(out, Record{ID: id, Escrow: esc})
	}
	return out, nil
}

// All returns every stored escrow ascending by ID, strictly after
// startAfter. Completed escrows are included, the bucket itself never
// forgets a record.
func (q *Querier) All(db weave.ReadOnlyKVStore, startAfter uint64, limit int) ([]Record, error) {
	limit = queryLimit(limit)

	start := append(append([]byte{}, bucketPrefix...), sequenceID(startAfter+1)...)
	end := prefixEnd(bucketPrefix)
	iter, err := db.Iterator(start, end)
	if err != nil {
		return nil, errors.Wrap(err, "iterator")
	}
	defer iter.Release()

	var out []Record
	for len(out) < limit {
		key, value, err := iter.Next()
		switch {
		case err == nil:
			// pass
		case errors.ErrIteratorDone.Is(err):
			return out, nil
		default:
			return nil, errors.Wrap(err, "iterator next")
		}
		if len(key) != len(bucketPrefix)+8 {
			continue
		}
		var esc Escrow
		if err := esc.Unmarshal(value); err != nil {
			return nil, errors.Wrap(err, "cannot unmarshal escrow")
		}
		id := binary.BigEndian.Uint64(key[len(bucketPrefix):])
		out = append(out, Record{ID: id, Escrow: &esc})
	}
	return out, nil
}

func queryLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	return limit
}

// sequenceID returns the store key of the given escrow ID.
func sequenceID(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

// prefixEnd returns the smallest key that is bigger than any key with
// the given prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
