// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import (
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Bucket provides a logical namespace inside a kv store by key prefixing.
type Bucket string

// NewStore creates a bucket store from the source store.
func (b Bucket) NewStore(src Store) Store {
	return &bucketStore{string(b), src}
}

type bucketStore struct {
	prefix string
	src    Store
}

func (s *bucketStore) makeKey(key []byte) []byte {
	return append(append(make([]byte, 0, len(s.prefix)+len(key)), s.prefix...), key...)
}

func (s *bucketStore) Get(key []byte) ([]byte, error) {
	return s.src.Get(s.makeKey(key))
}

func (s *bucketStore) Has(key []byte) (bool, error) {
	return s.src.Has(s.makeKey(key))
}

func (s *bucketStore) IsNotFound(err error) bool {
	return s.src.IsNotFound(err)
}

func (s *bucketStore) Put(key, val []byte) error {
	return s.src.Put(s.makeKey(key), val)
}

func (s *bucketStore) Delete(key []byte) error {
	return s.src.Delete(s.makeKey(key))
}

func (s *bucketStore) NewBatch() Batch {
	return &bucketBatch{s.prefix, s.src.NewBatch()}
}

func (s *bucketStore) NewIterator(r Range) Iterator {
	bucketRange := util.BytesPrefix([]byte(s.prefix))
	start := append([]byte(s.prefix), r.Start...)
	limit := bucketRange.Limit
	if len(r.Limit) > 0 {
		limit = append([]byte(s.prefix), r.Limit...)
	}
	return &bucketIterator{
		len(s.prefix),
		s.src.NewIterator(Range{Start: start, Limit: limit}),
	}
}

type bucketBatch struct {
	prefix string
	batch  Batch
}

func (b *bucketBatch) Put(key, val []byte) error {
	return b.batch.Put(append([]byte(b.prefix), key...), val)
}

func (b *bucketBatch) Delete(key []byte) error {
	return b.batch.Delete(append([]byte(b.prefix), key...))
}

func (b *bucketBatch) Len() int { return b.batch.Len() }

func (b *bucketBatch) Write() error { return b.batch.Write() }

type bucketIterator struct {
	prefixLen int
	iter      Iterator
}

func (i *bucketIterator) Next() bool { return i.iter.Next() }

func (i *bucketIterator) Release() { i.iter.Release() }

func (i *bucketIterator) Error() error { return i.iter.Error() }

// Key strips the bucket prefix.
func (i *bucketIterator) Key() []byte { return i.iter.Key()[i.prefixLen:] }

func (i *bucketIterator) Value() []byte { return i.iter.Value() }
