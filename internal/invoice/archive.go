package invoice

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	archiveBucketName = "invoices"
	orderBucketName   = "order"
)

// WriteArchive exports entries into a bbolt file at path, replacing any
// previous archive content. Store order is kept in a separate bucket.
func WriteArchive(path string, entries []StoreEntry) error {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer db.Close()

	return db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{archiveBucketName, orderBucketName} {
			if tx.Bucket([]byte(name)) != nil {
				if err := tx.DeleteBucket([]byte(name)); err != nil {
					return fmt.Errorf("resetting bucket %s: %w", name, err)
				}
			}
		}
		docs, err := tx.CreateBucket([]byte(archiveBucketName))
		if err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
		order, err := tx.CreateBucket([]byte(orderBucketName))
		if err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}

		for i, e := range entries {
			doc := e.Document.clone()
			doc.normalize()
			data, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("marshaling invoice %q: %w", e.ID, err)
			}
			if err := docs.Put([]byte(e.ID), data); err != nil {
				return err
			}
			seq := make([]byte, 8)
			binary.BigEndian.PutUint64(seq, uint64(i))
			if err := order.Put([]byte(e.ID), seq); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadArchive loads the entries written by WriteArchive, in their original order
func ReadArchive(path string) ([]StoreEntry, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer db.Close()

	type ranked struct {
		seq   uint64
		entry StoreEntry
	}
	var items []ranked

	err = db.View(func(tx *bbolt.Tx) error {
		docs := tx.Bucket([]byte(archiveBucketName))
		order := tx.Bucket([]byte(orderBucketName))
		if docs == nil || order == nil {
			return fmt.Errorf("archive has no %s bucket", archiveBucketName)
		}
		return docs.ForEach(func(k, v []byte) error {
			var doc Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("unmarshaling invoice %q: %w", k, err)
			}
			doc.normalize()
			var seq uint64
			if s := order.Get(k); len(s) == 8 {
				seq = binary.BigEndian.Uint64(s)
			}
			items = append(items, ranked{seq: seq, entry: StoreEntry{ID: string(k), Document: doc}})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].seq < items[j].seq })
	entries := make([]StoreEntry, 0, len(items))
	for _, it := range items {
		entries = append(entries, it.entry)
	}
	return entries, nil
}
