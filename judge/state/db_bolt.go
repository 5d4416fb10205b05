// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"go.etcd.io/bbolt"

	"github.com/arbiterhq/arbiter/judge/structs"
)

/*
The durable store is a boltdb file with one bucket per table:

	user_id_count/    |--> value -> decimal counter
	user_list/        |--> <u32 be id> -> User JSON
	contest_id_count/ |--> value -> decimal counter
	contest/          |--> <u32 be id> -> Contest JSON
	job_id_count/     |--> value -> decimal counter
	response_content/ |--> <u32 be id> -> JobRecord JSON

List buckets are rewritten wholesale on save; counters are upserts. Records
round-trip through their wire JSON, so instants are RFC 3339 strings and
verdicts their display form.
*/
var (
	userCountBucket    = []byte("user_id_count")
	userListBucket     = []byte("user_list")
	contestCountBucket = []byte("contest_id_count")
	contestBucket      = []byte("contest")
	jobCountBucket     = []byte("job_id_count")
	jobBucket          = []byte("response_content")

	counterKey = []byte("value")

	allBuckets = [][]byte{
		userCountBucket, userListBucket,
		contestCountBucket, contestBucket,
		jobCountBucket, jobBucket,
	}
)

// BoltDB is the bbolt-backed Persister.
type BoltDB struct {
	db     *bbolt.DB
	logger hclog.Logger
}

// NewBoltDB opens (or creates) the store at path and ensures every bucket
// exists.
func NewBoltDB(path string, logger hclog.Logger) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state database %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize state database: %w", err)
	}
	logger.Debug("opened state database", "path", path)
	return &BoltDB{db: db, logger: logger}, nil
}

func (b *BoltDB) Enabled() bool { return true }

func (b *BoltDB) Close() error { return b.db.Close() }

func (b *BoltDB) Reset() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if err := tx.DeleteBucket(name); err != nil && err != bbolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

func idKey(id uint32) []byte {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], id)
	return k[:]
}

// saveRows rewrites a list bucket: delete, recreate, insert all rows keyed
// by id so cursor order is id order.
func saveRows[T any](db *bbolt.DB, bucket []byte, rows []T, id func(T) uint32) error {
	return db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucket); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		bkt, err := tx.CreateBucket(bucket)
		if err != nil {
			return err
		}
		for _, row := range rows {
			blob, err := json.Marshal(row)
			if err != nil {
				return err
			}
			if err := bkt.Put(idKey(id(row)), blob); err != nil {
				return err
			}
		}
		return nil
	})
}

func loadRows[T any](db *bbolt.DB, bucket []byte) ([]T, error) {
	out := []T{}
	err := db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucket)
		if bkt == nil {
			return ErrNotInitialized
		}
		return bkt.ForEach(func(k, v []byte) error {
			var row T
			if err := json.Unmarshal(v, &row); err != nil {
				return fmt.Errorf("failed to decode row in %s: %w", bucket, err)
			}
			out = append(out, row)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BoltDB) saveCounter(bucket []byte, v uint32) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return err
		}
		return bkt.Put(counterKey, []byte(strconv.FormatUint(uint64(v), 10)))
	})
}

func (b *BoltDB) loadCounter(bucket []byte) (uint32, error) {
	var v uint32
	err := b.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucket)
		if bkt == nil {
			return ErrNotInitialized
		}
		raw := bkt.Get(counterKey)
		if raw == nil {
			return ErrNotInitialized
		}
		parsed, err := strconv.ParseUint(string(raw), 10, 32)
		if err != nil {
			return fmt.Errorf("failed to parse counter in %s: %w", bucket, err)
		}
		v = uint32(parsed)
		return nil
	})
	return v, err
}

func (b *BoltDB) LoadUsers() ([]structs.User, error) {
	return loadRows[structs.User](b.db, userListBucket)
}

func (b *BoltDB) SaveUsers(users []structs.User) error {
	return saveRows(b.db, userListBucket, users, func(u structs.User) uint32 { return u.ID })
}

func (b *BoltDB) LoadUserCount() (uint32, error) { return b.loadCounter(userCountBucket) }
func (b *BoltDB) SaveUserCount(v uint32) error   { return b.saveCounter(userCountBucket, v) }

func (b *BoltDB) LoadContests() ([]*structs.Contest, error) {
	return loadRows[*structs.Contest](b.db, contestBucket)
}

func (b *BoltDB) SaveContests(contests []*structs.Contest) error {
	return saveRows(b.db, contestBucket, contests, func(c *structs.Contest) uint32 { return c.ID })
}

func (b *BoltDB) LoadContestCount() (uint32, error) { return b.loadCounter(contestCountBucket) }
func (b *BoltDB) SaveContestCount(v uint32) error   { return b.saveCounter(contestCountBucket, v) }

func (b *BoltDB) LoadJobs() ([]*structs.JobRecord, error) {
	return loadRows[*structs.JobRecord](b.db, jobBucket)
}

func (b *BoltDB) SaveJobs(jobs []*structs.JobRecord) error {
	return saveRows(b.db, jobBucket, jobs, func(j *structs.JobRecord) uint32 { return j.ID })
}

func (b *BoltDB) LoadJobCount() (uint32, error) { return b.loadCounter(jobCountBucket) }
func (b *BoltDB) SaveJobCount(v uint32) error   { return b.saveCounter(jobCountBucket, v) }
