package importer

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/catalogimport/internal/batch"
	"github.com/JonMunkholm/catalogimport/internal/deadletter"
	"github.com/JonMunkholm/catalogimport/internal/queue"
	"github.com/JonMunkholm/catalogimport/internal/storage/objects"
)

type memObject struct {
	data     string
	modified time.Time
}

// info reports the content MD5 as the ETag, as S3 does for single-part PUTs.
func (o memObject) info(key string) objects.Object {
	sum := md5.Sum([]byte(o.data))
	return objects.Object{
		Key:          key,
		Size:         int64(len(o.data)),
		LastModified: o.modified,
		ETag:         hex.EncodeToString(sum[:]),
	}
}

// memStore is an in-memory bucket with injectable failures.
type memStore struct {
	mu        sync.Mutex
	objs      map[string]memObject
	copyErr   error
	removeErr error
}

func newMemStore(files map[string]string) *memStore {
	s := &memStore{objs: map[string]memObject{}}
	for k, v := range files {
		s.objs[k] = memObject{data: v, modified: time.Now()}
	}
	return s
}

// put overwrites key, as a new upload under the same name would.
func (s *memStore) put(key, data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objs[key] = memObject{data: data, modified: time.Now()}
}

func (s *memStore) Open(_ context.Context, key string) (io.ReadCloser, objects.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objs[key]
	if !ok {
		return nil, objects.Object{}, objects.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(obj.data)), obj.info(key), nil
}

func (s *memStore) Copy(_ context.Context, src, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.copyErr != nil {
		return s.copyErr
	}
	obj, ok := s.objs[src]
	if !ok {
		return objects.ErrNotFound
	}
	s.objs[dst] = obj
	return nil
}

func (s *memStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeErr != nil {
		return s.removeErr
	}
	delete(s.objs, key)
	return nil
}

func (s *memStore) List(_ context.Context, prefix string) ([]objects.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []objects.Object
	for k, v := range s.objs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, v.info(k))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objs[key]
	return ok
}

// fakeSender accepts everything unless fail says otherwise.
type fakeSender struct {
	mu      sync.Mutex
	batches []batch.Batch
	fail    func(b batch.Batch) (queue.Result, error)
}

func (f *fakeSender) Send(_ context.Context, b batch.Batch) (queue.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b)
	if f.fail != nil {
		return f.fail(b)
	}
	var res queue.Result
	for _, e := range b.Entries {
		res.Accepted = append(res.Accepted, e.Index)
	}
	return res, nil
}

func (f *fakeSender) sizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.batches))
	for i, b := range f.batches {
		out[i] = b.Len()
	}
	return out
}

type captureSink struct {
	mu      sync.Mutex
	letters []deadletter.Letter
}

func (s *captureSink) Put(_ context.Context, l deadletter.Letter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters = append(s.letters, l)
	return nil
}

var errBroker = errors.New("channel closed")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}
