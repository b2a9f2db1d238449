// Copyright 2026 The persona-relay Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package content provides content addressed document stores
package content

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

var (
	ErrNotFound   = errors.New("content not found")
	ErrInvalidRef = errors.New("invalid content reference")
	ErrCorrupt    = errors.New("content does not match its reference")
)

// Store holds immutable documents addressed by a content reference
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

var refBuilder = cid.V1Builder{Codec: cid.Raw, MhType: mh.SHA2_256}

// Ref returns the content reference for a document
func Ref(data []byte) (string, error) {
	c, err := refBuilder.Sum(data)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// ParseRef validates a content reference
func ParseRef(ref string) (cid.Cid, error) {
	c, err := cid.Decode(ref)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %q: %w", ErrInvalidRef, ref, err)
	}
	return c, nil
}

// Verify checks that data hashes to the reference
func Verify(ref cid.Cid, data []byte) error {
	c, err := ref.Prefix().Sum(data)
	if err != nil {
		return err
	}
	if !c.Equals(ref) {
		return fmt.Errorf("%w: %s", ErrCorrupt, ref)
	}
	return nil
}

// MemoryStore keeps documents in memory
type MemoryStore struct {
	mutex sync.RWMutex
	docs  map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string][]byte),
	}
}

func (s *MemoryStore) Put(_ context.Context, data []byte) (string, error) {
	ref, err := Ref(data)
	if err != nil {
		return "", err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.docs[ref] = append([]byte(nil), data...)
	return ref, nil
}

// Set stores a document under an arbitrary reference
func (s *MemoryStore) Set(ref string, data []byte) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.docs[ref] = append([]byte(nil), data...)
}

func (s *MemoryStore) Get(_ context.Context, ref string) ([]byte, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	data, ok := s.docs[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return append([]byte(nil), data...), nil
}

// Len returns the number of stored documents
func (s *MemoryStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.docs)
}
