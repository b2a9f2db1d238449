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

// Package checkpoint persists the last processed stream position so a
// restarted relay can resume where it stopped
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_cbor "github.com/fxamacker/cbor/v2"
)

var ErrCorrupt = errors.New("checkpoint file is corrupt")

// Position identifies a block on the stream
type Position struct {
	// Tells the CBOR encoder to convert to/from a struct and a CBOR array
	_        struct{} `cbor:",toarray"`
	BlockNum uint32
	BlockID  [32]byte
}

// Store loads and saves a position. Load returns a nil position when
// nothing has been saved yet
type Store interface {
	Load() (*Position, error)
	Save(Position) error
}

var (
	cachedEncMode  _cbor.EncMode
	cachedDecMode  _cbor.DecMode
	cachedModeErr  error
	cachedModeOnce sync.Once
)

func getModes() (_cbor.EncMode, _cbor.DecMode, error) {
	cachedModeOnce.Do(func() {
		encOptions := _cbor.EncOptions{
			Sort: _cbor.SortCoreDeterministic,
		}
		cachedEncMode, cachedModeErr = encOptions.EncMode()
		if cachedModeErr != nil {
			return
		}
		decOptions := _cbor.DecOptions{
			ExtraReturnErrors: _cbor.ExtraDecErrorUnknownField,
		}
		cachedDecMode, cachedModeErr = decOptions.DecMode()
	})
	return cachedEncMode, cachedDecMode, cachedModeErr
}

// Encode returns the CBOR form of a position
func Encode(pos Position) ([]byte, error) {
	em, _, err := getModes()
	if err != nil {
		return nil, err
	}
	return em.Marshal(pos)
}

// Decode parses the CBOR form of a position
func Decode(data []byte) (*Position, error) {
	_, dm, err := getModes()
	if err != nil {
		return nil, err
	}
	var pos Position
	if err := dm.Unmarshal(data, &pos); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return &pos, nil
}

// FileStore keeps the position in a single file, replaced atomically on
// every save
type FileStore struct {
	path  string
	mutex sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (*Position, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return Decode(data)
}

func (s *FileStore) Save(pos Position) error {
	data, err := Encode(pos)
	if err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// MemoryStore keeps the position in memory
type MemoryStore struct {
	mutex sync.Mutex
	pos   *Position
}

func (s *MemoryStore) Load() (*Position, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.pos == nil {
		return nil, nil
	}
	ret := *s.pos
	return &ret, nil
}

func (s *MemoryStore) Save(pos Position) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pos = &pos
	return nil
}
