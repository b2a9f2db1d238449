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

package chain

import (
	"fmt"

	"github.com/wireio/persona-relay/abi"
)

// TransactionFromValue converts a decoded "transaction" value into a
// Transaction. Action payloads are left packed
func TransactionFromValue(v any) (*Transaction, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected struct, got %T", ErrInvalidPayload, v)
	}
	var tx Transaction
	var err error
	if tx.Expiration, err = field[abi.TimePointSec](m, "expiration"); err != nil {
		return nil, err
	}
	if tx.RefBlockNum, err = field[uint16](m, "ref_block_num"); err != nil {
		return nil, err
	}
	if tx.RefBlockPrefix, err = field[uint32](m, "ref_block_prefix"); err != nil {
		return nil, err
	}
	if tx.MaxNetUsageWords, err = field[uint32](m, "max_net_usage_words"); err != nil {
		return nil, err
	}
	if tx.MaxCpuUsageMs, err = field[uint8](m, "max_cpu_usage_ms"); err != nil {
		return nil, err
	}
	if tx.DelaySec, err = field[uint32](m, "delay_sec"); err != nil {
		return nil, err
	}
	if tx.ContextFreeActions, err = actionsFromValue(m["context_free_actions"]); err != nil {
		return nil, err
	}
	if tx.Actions, err = actionsFromValue(m["actions"]); err != nil {
		return nil, err
	}
	if exts, ok := m["transaction_extensions"].([]any); ok {
		for _, item := range exts {
			em, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: extension is %T", ErrInvalidPayload, item)
			}
			var ext Extension
			if ext.Type, err = field[uint16](em, "type"); err != nil {
				return nil, err
			}
			if ext.Data, err = field[abi.Bytes](em, "data"); err != nil {
				return nil, err
			}
			tx.Extensions = append(tx.Extensions, ext)
		}
	}
	return &tx, nil
}

func actionsFromValue(v any) ([]Action, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: actions is %T", ErrInvalidPayload, v)
	}
	ret := make([]Action, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: action is %T", ErrInvalidPayload, item)
		}
		var action Action
		var err error
		if action.Account, err = field[abi.Name](m, "account"); err != nil {
			return nil, err
		}
		if action.Name, err = field[abi.Name](m, "name"); err != nil {
			return nil, err
		}
		data, err := field[abi.Bytes](m, "data")
		if err != nil {
			return nil, err
		}
		action.Data = data
		auths, _ := m["authorization"].([]any)
		for _, auth := range auths {
			am, ok := auth.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: authorization is %T", ErrInvalidPayload, auth)
			}
			var level PermissionLevel
			if level.Actor, err = field[abi.Name](am, "actor"); err != nil {
				return nil, err
			}
			if level.Permission, err = field[abi.Name](am, "permission"); err != nil {
				return nil, err
			}
			action.Authorization = append(action.Authorization, level)
		}
		ret = append(ret, action)
	}
	return ret, nil
}

func field[T any](m map[string]any, name string) (T, error) {
	var zero T
	v, ok := m[name]
	if !ok {
		return zero, fmt.Errorf("%w: missing field %s", ErrInvalidPayload, name)
	}
	ret, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: field %s is %T, expected %T", ErrInvalidPayload, name, v, zero)
	}
	return ret, nil
}
