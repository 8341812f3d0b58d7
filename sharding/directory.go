// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package sharding

import (
	"fmt"
	"sync"
)

// Directory maps (entity type, member address) to the coordinator hosted
// there. Engines publish the coordinators they run and regions resolve the
// coordinator through the directory once membership names the oldest
// member. Engines of one logical cluster must share a directory.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]Ref
}

// NewDirectory creates an empty coordinator directory.
func NewDirectory() *Directory {
	return &Directory{entries: map[string]Ref{}}
}

func directoryKey(typeName, address string) string {
	return fmt.Sprintf("%s@%s", typeName, address)
}

func (x *Directory) publish(typeName, address string, coordinator Ref) {
	x.mu.Lock()
	x.entries[directoryKey(typeName, address)] = coordinator
	x.mu.Unlock()
}

// unpublish removes the entry only when it still points at the given
// coordinator, so a crashed predecessor cannot erase its successor.
func (x *Directory) unpublish(typeName, address string, coordinator Ref) {
	key := directoryKey(typeName, address)
	x.mu.Lock()
	if current, ok := x.entries[key]; ok && current.ID() == coordinator.ID() {
		delete(x.entries, key)
	}
	x.mu.Unlock()
}

func (x *Directory) resolve(typeName, address string) Ref {
	x.mu.RLock()
	coordinator := x.entries[directoryKey(typeName, address)]
	x.mu.RUnlock()
	return coordinator
}
