/*
Copyright 2026 The Replication Checker Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pgoutput

import (
	"fmt"
	"sort"
	"sync"
)

/*
ReplicaIdentity is the setting that decides which old column values the
server sends for updates and deletes.
*/
type ReplicaIdentity byte

// Values of ReplicaIdentity as they appear on the wire.
const (
	ReplicaIdentityDefault ReplicaIdentity = 'd'
	ReplicaIdentityNothing ReplicaIdentity = 'n'
	ReplicaIdentityFull    ReplicaIdentity = 'f'
	ReplicaIdentityIndex   ReplicaIdentity = 'i'
)

func (r ReplicaIdentity) valid() bool {
	switch r {
	case ReplicaIdentityDefault, ReplicaIdentityNothing, ReplicaIdentityFull, ReplicaIdentityIndex:
		return true
	default:
		return false
	}
}

func (r ReplicaIdentity) String() string {
	switch r {
	case ReplicaIdentityDefault:
		return "default"
	case ReplicaIdentityNothing:
		return "nothing"
	case ReplicaIdentityFull:
		return "full"
	case ReplicaIdentityIndex:
		return "index"
	default:
		return fmt.Sprintf("ReplicaIdentity(%d)", byte(r))
	}
}

/*
ColumnInfo describes one column of a published table.
*/
type ColumnInfo struct {
	Flags        uint8  `json:"flags"`
	Name         string `json:"name"`
	TypeID       uint32 `json:"typeId"`
	TypeModifier int32  `json:"typeModifier"`
}

// IsKey is true when the column is part of the replica identity key.
func (c ColumnInfo) IsKey() bool {
	return c.Flags&1 != 0
}

/*
RelationInfo is the description of a table as last announced by a Relation
message.
*/
type RelationInfo struct {
	ID              uint32          `json:"id"`
	Namespace       string          `json:"namespace"`
	Name            string          `json:"name"`
	ReplicaIdentity ReplicaIdentity `json:"replicaIdentity"`
	Columns         []ColumnInfo    `json:"columns"`
}

func (r *RelationInfo) ColumnCount() int {
	return len(r.Columns)
}

// QualifiedName is "namespace.name".
func (r *RelationInfo) QualifiedName() string {
	return r.Namespace + "." + r.Name
}

// KeyColumns returns the names of the key columns in wire order.
func (r *RelationInfo) KeyColumns() []string {
	var keys []string
	for _, c := range r.Columns {
		if c.IsKey() {
			keys = append(keys, c.Name)
		}
	}
	return keys
}

/*
A Catalog maps relation IDs to the most recent RelationInfo seen for them.
It is written by the decoder and may be read from other goroutines.
*/
type Catalog struct {
	latch     sync.RWMutex
	relations map[uint32]*RelationInfo
}

func NewCatalog() *Catalog {
	return &Catalog{
		relations: make(map[uint32]*RelationInfo),
	}
}

/*
Upsert stores "r", replacing whatever was there for the same ID.
*/
func (c *Catalog) Upsert(r *RelationInfo) {
	c.latch.Lock()
	c.relations[r.ID] = r
	c.latch.Unlock()
}

/*
Lookup returns the relation for "id", or a RelationNotFound error.
*/
func (c *Catalog) Lookup(id uint32) (*RelationInfo, error) {
	c.latch.RLock()
	r := c.relations[id]
	c.latch.RUnlock()
	if r == nil {
		return nil, newError(RelationNotFound, -1, "relation %d", id)
	}
	return r, nil
}

func (c *Catalog) Len() int {
	c.latch.RLock()
	defer c.latch.RUnlock()
	return len(c.relations)
}

/*
Relations returns every known relation, sorted by ID.
*/
func (c *Catalog) Relations() []*RelationInfo {
	c.latch.RLock()
	ret := make([]*RelationInfo, 0, len(c.relations))
	for _, r := range c.relations {
		ret = append(ret, r)
	}
	c.latch.RUnlock()

	sort.Slice(ret, func(i, j int) bool {
		return ret[i].ID < ret[j].ID
	})
	return ret
}
