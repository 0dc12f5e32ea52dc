package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Group is one of the three disjoint property groups of an object.
type Group string

const (
	// GroupTechnical is always synchronized and may be visible to peers.
	GroupTechnical Group = "technical"
	// GroupUserdata is the end-to-end payload.
	GroupUserdata Group = "userdata"
	// GroupMetadata holds local annotations such as wasViewedAt. They reach
	// the owner's other devices but never a peer.
	GroupMetadata Group = "metadata"
)

// Groups maps a group to the JSON properties it holds.
type Groups map[Group]map[string]json.RawMessage

// Keys returns the groups present, in a stable order.
func (g Groups) Keys() []Group {
	keys := make([]Group, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

type groupSpec struct {
	userdata []string
	metadata []string
}

// propertyGroups declares which JSON properties of each collection are
// userdata or metadata. Everything else except id and version is technical.
var propertyGroups = map[Collection]groupSpec{
	CollectionAttributes:                {userdata: []string{"value"}, metadata: []string{"wasViewedAt"}},
	CollectionRelationships:             {userdata: []string{"creationContent"}, metadata: []string{"wasViewedAt"}},
	CollectionRequests:                  {userdata: []string{"content", "response"}, metadata: []string{"wasViewedAt"}},
	CollectionNotifications:             {userdata: []string{"content"}, metadata: []string{"wasViewedAt"}},
	CollectionSettings:                  {userdata: []string{"value"}},
	CollectionMessages:                  {userdata: []string{"content"}, metadata: []string{"wasViewedAt"}},
	CollectionFiles:                     {userdata: []string{"title", "mimetype", "secretKey"}, metadata: []string{"cachedAt"}},
	CollectionDevices:                   {userdata: []string{"name"}},
	CollectionIdentityDeletionProcesses: {},
}

// groupOf classifies a property of collection c. ok is false for id and
// version, which belong to no group.
func groupOf(c Collection, key string) (Group, bool) {
	if key == "id" || key == "version" {
		return "", false
	}
	spec := propertyGroups[c]
	for _, k := range spec.userdata {
		if k == key {
			return GroupUserdata, true
		}
	}
	for _, k := range spec.metadata {
		if k == key {
			return GroupMetadata, true
		}
	}
	return GroupTechnical, true
}

func toMap(obj any) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// SplitProperties returns all property groups of obj.
func SplitProperties(obj Object) (Groups, error) {
	m, err := toMap(obj)
	if err != nil {
		return nil, fmt.Errorf("split %s %s: %w", obj.Collection(), obj.ObjectID(), err)
	}
	return SplitRaw(obj.Collection(), m), nil
}

// SplitRaw splits a decoded object document of collection c.
func SplitRaw(c Collection, m map[string]json.RawMessage) Groups {
	g := Groups{GroupTechnical: {}, GroupUserdata: {}, GroupMetadata: {}}
	for k, v := range m {
		group, ok := groupOf(c, k)
		if !ok {
			continue
		}
		g[group][k] = v
	}
	return g
}

// DiffGroups returns the groups of after whose content differs from before.
// Changed groups are returned whole.
func DiffGroups(before, after Groups) Groups {
	out := Groups{}
	for _, group := range []Group{GroupTechnical, GroupUserdata, GroupMetadata} {
		if !sameProps(before[group], after[group]) {
			props := after[group]
			if props == nil {
				props = map[string]json.RawMessage{}
			}
			out[group] = props
		}
	}
	return out
}

func sameProps(a, b map[string]json.RawMessage) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !bytes.Equal(compact(va), compact(vb)) {
			return false
		}
	}
	return true
}

func compact(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

// MergeGroups replaces, group by group, the properties of doc with those in
// groups. Groups absent from groups are left untouched.
func MergeGroups(c Collection, doc map[string]json.RawMessage, groups Groups) map[string]json.RawMessage {
	if doc == nil {
		doc = map[string]json.RawMessage{}
	}
	for group, props := range groups {
		for k := range doc {
			if g, ok := groupOf(c, k); ok && g == group {
				delete(doc, k)
			}
		}
		for k, v := range props {
			doc[k] = v
		}
	}
	return doc
}

// WithoutGroups returns a copy of groups lacking the listed groups.
func WithoutGroups(groups Groups, drop map[Group]bool) Groups {
	out := Groups{}
	for g, props := range groups {
		if !drop[g] {
			out[g] = props
		}
	}
	return out
}

// PeerView returns obj as a JSON document without its metadata group, the
// shape that may leave the owner's devices.
func PeerView(obj Object) (map[string]json.RawMessage, error) {
	m, err := toMap(obj)
	if err != nil {
		return nil, err
	}
	for k := range m {
		if g, ok := groupOf(obj.Collection(), k); ok && g == GroupMetadata {
			delete(m, k)
		}
	}
	return m, nil
}
