// Package server room table: the mapping from room id to member set. Rooms
// are created lazily on first join and removed eagerly when the last member
// leaves, so an empty room never persists.
package server

import (
	"sort"

	"github.com/samber/lo"
)

// roomTable is not safe for concurrent use; the hub serializes all access
// under its own lock.
type roomTable struct {
	rooms map[string]map[string]struct{}
}

func newRoomTable() *roomTable {
	return &roomTable{rooms: make(map[string]map[string]struct{})}
}

func (t *roomTable) addMember(roomID, connectionID string) {
	members, ok := t.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		t.rooms[roomID] = members
	}
	members[connectionID] = struct{}{}
}

func (t *roomTable) removeMember(roomID, connectionID string) {
	members, ok := t.rooms[roomID]
	if !ok {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(t.rooms, roomID)
	}
}

// membersOf returns the member ids of a room in a stable order. The order is
// only there to make broadcast rosters deterministic; membership itself is a
// set.
func (t *roomTable) membersOf(roomID string) []string {
	members, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	ids := lo.Keys(members)
	sort.Strings(ids)
	return ids
}

func (t *roomTable) memberCount(roomID string) int {
	return len(t.rooms[roomID])
}

func (t *roomTable) roomCount() int {
	return len(t.rooms)
}
