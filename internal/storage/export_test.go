package storage

// RoomUpsert exposes the audit upsert clause to tests.
var RoomUpsert = roomUpsert
