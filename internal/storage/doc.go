// Package storage is the filesystem-facing half of timeless. It persists one
// JSON document per key inside a data directory, wraps entity maps in a
// Collection envelope, and snapshots the whole data directory into
// timestamped backups.
//
// Nothing here is transactional. A Save that is interrupted mid-write can leave
// a truncated document, and a Create or Restore that is interrupted mid-copy can
// leave a partial snapshot or a partially restored data directory. Such states
// surface later as read or decode failures.
package storage
