package store

// Prune drops history versions and tombstones that no live snapshot can
// still observe. minSnapshotVersion is the lowest version any active
// transaction's snapshot might still read (the caller — typically the
// transaction coordinator, which tracks active snapshots — computes it);
// any version strictly older than it, other than the live version, is
// safe to discard.
//
// Prune never removes the live (current) version of a key, even if it is
// a tombstone: a tombstone must remain visible to VersionAt/CAS validation
// until a future write supersedes it. It also never rewrites the live
// slot, so callers never observe a key transiently disappear.
func (s *Store) Prune(minSnapshotVersion uint64) (scanned, dropped int) {
	for _, sh := range s.shards {
		sh.mu.RLock()
		entries := make([]*entry, 0, len(sh.entries))
		for _, e := range sh.entries {
			entries = append(entries, e)
		}
		sh.mu.RUnlock()

		for _, e := range entries {
			e.mu.Lock()
			scanned++
			kept := e.history[:0]
			// A snapshot at minSnapshotVersion reads the newest version at
			// or below it; when live is newer, that version is in history.
			needFloor := e.live.Version > minSnapshotVersion
			for _, vv := range e.history {
				switch {
				case vv.Version >= minSnapshotVersion:
					kept = append(kept, vv)
					if vv.Version == minSnapshotVersion {
						needFloor = false
					}
				case needFloor:
					kept = append(kept, vv)
					needFloor = false
				default:
					dropped++
				}
			}
			e.history = kept
			e.mu.Unlock()
		}
	}
	return scanned, dropped
}
