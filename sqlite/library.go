package sqlite

import "os"

// Library bundles the services of one per-library database behind a
// single open/close lifecycle. The orchestrator opens a Library at
// the start of an ingest and closes it on every exit path.
type Library struct {
	DB        *DB
	Documents *DocumentService
	Chunks    *ChunkService
	Vectors   *VectorService
	Crawl     *CrawlQueue
}

// OpenLibrary opens (creating if needed) the library database at path
// and runs its migrations.
func OpenLibrary(path string) (*Library, error) {
	db := NewLibraryDB(path)
	if err := db.Open(); err != nil {
		return nil, err
	}
	return &Library{
		DB:        db,
		Documents: NewDocumentService(db),
		Chunks:    NewChunkService(db),
		Vectors:   NewVectorService(db),
		Crawl:     NewCrawlQueue(db),
	}, nil
}

// Close closes the underlying database.
func (l *Library) Close() error {
	return l.DB.Close()
}

// Remove deletes the library database file trio. The library must be
// closed first.
func (l *Library) Remove() error {
	var firstErr error
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(l.DB.Path() + suffix); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
