// Package simplemedia provides a content-addressed media store with lazily
// computed, cached derivatives.
//
// Every ingested file (direct upload or remote fetch) is stored exactly once
// under its sha256 hash and extension. Short opaque ids are handed out by a
// registry so user-facing URLs never expose raw hashes. Thumbnails, resized
// images and transcoded videos are produced on demand by external tools,
// gated by two bounded worker pools, and cached under deterministic names so
// that an existence check is a correct cache lookup.
//
// Storage Strategy
//
// Blobs live in a ContentStore (filesystem, or S3 with a local read-through
// cache). Records live in a Repository (memory, SQLite, Postgres) holding
// three collections: files, the id registry, and the derived-artifact index
// used to clean derivatives up when their source is removed.
//
// Concurrency
//
// Two writers racing on the same content both succeed; the loser's staged
// copy is discarded. Two requests for the same uncached derivative may both
// compute it; both land on the same path with identical bytes. No
// single-flight suppression is attempted.
package simplemedia
