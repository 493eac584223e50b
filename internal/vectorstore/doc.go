// Package vectorstore holds the derived search index of captured memories.
//
// An Index stores each memory record next to its embedding vector and answers
// nearest-neighbour queries restricted to one namespace. The index is a cache:
// it can always be rebuilt from the ledger, so no backend offers update or
// delete.
//
// # Backends
//
// The sqlite backend keeps records in a SQLite file and vectors in a
// persistent chromem-go collection beside it. It needs no external service.
//
// The qdrant backend keeps both in an external Qdrant collection reached over
// gRPC.
//
// # Degraded mode
//
// When the sqlite backend cannot open its vector collection, or vector search
// is turned off, it keeps accepting inserts and serving Get while Search
// returns no hits and logs ErrIndexUnavailable.
package vectorstore
