// Package memory captures, searches and reconciles semantic memories.
//
// A Service sits in front of three collaborators: a secrets redactor, an
// embedding provider and a search index, plus a git notes ledger that is
// written on a best-effort basis. Capture writes the index first and the
// ledger second; Reconcile replays the ledger into the index and is safe to
// run any number of times.
//
//	svc, err := memory.NewService(memory.Config{Namespaces: []string{"decisions"}},
//	    memory.Deps{Redactor: r, Provider: p, Index: idx, Ledger: l}, logger)
//	id, err := svc.Capture(ctx, memory.CaptureRequest{Namespace: "decisions", Summary: "Use PostgreSQL"})
//	results, err := svc.Search(ctx, memory.SearchRequest{Query: "which database"})
package memory
