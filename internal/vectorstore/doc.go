// Package vectorstore stores embedded chunks and answers similarity queries.
//
// Two backends implement Store:
//   - ChromemStore: embedded chromem-go database persisted to a directory (default)
//   - QdrantStore: external Qdrant server over gRPC
//
// Documents are embedded in one batch by the configured Embedder and written
// in a single insert. Metadata filters are exact matches on every key given.
//
// # Usage
//
//	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
//	    Path:       "/data/vectorstore",
//	    Collection: "papers",
//	}, embedder, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	results, err := store.SearchWithFilters(ctx, "what does Cas9 cut?", 25,
//	    map[string]interface{}{"section": "Introduction"})
package vectorstore
