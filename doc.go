// Package melodex provides an embedded music-similarity engine for Go.
//
// Melodex extracts fixed-length feature embeddings from audio files and
// serves similarity queries over them:
//
//   - Feature extraction in three modes: minimal (15), balanced (33),
//     full (72 dimensions), plus externally produced embeddings
//   - Exact nearest-neighbor search with cosine, squared L2 and
//     inner-product metrics
//   - Segment-level scoring that rewards broad coverage of the query
//     song over raw match volume
//   - Greedy chain walks producing non-repeating listening paths
//   - Batch registration on a bounded worker pool
//   - Snapshots to local disk, S3 or MinIO with LZ4/ZSTD compression
//
// # Quick Start
//
// Create an engine, register a directory of audio files and query:
//
//	ctx := context.Background()
//	eng, err := melodex.New(
//	    melodex.WithLogLevel(slog.LevelInfo),
//	)
//	if err != nil {
//	    panic(err)
//	}
//
//	summary, err := eng.RegisterBatch(ctx, paths)
//	if err != nil {
//	    panic(err)
//	}
//	fmt.Printf("registered %d, failed %d\n", summary.Succeeded, summary.Failed)
//
//	matches, err := eng.Similar(ctx, "some-song", 10, model.ModeFull)
//
// Build a listening chain from a seed song:
//
//	result, err := eng.Chain(ctx, "seed-song", 20)
//	for _, step := range result {
//	    fmt.Println(step.Seq, step.SongID, step.Distance)
//	}
//
// Persist and restore the indexes through any blob store:
//
//	store := blobstore.NewLocalStore("./snapshots")
//	if err := eng.SaveSnapshot(ctx, store, "corpus-v1"); err != nil {
//	    panic(err)
//	}
package melodex
