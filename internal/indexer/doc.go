// Package indexer coordinates the scan pipeline: enumerate, classify, persist, index.
//
// # Basic Usage
//
//	ix := indexer.New(store, gateway, emb, idx, scan, indexer.OptionsFromConfig(cfg), logger)
//
//	report, err := ix.Scan(ctx, []string{"/home/me/Documents"}, indexer.ScanOptions{})
//	fmt.Printf("%d classified, %d unchanged in %v\n",
//	    report.Counts.Classified, report.Counts.Unchanged, report.Duration)
//
// StartScan runs the same pipeline in the background; Progress, CancelScan and
// Wait observe and control it. Only one scan runs at a time.
//
// # Pipeline
//
// One scanner goroutine feeds a bounded queue. Workers dequeue candidates and
// decide each outcome:
//
//  1. Too large or excluded: a skipped record, no classifier call
//  2. Unchanged size and mtime with a usable record: nothing to do
//  3. Otherwise: read the head of the file, classify it through the gateway,
//     embed the summary unless the stored one is identical
//
// A single writer applies results to the record store and the embedding index,
// adds each path to the scan checkpoint and saves every CheckpointEvery results
// or CheckpointInterval, whichever comes first. The checkpoint is saved in the
// same operation as the records it covers.
//
// # Lifecycle
//
//	idle -> scanning -> draining -> completed
//	                \-> cancelled
//	                \-> failed
//
// On completion, records under the roots that were not seen are pruned,
// missing embeddings are backfilled, the checkpoint is cleared and a final save
// is forced. Cancelling stops enumeration and new dequeues; the items being
// classified finish and are saved with the checkpoint. A later scan of the
// same roots resumes: completed paths are not enumerated again.
//
// A failing save is systemic: the run stops and ends in the failed state, and
// Wait returns the error.
package indexer
