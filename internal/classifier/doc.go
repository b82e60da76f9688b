// Package classifier turns file content into a category, summary and keywords.
//
// Two classifiers implement the Classifier interface:
//
//   - Remote prompts a local LLM service (Ollama's /api/generate or LM Studio's
//     /v1/completions) and extracts the first JSON object from its answer.
//   - Offline derives a category from the file extension and never fails.
//
// The Gateway combines them. Unreachable and timeout failures are retried with
// exponential backoff; when retries run out, or the answer is malformed, the
// file is classified offline and the outcome is marked as a fallback:
//
//	gw := classifier.NewGateway(remote, classifier.NewOffline(), classifier.Policy{
//	    MaxRetries: 2,
//	    BaseDelay:  2 * time.Second,
//	    MaxDelay:   30 * time.Second,
//	    Multiplier: 2,
//	    Timeout:    60 * time.Second,
//	}, logger)
//
//	out := gw.Classify(ctx, classifier.Request{Path: path, Ext: ".go", Content: head})
//	if out.Fallback {
//	    log.Printf("classified offline after %d attempts: %v", out.Attempts, out.Err)
//	}
package classifier
