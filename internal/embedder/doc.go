// Package embedder turns file summaries and search queries into vectors.
//
// Three providers implement the Embedder interface:
//
//   - ollama: POST {url}/api/embed with {"model", "input": [...]}
//   - openai: POST {url}/v1/embeddings against OpenAI or any compatible
//     server such as LM Studio; the API key is optional
//   - local: feature-hashed bag of words, 384 dimensions, no network
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:  "ollama",
//	    Model:     "all-minilm",
//	    CacheSize: 10000,
//	})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "Quarterly sales report for the east region",
//	})
//
// # Batch Processing
//
// GenerateBatch embeds many texts in as few requests as possible, serving
// repeated texts from the LRU cache:
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: summaries,
//	})
//
// Remote providers retry 5xx, 429 and transport failures with exponential
// backoff; other 4xx responses fail immediately.
package embedder
