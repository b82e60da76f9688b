package embedder

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestComputeHash(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "empty string",
			text: "",
			want: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name: "simple text",
			text: "hello world",
			want: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeHash(tt.text); got != tt.want {
				t.Errorf("ComputeHash() = %v, want %v", got, tt.want)
			}
		})
	}

	if cacheKey("m1", "text") == cacheKey("m2", "text") {
		t.Error("cacheKey() should differ across models")
	}
}

func TestValidateBatchRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     BatchEmbeddingRequest
		wantErr error
	}{
		{"valid", BatchEmbeddingRequest{Texts: []string{"a", "b"}}, nil},
		{"empty batch", BatchEmbeddingRequest{}, ErrInvalidInput},
		{"empty text", BatchEmbeddingRequest{Texts: []string{"a", ""}}, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatchRequest(tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateBatchRequest() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := ValidateRequest(EmbeddingRequest{}); !errors.Is(err, ErrEmptyText) {
		t.Errorf("ValidateRequest() error = %v, want %v", err, ErrEmptyText)
	}
}

func TestCache(t *testing.T) {
	cache := NewCache(2)
	emb := &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3, Provider: ProviderLocal}

	cache.Set("a", emb)
	emb.Vector[0] = 99 // mutation after Set must not leak in

	got, ok := cache.Get("a")
	if !ok {
		t.Fatal("Get() miss, want hit")
	}
	if got.Vector[0] != 1 {
		t.Errorf("cached vector mutated: %v", got.Vector)
	}
	got.Vector[1] = 99
	again, _ := cache.Get("a")
	if again.Vector[1] != 2 {
		t.Errorf("Get() returned shared vector: %v", again.Vector)
	}

	cache.Set("b", emb)
	cache.Set("c", emb)
	if cache.Size() != 2 {
		t.Errorf("Size() = %d, want 2", cache.Size())
	}
	if _, ok := cache.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}

	hits, misses := cache.Stats()
	if hits != 2 || misses != 1 {
		t.Errorf("Stats() = %d hits, %d misses; want 2, 1", hits, misses)
	}

	cache.Clear()
	if cache.Size() != 0 {
		t.Errorf("Size() after Clear = %d", cache.Size())
	}
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	provider, err := NewLocalProvider(NewCache(100))
	if err != nil {
		t.Fatalf("NewLocalProvider() error = %v", err)
	}

	a, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "Invoice for office chairs"})
	if err != nil {
		t.Fatalf("GenerateEmbedding() error = %v", err)
	}
	if a.Dimension != LocalDimension || len(a.Vector) != LocalDimension {
		t.Errorf("dimension = %d/%d, want %d", a.Dimension, len(a.Vector), LocalDimension)
	}
	if a.Model != LocalModel || a.Provider != ProviderLocal {
		t.Errorf("got provider %s model %s", a.Provider, a.Model)
	}

	var norm float64
	for _, v := range a.Vector {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("vector norm^2 = %f, want 1", norm)
	}

	// Deterministic
	b, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "Invoice for office chairs"})
	for i := range a.Vector {
		if a.Vector[i] != b.Vector[i] {
			t.Fatalf("vectors differ at %d", i)
		}
	}

	// Shared vocabulary scores higher than unrelated text
	related, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "invoice: office supplies"})
	unrelated, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "holiday photos from Lisbon"})
	if dot(a.Vector, related.Vector) <= dot(a.Vector, unrelated.Vector) {
		t.Error("related text should be closer than unrelated text")
	}

	resp, err := provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"one", "two"}})
	if err != nil {
		t.Fatalf("GenerateBatch() error = %v", err)
	}
	if len(resp.Embeddings) != 2 {
		t.Errorf("GenerateBatch() returned %d embeddings", len(resp.Embeddings))
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("Hello, World! foo_bar 42x")
	want := []string{"hello", "world", "foo", "bar", "42x"}
	if len(got) != len(want) {
		t.Fatalf("tokenize() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tokenize()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNormalizeVector(t *testing.T) {
	got := NormalizeVector([]float32{3, 4})
	if math.Abs(float64(got[0])-0.6) > 1e-6 || math.Abs(float64(got[1])-0.8) > 1e-6 {
		t.Errorf("NormalizeVector() = %v", got)
	}

	zero := NormalizeVector([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
