package indexer

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func benchmarkTree(b *testing.B, e *env, files int) {
	b.Helper()
	for i := 0; i < files; i++ {
		e.write(b, fmt.Sprintf("dir%02d/file%04d.txt", i%20, i), fmt.Sprintf("file number %d", i))
	}
}

// BenchmarkFullScan measures a cold scan with the mock classifier
func BenchmarkFullScan(b *testing.B) {
	for _, workers := range []int{1, 4, 8} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				opts := DefaultOptions()
				opts.Workers = workers
				opts.CheckpointEvery = 100
				e := newEnv(b, withOptions(opts))
				benchmarkTree(b, e, 500)
				b.StartTimer()

				rep := e.scan(b, ScanOptions{})
				require.Equal(b, 500, rep.Counts.Classified)
			}
		})
	}
}

// BenchmarkIncrementalScan measures a rescan where only a few files changed
func BenchmarkIncrementalScan(b *testing.B) {
	opts := DefaultOptions()
	opts.CheckpointEvery = 100
	e := newEnv(b, withOptions(opts))
	benchmarkTree(b, e, 1000)
	e.scan(b, ScanOptions{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		path := e.write(b, fmt.Sprintf("dir00/file%04d.txt", (i*20)%1000), fmt.Sprintf("changed %d", i))
		future := time.Now().Add(time.Duration(i+1) * time.Second)
		require.NoError(b, os.Chtimes(path, future, future))
		b.StartTimer()

		rep := e.scan(b, ScanOptions{})
		require.Equal(b, 1, rep.Counts.Classified)
	}
}
