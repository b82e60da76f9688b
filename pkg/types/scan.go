package types

// ScanState is the lifecycle state of a scan run
type ScanState string

const (
	ScanIdle      ScanState = "idle"
	ScanScanning  ScanState = "scanning"
	ScanDraining  ScanState = "draining" // Enumeration finished, workers finishing the queue
	ScanCompleted ScanState = "completed"
	ScanCancelled ScanState = "cancelled"
	ScanFailed    ScanState = "failed"
)

// Active reports whether a run in this state is still doing work
func (s ScanState) Active() bool {
	return s == ScanScanning || s == ScanDraining
}

// Terminal reports whether the run has ended
func (s ScanState) Terminal() bool {
	return s == ScanCompleted || s == ScanCancelled || s == ScanFailed
}

// ScanCounts tallies per-file outcomes of one scan run
type ScanCounts struct {
	Classified int `json:"classified"`
	Fallback   int `json:"fallback"`
	Skipped    int `json:"skipped"`
	Unchanged  int `json:"unchanged"`
	Failed     int `json:"failed"`
	Pruned     int `json:"pruned"`
}

// Processed is the number of files whose outcome was applied. Pruned records are not files seen by the scan.
func (c ScanCounts) Processed() int {
	return c.Classified + c.Fallback + c.Skipped + c.Unchanged + c.Failed
}
