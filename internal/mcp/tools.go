package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/filescope-mcp/internal/indexer"
	"github.com/dshills/filescope-mcp/internal/searcher"
	"github.com/dshills/filescope-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams  = -32602 // Invalid method parameters
	ErrorCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrorCodeRecordNotFound = -32001 // No record stored for the path
	ErrorCodeScanInProgress = -32002 // Another scan is already running
	ErrorCodeNoScan         = -32003 // No scan is running
	ErrorCodeEmptyQuery     = -32004 // Query parameter is empty
)

// handleStartScan handles the start_scan tool invocation
func (s *Server) handleStartScan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	roots, err := getStringSlice(args, "roots")
	if err != nil || len(roots) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "roots parameter is required", map[string]interface{}{
			"param":  "roots",
			"reason": "missing or empty",
		})
	}
	for _, root := range roots {
		if err := validateDir(root); err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid root", map[string]interface{}{
				"param":  "roots",
				"value":  root,
				"reason": err.Error(),
			})
		}
	}

	opts := indexer.ScanOptions{Fresh: getBoolDefault(args, "fresh", false)}
	scanID, err := s.app.Indexer.StartScan(ctx, roots, opts)
	if errors.Is(err, indexer.ErrScanInProgress) {
		return nil, newMCPError(ErrorCodeScanInProgress, "a scan is already in progress", map[string]interface{}{
			"scan_id": s.app.Indexer.Progress().ScanID,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to start scan", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if !getBoolDefault(args, "wait", false) {
		progress := s.app.Indexer.Progress()
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"started": true,
			"scan_id": scanID,
			"roots":   progress.Roots,
			"resumed": progress.Resumed,
		})), nil
	}

	report, err := s.app.Indexer.Wait(ctx)
	if report == nil {
		// ctx ended before the scan; it keeps running in the background
		if err == nil {
			err = errors.New("scan ended without a report")
		}
		return nil, newMCPError(ErrorCodeInternalError, "scan did not finish", map[string]interface{}{
			"scan_id": scanID,
			"error":   err.Error(),
		})
	}
	response := reportResponse(report)
	if err != nil {
		response["error"] = err.Error()
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCancelScan handles the cancel_scan tool invocation
func (s *Server) handleCancelScan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.app.Indexer.CancelScan(); err != nil {
		if errors.Is(err, indexer.ErrNotRunning) {
			return nil, newMCPError(ErrorCodeNoScan, "no scan in progress", nil)
		}
		return nil, newMCPError(ErrorCodeInternalError, "failed to cancel scan", map[string]interface{}{
			"error": err.Error(),
		})
	}

	progress := s.app.Indexer.Progress()
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"cancelled": progress.State == types.ScanCancelled,
		"scan_id":   progress.ScanID,
		"state":     progress.State,
		"completed": progress.Completed,
	})), nil
}

// handleScanProgress handles the scan_progress tool invocation
func (s *Server) handleScanProgress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p := s.app.Indexer.Progress()

	response := map[string]interface{}{
		"state":         p.State,
		"scanned_count": p.Scanned,
		"queued_count":  p.Queued,
		"completed":     p.Completed,
		"elapsed":       p.Elapsed.Round(time.Millisecond).String(),
		"elapsed_ms":    p.Elapsed.Milliseconds(),
	}
	if p.ScanID != "" {
		response["scan_id"] = p.ScanID
		response["roots"] = p.Roots
		response["resumed"] = p.Resumed
		response["cursor"] = p.Cursor
		response["counts"] = p.Counts
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchFiles handles the search_files tool invocation
func (s *Server) handleSearchFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", searcher.MaxLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	mode, err := searcher.ParseMode(getStringDefault(args, "mode", ""))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"value":   args["mode"],
			"allowed": []string{"semantic", "keyword", "hybrid", "name", "extension"},
		})
	}

	resp, err := s.app.Searcher.Search(ctx, searcher.Request{
		Query:    query,
		Limit:    limit,
		Mode:     mode,
		MinScore: getFloatDefault(args, "min_score", 0),
		UseCache: true,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		entry := recordResponse(r.Record)
		entry["rank"] = r.Rank
		entry["score"] = r.Score
		results = append(results, entry)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":       query,
		"mode":        resp.Mode,
		"total":       resp.Total,
		"results":     results,
		"duration_ms": resp.Duration.Milliseconds(),
		"cache_hit":   resp.CacheHit,
	})), nil
}

// handleGetRecord handles the get_record tool invocation
func (s *Server) handleGetRecord(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if !filepath.IsAbs(path) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": ErrPathNotAbsolute.Error(),
		})
	}

	rec, ok := s.app.Searcher.GetRecord(filepath.Clean(path))
	if !ok {
		return nil, newMCPError(ErrorCodeRecordNotFound, "no record for path", map[string]interface{}{
			"path": path,
		})
	}
	return mcp.NewToolResultText(formatJSON(recordResponse(rec))), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := s.app.Status()

	response := map[string]interface{}{
		"store":      st.Store,
		"records":    st.Records,
		"indexed":    st.Indexed,
		"classifier": st.Classifier,
		"embedder":   st.Embedder,
		"scan": map[string]interface{}{
			"state":     st.Scan.State,
			"scan_id":   st.Scan.ScanID,
			"completed": st.Scan.Completed,
		},
		"resumable": st.Resumable,
	}
	if st.LoadWarning != "" {
		response["load_warning"] = st.LoadWarning
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// recordResponse flattens a record for tool output. Embeddings are omitted.
func recordResponse(rec *types.FileRecord) map[string]interface{} {
	out := map[string]interface{}{
		"path":     rec.Path,
		"name":     rec.Name,
		"size":     rec.Size,
		"size_h":   humanize.Bytes(uint64(max(rec.Size, 0))),
		"mod_time": rec.ModTime.Format(time.RFC3339),
		"category": rec.Category,
		"summary":  rec.Summary,
		"keywords": rec.Keywords,
		"state":    rec.State,
		"provider": rec.Provider,
	}
	if rec.Keywords == nil {
		out["keywords"] = []string{}
	}
	if rec.Error != "" {
		out["error"] = rec.Error
	}
	if !rec.ClassifiedAt.IsZero() {
		out["classified_at"] = rec.ClassifiedAt.Format(time.RFC3339)
	}
	return out
}

// reportResponse formats a finished scan
func reportResponse(r *indexer.Report) map[string]interface{} {
	out := map[string]interface{}{
		"scan_id":     r.ScanID,
		"state":       r.State,
		"roots":       r.Roots,
		"resumed":     r.Resumed,
		"counts":      r.Counts,
		"duration_ms": r.Duration.Milliseconds(),
	}
	if n := len(r.Errors); n > 0 {
		if n > 5 {
			out["errors"] = r.Errors[:5]
			out["error_count"] = n
		} else {
			out["errors"] = r.Errors
		}
	}
	return out
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validateDir checks that a scan root is an absolute, readable directory
func validateDir(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := args[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a list of strings; JSON arrays arrive as []interface{}
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	switch val := args[key].(type) {
	case []string:
		return val, nil
	case []interface{}:
		out := make([]string, 0, len(val))
		for i, v := range val {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] is not a string", key, i)
			}
			out = append(out, s)
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
