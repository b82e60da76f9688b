package mcp

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/filescope-mcp/internal/searcher"
)

// startScanTool returns the tool definition for start_scan
func startScanTool() mcp.Tool {
	return mcp.Tool{
		Name:        "start_scan",
		Description: "Scan directories in the background, classifying every eligible file and indexing its summary",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"roots": map[string]interface{}{
					"type":        "array",
					"description": "Absolute paths of the directories to scan",
					"items": map[string]interface{}{
						"type": "string",
					},
					"minItems": 1,
				},
				"fresh": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, ignore an interrupted scan of the same roots instead of resuming it",
					"default":     false,
				},
				"wait": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, block until the scan ends and return its report",
					"default":     false,
				},
			},
			Required: []string{"roots"},
		},
	}
}

// cancelScanTool returns the tool definition for cancel_scan
func cancelScanTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cancel_scan",
		Description: "Stop the running scan. Files being classified finish and the scan can be resumed later",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// scanProgressTool returns the tool definition for scan_progress
func scanProgressTool() mcp.Tool {
	return mcp.Tool{
		Name:        "scan_progress",
		Description: "Report progress of the running or most recent scan",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// searchFilesTool returns the tool definition for search_files
func searchFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_files",
		Description: "Search classified files by meaning, keywords, file name or extension",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query: natural language, keywords, part of a file name, or an extension such as .pdf",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": fmt.Sprintf("Maximum number of results to return (1-%d); fewer are returned when the index holds fewer files", searcher.MaxLimit),
					"default":     searcher.DefaultLimit,
					"minimum":     1,
					"maximum":     searcher.MaxLimit,
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: semantic (embedding similarity), keyword, hybrid (semantic + keyword), name or extension",
					"enum": []string{
						string(searcher.SearchModeSemantic),
						string(searcher.SearchModeKeyword),
						string(searcher.SearchModeHybrid),
						string(searcher.SearchModeName),
						string(searcher.SearchModeExtension),
					},
					"default": string(searcher.SearchModeSemantic),
				},
				"min_score": map[string]interface{}{
					"type":        "number",
					"description": "Drop results scoring below this threshold",
					"minimum":     0.0,
					"maximum":     1.0,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getRecordTool returns the tool definition for get_record
func getRecordTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_record",
		Description: "Return the stored classification of one file",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path of the file",
				},
			},
			Required: []string{"path"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report record store statistics, classifier and embedder selection, and scan state",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
