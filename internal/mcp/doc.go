// Package mcp implements the Model Context Protocol (MCP) server for filescope.
//
// The server exposes the scan and search operations to MCP clients:
//   - start_scan: Scan directories in the background (or block with "wait")
//   - cancel_scan: Stop the running scan, keeping its checkpoint for resume
//   - scan_progress: Counts and state of the running or most recent scan
//   - search_files: Semantic, keyword, hybrid, name or extension search
//   - get_record: Stored classification of one file
//   - get_status: Store statistics, classifier and embedder selection
//
// # Basic Usage
//
//	a, err := app.New(ctx, cfg, logger)
//	srv, err := mcp.NewServer(a, logger)
//	err = srv.Serve(ctx)
//
// The server speaks JSON-RPC over stdio; stdout is reserved for the protocol
// and logs go to stderr.
//
// # Tool: start_scan
//
//	Request:
//	{
//	  "name": "start_scan",
//	  "arguments": {"roots": ["/home/me/Documents"], "fresh": false}
//	}
//
//	Response:
//	{
//	  "started": true,
//	  "scan_id": "5f0c...",
//	  "roots": ["/home/me/Documents"],
//	  "resumed": false
//	}
//
// # Tool: search_files
//
//	Request:
//	{
//	  "name": "search_files",
//	  "arguments": {"query": "tax return 2023", "limit": 5, "mode": "hybrid"}
//	}
//
//	Response:
//	{
//	  "query": "tax return 2023",
//	  "mode": "hybrid",
//	  "total": 1,
//	  "results": [
//	    {
//	      "rank": 1,
//	      "score": 0.0327,
//	      "path": "/home/me/Documents/taxes/2023.pdf",
//	      "category": "Tax document",
//	      "summary": "Federal income tax return for 2023",
//	      "keywords": ["tax", "2023", "return"]
//	    }
//	  ]
//	}
//
// # Error Handling
//
// Handlers return *MCPError values; the framework encodes them as JSON-RPC errors.
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (store, embedder)
//   - -32001: No record for the requested path
//   - -32002: A scan is already in progress
//   - -32003: No scan in progress
//   - -32004: Empty query
package mcp
