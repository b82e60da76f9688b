package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// offlineCategories maps extensions to the category the offline classifier reports
var offlineCategories = map[string]string{
	".go":    "Go source code",
	".py":    "Python source code",
	".js":    "JavaScript source code",
	".ts":    "TypeScript source code",
	".java":  "Java source code",
	".c":     "C source code",
	".h":     "C header",
	".cpp":   "C++ source code",
	".hpp":   "C++ header",
	".cs":    "C# source code",
	".rs":    "Rust source code",
	".rb":    "Ruby source code",
	".php":   "PHP source code",
	".swift": "Swift source code",
	".kt":    "Kotlin source code",
	".sh":    "Shell script",
	".ps1":   "PowerShell script",
	".bat":   "Batch script",
	".sql":   "SQL script",
	".html":  "HTML document",
	".css":   "CSS stylesheet",
	".md":    "Markdown document",
	".txt":   "Text document",
	".rtf":   "Rich text document",
	".pdf":   "PDF document",
	".doc":   "Word document",
	".docx":  "Word document",
	".xls":   "Excel spreadsheet",
	".xlsx":  "Excel spreadsheet",
	".ppt":   "PowerPoint presentation",
	".pptx":  "PowerPoint presentation",
	".csv":   "CSV data",
	".json":  "JSON data",
	".xml":   "XML data",
	".yaml":  "YAML configuration",
	".yml":   "YAML configuration",
	".toml":  "TOML configuration",
	".ini":   "INI configuration",
	".log":   "Log file",
	".jpg":   "JPEG image",
	".jpeg":  "JPEG image",
	".png":   "PNG image",
	".gif":   "GIF image",
	".svg":   "SVG image",
	".mp3":   "MP3 audio",
	".wav":   "WAV audio",
	".mp4":   "MP4 video",
	".mov":   "QuickTime video",
	".zip":   "ZIP archive",
	".tar":   "TAR archive",
	".gz":    "Gzip archive",
	".7z":    "7-Zip archive",
}

// Offline classifies files from their extension and size alone. It never fails.
type Offline struct{}

// NewOffline creates the offline classifier
func NewOffline() *Offline {
	return &Offline{}
}

// Name returns the provider name
func (o *Offline) Name() string {
	return ProviderOffline
}

// Classify implements Classifier
func (o *Offline) Classify(_ context.Context, req Request) (*Result, error) {
	return o.classify(req), nil
}

func (o *Offline) classify(req Request) *Result {
	ext := strings.ToLower(req.Ext)
	keyword := strings.TrimPrefix(ext, ".")

	category, ok := offlineCategories[ext]
	switch {
	case ok:
	case ext == "" || keyword == "":
		category = "Unknown file type"
		keyword = "unknown"
	default:
		category = strings.ToUpper(keyword) + " file"
	}

	return &Result{
		Category: category,
		Summary:  fmt.Sprintf("File indexed in offline mode (%s)", humanize.Bytes(uint64(max(req.Size, 0)))),
		Keywords: []string{keyword},
	}
}
