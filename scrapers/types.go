package scrapers

// FileRecord is one downloaded and renamed artifact.
type FileRecord struct {
	Name string `json:"name"`
	// URL is the artifact's data-tooltip identifier, not a network URL.
	URL  string `json:"url"`
	Path string `json:"path"`
}

// DataItem is the outcome of one top-level table row.
type DataItem struct {
	Row     int          `json:"row"`
	RowData []string     `json:"rowData"`
	Files   []FileRecord `json:"files"`
}

// Empty reports whether the row produced neither cell text nor files.
func (d DataItem) Empty() bool {
	return len(d.RowData) == 0 && len(d.Files) == 0
}

// PageInfo is the car/track context of the open detail view.
type PageInfo struct {
	CarName   string
	TrackName string
}

// Summary is the result of a table walk.
type Summary struct {
	Completed int        `json:"completed"`
	Items     []DataItem `json:"items"`
	Message   string     `json:"message"`
}

// Files flattens every file record of the walk.
func (s *Summary) Files() []FileRecord {
	if s == nil {
		return nil
	}
	var files []FileRecord
	for _, item := range s.Items {
		files = append(files, item.Files...)
	}
	return files
}

// ProcessedFiles is the run-scoped set of artifacts already handled.
type ProcessedFiles struct {
	keys map[string]struct{}
}

func NewProcessedFiles() *ProcessedFiles {
	return &ProcessedFiles{keys: make(map[string]struct{})}
}

// Key builds the composite identity of an artifact.
func Key(tooltip, name string) string {
	return tooltip + "-" + name
}

func (p *ProcessedFiles) Has(key string) bool {
	_, ok := p.keys[key]
	return ok
}

func (p *ProcessedFiles) Add(key string) {
	p.keys[key] = struct{}{}
}

func (p *ProcessedFiles) Len() int {
	return len(p.keys)
}
