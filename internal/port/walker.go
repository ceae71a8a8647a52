package port

// FileWalker lists the workspace files that qualify as documents.
type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

// FileInfo describes one candidate document on disk. RelPath is
// slash-separated; document ids are derived from it.
type FileInfo struct {
	Path    string
	RelPath string
	ModTime int64
	Size    int64
}

// FileReader returns a file's text. Files that are not valid UTF-8 are rejected.
type FileReader interface {
	ReadFile(path string) (string, error)
}
