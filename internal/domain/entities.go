package domain

import "time"

type SourceType string

const (
	SourceUpload   SourceType = "upload"
	SourceHedgeDoc SourceType = "hedgedoc"
	// SourceLocal documents come from a workspace walk and are pruned when
	// their file disappears.
	SourceLocal SourceType = "local"
)

// IngestionStatus is the per-document ingestion state.
// NotIngested -> Ingesting -> Ingested | Failed, and Failed -> Ingesting on retry.
type IngestionStatus string

const (
	StatusNotIngested IngestionStatus = "not_ingested"
	StatusIngesting   IngestionStatus = "ingesting"
	StatusIngested    IngestionStatus = "ingested"
	StatusFailed      IngestionStatus = "failed"
)

// Document is the ingestion pipeline's view of a source document.
// Text is kept out of JSON so listings stay small; stores persist it separately.
type Document struct {
	ID          string          `json:"id"`
	Source      SourceType      `json:"source"`
	Title       string          `json:"title,omitempty"`
	Path        string          `json:"path,omitempty"`
	Text        string          `json:"-"`
	ContentHash string          `json:"content_hash"`
	Status      IngestionStatus `json:"status"`
	ChunkIDs    []string        `json:"chunk_ids,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// DisplayName is what citations show for the document.
func (d Document) DisplayName() string {
	if d.Title != "" {
		return d.Title
	}
	if d.Path != "" {
		return d.Path
	}
	return d.ID
}

// SourceDocument is what a document source hands to the pipeline.
// ContentHash may be empty, in which case the pipeline computes it.
type SourceDocument struct {
	ID          string     `json:"id"`
	Source      SourceType `json:"source"`
	Title       string     `json:"title,omitempty"`
	Path        string     `json:"path,omitempty"`
	Text        string     `json:"text"`
	ContentHash string     `json:"content_hash,omitempty"`
}

// Chunk is a bounded span of one document. Start and End are byte offsets
// into the document text, already adjusted for overlap.
type Chunk struct {
	ID         string `json:"id"`
	DocID      string `json:"doc_id"`
	Index      int    `json:"index"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	TokenCount int    `json:"token_count"`
	Text       string `json:"text"`
}

type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Passage is one element of a retrieval result: a chunk, or a run of
// sequence-adjacent chunks of the same document merged into one span.
type Passage struct {
	DocID      string   `json:"doc_id"`
	Title      string   `json:"title,omitempty"`
	FirstIndex int      `json:"first_index"`
	LastIndex  int      `json:"last_index"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Text       string   `json:"text"`
	Score      float64  `json:"score"`
	ChunkIDs   []string `json:"chunk_ids"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role      `json:"role"`
	Text    string    `json:"text"`
	Context []Passage `json:"context,omitempty"`
	At      time.Time `json:"at"`
}

type SessionMode string

const (
	// ModeDatabase retrieves from the shared index restricted to Scope.
	ModeDatabase SessionMode = "database"
	// ModeFile retrieves from a private in-memory chunk set built at session start.
	ModeFile SessionMode = "file"
)

type Session struct {
	ID        string      `json:"id"`
	Mode      SessionMode `json:"mode"`
	Scope     []string    `json:"scope,omitempty"`
	FileName  string      `json:"file_name,omitempty"`
	Turns     []Turn      `json:"turns"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// LastTurn returns the most recent turn, if any.
func (s *Session) LastTurn() (Turn, bool) {
	if len(s.Turns) == 0 {
		return Turn{}, false
	}
	return s.Turns[len(s.Turns)-1], true
}

type Summary struct {
	DocID       string    `json:"doc_id"`
	Text        string    `json:"text"`
	Model       string    `json:"model"`
	ContentHash string    `json:"content_hash"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Stats describes the shared index.
type Stats struct {
	TotalDocs    int                     `json:"total_docs"`
	TotalChunks  int                     `json:"total_chunks"`
	TotalVectors int                     `json:"total_vectors"`
	ByStatus     map[IngestionStatus]int `json:"by_status"`
}
