package entity

// RawDocument is an uploaded binary document awaiting text extraction.
type RawDocument struct {
	FileID    string `json:"fileId"`
	FileName  string `json:"fileName"`
	MediaType string `json:"mediaType"`
	Content   []byte `json:"-"`
}

// Size returns the document length in bytes.
func (d RawDocument) Size() int { return len(d.Content) }

// Segment is one page or region of extracted text.
type Segment struct {
	Index      int     `json:"index"`
	Text       string  `json:"text"`
	Method     string  `json:"method"`
	Fallback   bool    `json:"fallback"`
	Confidence float32 `json:"confidence"`
}

// DocumentMetadata describes the source document of a correction.
type DocumentMetadata struct {
	FileName  string `json:"fileName,omitempty"`
	PageCount int    `json:"pageCount,omitempty"`
	Size      int64  `json:"size,omitempty"`
}
