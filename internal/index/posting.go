package index

// Posting records one document's occurrences of a term.
type Posting struct {
	DocID     string
	Frequency int
	Positions []int
}

// PostingList is always sorted by DocID.
type PostingList []Posting

type TermEntry struct {
	Term     string
	Postings PostingList
}

// Stats summarises a built index.
type Stats struct {
	Documents   int     `json:"documents"`
	Files       int     `json:"files"`
	Terms       int     `json:"terms"`
	TotalTokens int     `json:"total_tokens"`
	AvgLength   float64 `json:"avg_length"`
}
