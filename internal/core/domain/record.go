package domain

// Record is a translation-memory segment joined with its provenance.
// Field names follow the columns returned by the metadata join.
type Record struct {
	QueryID    int     `json:"query_id"`
	Rank       int     `json:"rank"`
	SrcLang    string  `json:"src_lang"`
	SrcText    string  `json:"src_text"`
	TgtLang    string  `json:"tgt_lang"`
	TgtText    string  `json:"tgt_text"`
	Quality    string  `json:"quality"`
	Type       string  `json:"type"`
	URI        string  `json:"uri"`
	LastUpdate string  `json:"last_update"`
	Domain     string  `json:"domain,omitempty"`
	YCC        string  `json:"ycc,omitempty"`
	Distance   float32 `json:"distance"`
}

// FieldSet selects the optional fields returned by an advanced search.
type FieldSet struct {
	Type    bool
	Domain  bool
	Quality bool
	YCC     bool
}

// Project returns the record restricted to the base fields plus the selected ones.
func (r Record) Project(fields FieldSet) map[string]any {
	out := map[string]any{
		"src_lang": r.SrcLang,
		"src_text": r.SrcText,
		"tgt_lang": r.TgtLang,
		"tgt_text": r.TgtText,
	}
	if fields.Type {
		out["type"] = r.Type
	}
	if fields.Domain {
		out["domain"] = r.Domain
	}
	if fields.Quality {
		out["quality"] = r.Quality
	}
	if fields.YCC {
		out["ycc"] = r.YCC
	}
	return out
}
