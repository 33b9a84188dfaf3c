package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecord_Project(t *testing.T) {
	r := Record{
		QueryID: 7,
		SrcLang: "eng",
		SrcText: "the cat",
		TgtLang: "fra",
		TgtText: "le chat",
		Quality: "machine cleaned",
		Type:    "TM",
		Domain:  "Sedar",
		YCC:     "26",
	}

	base := r.Project(FieldSet{})
	assert.Equal(t, map[string]any{
		"src_lang": "eng",
		"src_text": "the cat",
		"tgt_lang": "fra",
		"tgt_text": "le chat",
	}, base)

	full := r.Project(FieldSet{Type: true, Domain: true, Quality: true, YCC: true})
	assert.Len(t, full, 8)
	assert.Equal(t, "TM", full["type"])
	assert.Equal(t, "Sedar", full["domain"])
	assert.Equal(t, "machine cleaned", full["quality"])
	assert.Equal(t, "26", full["ycc"])

	partial := r.Project(FieldSet{Quality: true})
	assert.Len(t, partial, 5)
	assert.NotContains(t, partial, "type")
}

func TestVectorStatus_String(t *testing.T) {
	assert.Equal(t, "ok", VectorOK.String())
	assert.Equal(t, "degraded", VectorDegraded.String())
	assert.Equal(t, "fatal", VectorFatal.String())
	assert.Equal(t, "Unknown", VectorStatus(9).String())
}

func TestVectorOutcome_Usable(t *testing.T) {
	assert.True(t, VectorOutcome{Status: VectorOK}.Usable())
	assert.True(t, VectorOutcome{Status: VectorDegraded}.Usable())
	assert.False(t, VectorOutcome{Status: VectorFatal}.Usable())
	assert.Equal(t, []float32{0, 0, 0}, ZeroVector(3))
}

func TestBuildReport_WasReused(t *testing.T) {
	r := BuildReport{Reused: []ArtifactKind{ArtifactModel}, Computed: []ArtifactKind{ArtifactVectors, ArtifactIndex}}
	assert.True(t, r.WasReused(ArtifactModel))
	assert.False(t, r.WasReused(ArtifactIndex))
}
