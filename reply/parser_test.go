package reply

import (
	"errors"
	"testing"

	"github.com/antonajp/ai4joy-sub002/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_LabeledSections(t *testing.T) {
	r, err := Parse("PARTNER: Yes, and we should run.\nROOM: tense murmurs")
	require.NoError(t, err)
	assert.Equal(t, "Yes, and we should run.", r.Partner)
	assert.Equal(t, "tense murmurs", r.Room)
	assert.Empty(t, r.Coach)
}

func TestParse_CoachSection(t *testing.T) {
	raw := "PARTNER: We made it.\nROOM: applause\nCOACH: Strong scene work. You accepted every offer."
	r, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "We made it.", r.Partner)
	assert.Equal(t, "applause", r.Room)
	assert.Equal(t, "Strong scene work. You accepted every offer.", r.Coach)
}

func TestParse_NoLabelsFallsBackToFullText(t *testing.T) {
	r, err := Parse("Let's just go.")
	require.NoError(t, err)
	assert.Equal(t, "Let's just go.", r.Partner)
	assert.Empty(t, r.Room)
	assert.Empty(t, r.Coach)
}

func TestParse_FallbackIsIdempotent(t *testing.T) {
	first, err := Parse("Grab the rope before it slips!")
	require.NoError(t, err)

	second, err := Parse(first.Partner)
	require.NoError(t, err)
	assert.Equal(t, first.Partner, second.Partner)
}

func TestParse_CaseInsensitiveLabels(t *testing.T) {
	r, err := Parse("partner: sure thing\nRoom: quiet")
	require.NoError(t, err)
	assert.Equal(t, "sure thing", r.Partner)
	assert.Equal(t, "quiet", r.Room)
}

func TestParse_LabelWordMidSentenceDoesNotSplit(t *testing.T) {
	raw := "PARTNER: My partner in crime, the room went silent when you walked in."
	r, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "My partner in crime, the room went silent when you walked in.", r.Partner)
	assert.Empty(t, r.Room)
}

func TestParse_MultilineSectionContent(t *testing.T) {
	raw := "PARTNER: We should leave.\nRight now, before anyone notices.\nROOM: doors slam"
	r, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "We should leave.\nRight now, before anyone notices.", r.Partner)
	assert.Equal(t, "doors slam", r.Room)
}

func TestParse_IndentedLabelStillMatches(t *testing.T) {
	r, err := Parse("  PARTNER: indented but labeled")
	require.NoError(t, err)
	assert.Equal(t, "indented but labeled", r.Partner)
}

func TestParse_PreambleBeforeFirstLabelIgnored(t *testing.T) {
	raw := "Here is the scene:\nPARTNER: And... scene!\nROOM: laughter"
	r, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "And... scene!", r.Partner)
	assert.Equal(t, "laughter", r.Room)
}

func TestParse_EmptyInputFails(t *testing.T) {
	_, err := Parse("   \n  ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrMalformedReply))
}

func TestParse_EmptyPartnerSectionFails(t *testing.T) {
	// Labeled but contentless partner is a hard failure, not a fallback to
	// the label scaffolding itself.
	_, err := Parse("PARTNER:\nROOM:")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrMalformedReply))
}
