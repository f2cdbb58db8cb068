package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCompare(t *testing.T) {
	cases := []struct {
		a, b Version
		want int
	}{
		{Version{1, 0}, Version{1, 0}, 0},
		{Version{1, 0}, Version{1, 1}, -1},
		{Version{1, 9}, Version{2, 0}, -1},
		{Version{2, 0}, Version{1, 9}, 1},
		{Version{2, 1}, Version{2, 0}, 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.a.Compare(tc.b), "%s vs %s", tc.a, tc.b)
	}
}

func TestVersionSuccessors(t *testing.T) {
	v := Version{Major: 2, Minor: 3}

	assert.Equal(t, Version{Major: 2, Minor: 4}, v.NextMinor())
	assert.Equal(t, Version{Major: 3, Minor: 0}, v.NextMajor(), "major bump resets minor")
	assert.Equal(t, "v2.3", v.String())
}

func TestDocumentIDJSONRoundTrip(t *testing.T) {
	docID := NewDocumentID()

	raw, err := json.Marshal(docID)
	require.NoError(t, err)
	assert.JSONEq(t, `"`+docID.String()+`"`, string(raw), "ids marshal as uuid strings, not byte arrays")

	var back DocumentID
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, docID, back)
}

func TestParseDocumentID(t *testing.T) {
	docID := NewDocumentID()

	parsed, err := ParseDocumentID(docID.String())
	require.NoError(t, err)
	assert.Equal(t, docID, parsed)

	_, err = ParseDocumentID("not-a-uuid")
	assert.Error(t, err)
}

func TestParseCapability(t *testing.T) {
	c, err := ParseCapability("author")
	require.NoError(t, err)
	assert.Equal(t, CapabilityAuthor, c)

	_, err = ParseCapability("superuser")
	assert.Error(t, err)
}

func TestActorCan(t *testing.T) {
	reviewer := NewActor("bob", CapabilityReview)
	assert.True(t, reviewer.Can(CapabilityReview))
	assert.False(t, reviewer.Can(CapabilityApprove))

	admin := NewActor("root", CapabilityAdministerAll)
	assert.True(t, admin.Can(CapabilityApprove), "administer_all implies every capability")
	assert.True(t, admin.Can(CapabilityObsolete))
}

func TestScopeFor(t *testing.T) {
	assert.Equal(t, ViewScopeSelf, ScopeFor(NewActor("bob", CapabilityReview)))
	assert.Equal(t, ViewScopeAll, ScopeFor(NewActor("root", CapabilityAdministerAll)))
}
