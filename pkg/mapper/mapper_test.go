package mapper

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgdrive/filebox/pkg/models"
)

func TestToEntryOutHidesStorageID(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	sid, url := "user_u1/2025/03/01/abc", "http://localhost/blobs/user_u1/2025/03/01/abc"
	e := &models.Entry{
		ID: "e1", OwnerID: "u1", Name: "report.pdf", Kind: models.KindFile,
		StorageID: &sid, StorageURL: &url,
		SharedWith: []models.Grant{{UserID: "u2", Email: "b@x.io", CreatedAt: now}},
		ShareLink:  &models.ShareLink{Token: "secret", ExpiresAt: &past},
		CreatedAt:  now,
	}

	raw, err := json.Marshal(ToEntryOut(e, true, now))
	require.NoError(t, err)
	body := string(raw)
	assert.NotContains(t, body, "secret")
	assert.NotContains(t, body, "storageId")
	assert.Contains(t, body, `"_id":"e1"`)
	assert.Contains(t, body, `"expired":true`)
	assert.Contains(t, body, `"parentFolder":null`)

	out := ToEntryOut(e, false, now)
	assert.Empty(t, out.SharedWith)
	assert.NotNil(t, out.SharedWith)
	assert.Nil(t, out.ShareLink)
	assert.Equal(t, url, *out.URL)
}

func TestToEntryListMarksOwnership(t *testing.T) {
	now := time.Now()
	items := []models.Entry{
		{ID: "a", OwnerID: "u1", Kind: models.KindFolder, SharedWith: []models.Grant{{UserID: "u2"}}},
		{ID: "b", OwnerID: "u3", Kind: models.KindFolder, SharedWith: []models.Grant{{UserID: "u1"}}},
	}
	out := ToEntryList(items, "u1", now)
	require.Len(t, out, 2)
	assert.Len(t, out[0].SharedWith, 1)
	assert.Empty(t, out[1].SharedWith)
}
