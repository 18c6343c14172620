package businessflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	"github.com/amirphl/orochi-attribution/config"
	"github.com/amirphl/orochi-attribution/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLinkIssueFlow(repo *memClickLogRepo, newUID func() string) *LinkIssueFlowImpl {
	flow := NewLinkIssueFlow(repo, config.TrackingConfig{BaseURL: "https://t.example.com/"}, newUID, testLogger()).(*LinkIssueFlowImpl)
	flow.now = fixedClock(flowNow)
	return flow
}

func TestExtractMarketplaceItemID(t *testing.T) {
	cases := map[string]string{
		"https://articulo.mercadolibre.com.mx/MLM-123456789-audifonos-_JM": "MLM123456789",
		"https://www.mercadolibre.com.ar/p/MLA987654":                      "MLA987654",
		"https://example.com/item?id=mlb42":                                "MLB42",
	}
	for raw, want := range cases {
		got := ExtractMarketplaceItemID(raw)
		require.NotNil(t, got, raw)
		assert.Equal(t, want, *got)
	}
	assert.Nil(t, ExtractMarketplaceItemID("https://example.com/product/42"))
	assert.Nil(t, ExtractMarketplaceItemID("https://example.com/html5/x"))
}

func TestParseTrackedUID(t *testing.T) {
	assert.Equal(t, "abc123", ParseTrackedUID("abc123"))
	assert.Equal(t, "abc123", ParseTrackedUID("https://t.example.com/r/abc123"))
	assert.Equal(t, "abc123", ParseTrackedUID("https://t.example.com/r/abc123?utm=x"))
	assert.Equal(t, "", ParseTrackedUID("  "))
}

func TestIssueLink(t *testing.T) {
	ctx := context.Background()

	t.Run("ExtractsItemID", func(t *testing.T) {
		repo := newMemClickLogRepo()
		flow := newTestLinkIssueFlow(repo, seqUID())
		resp, err := flow.IssueLink(ctx, &dto.GenerateClickLogRequest{
			CustomerRef: "cust-1",
			ProductRef:  "Audifonos Sony",
			OriginalURL: "https://articulo.mercadolibre.com.mx/MLM-123-audifonos-sony-_JM",
		})
		require.NoError(t, err)

		out := resp.ClickLog
		assert.Equal(t, "uid000001", out.UID)
		assert.Equal(t, "https://t.example.com/r/uid000001", out.TrackedURL)
		require.NotNil(t, out.ProductItemID)
		assert.Equal(t, "MLM123", *out.ProductItemID)
		assert.False(t, out.Converted)
		assert.Nil(t, out.ClickedAt)
		assert.True(t, out.CreatedAt.Equal(flowNow))
		assert.Len(t, repo.snapshot(), 1)
	})

	t.Run("ExplicitItemIDNormalized", func(t *testing.T) {
		flow := newTestLinkIssueFlow(newMemClickLogRepo(), seqUID())
		item := "mlm-555"
		resp, err := flow.IssueLink(ctx, &dto.GenerateClickLogRequest{
			CustomerRef: "cust-1", ProductRef: "x", OriginalURL: "https://shop.example.com/x", ItemID: &item,
		})
		require.NoError(t, err)
		assert.Equal(t, "MLM555", *resp.ClickLog.ProductItemID)
	})

	t.Run("RetriesUIDCollision", func(t *testing.T) {
		repo := newMemClickLogRepo()
		repo.seed(issued("taken", "cust-0", "x", nil, flowNow))
		uids := []string{"taken", "fresh"}
		n := 0
		flow := newTestLinkIssueFlow(repo, func() string { n++; return uids[n-1] })

		resp, err := flow.IssueLink(ctx, &dto.GenerateClickLogRequest{
			CustomerRef: "cust-1", ProductRef: "x", OriginalURL: "https://shop.example.com/x",
		})
		require.NoError(t, err)
		assert.Equal(t, "fresh", resp.ClickLog.UID)
	})

	t.Run("GivesUpAfterRepeatedCollisions", func(t *testing.T) {
		repo := newMemClickLogRepo()
		repo.seed(issued("taken", "cust-0", "x", nil, flowNow))
		flow := newTestLinkIssueFlow(repo, func() string { return "taken" })

		_, err := flow.IssueLink(ctx, &dto.GenerateClickLogRequest{
			CustomerRef: "cust-1", ProductRef: "x", OriginalURL: "https://shop.example.com/x",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, repository.ErrDuplicateKey)
	})

	t.Run("Validation", func(t *testing.T) {
		flow := newTestLinkIssueFlow(newMemClickLogRepo(), seqUID())
		cases := []struct {
			req  dto.GenerateClickLogRequest
			want error
		}{
			{dto.GenerateClickLogRequest{ProductRef: "x", OriginalURL: "https://a.com"}, ErrCustomerRefRequired},
			{dto.GenerateClickLogRequest{CustomerRef: "c", OriginalURL: "https://a.com"}, ErrProductNameRequired},
			{dto.GenerateClickLogRequest{CustomerRef: "c", ProductRef: "x", OriginalURL: "/relative"}, ErrInvalidOriginalURL},
			{dto.GenerateClickLogRequest{CustomerRef: "c", ProductRef: "x", OriginalURL: "ftp://a.com/x"}, ErrInvalidOriginalURL},
		}
		for i, tc := range cases {
			t.Run(fmt.Sprint(i), func(t *testing.T) {
				_, err := flow.IssueLink(ctx, &tc.req)
				assert.True(t, IsValidationError(err))
				assert.ErrorIs(t, err, tc.want)
			})
		}
	})
}

func TestRecordClick(t *testing.T) {
	ctx := context.Background()
	repo := newMemClickLogRepo()
	created := flowNow.Add(-time.Hour)
	repo.seed(issued("abc123", "cust-1", "x", nil, created))
	manual := issued("manual1", "cust-2", "x", nil, created)
	manual.OriginalURL = ""
	repo.seed(manual)

	tx := &inlineTx{}
	flow := NewClickRecordFlow(repo, tx.run, testLogger()).(*ClickRecordFlowImpl)
	flow.now = fixedClock(flowNow)

	target, err := flow.RecordClick(ctx, "https://t.example.com/r/abc123")
	require.NoError(t, err)
	assert.Equal(t, "https://articulo.mercadolibre.com.mx/abc123", target)

	flow.now = fixedClock(flowNow.Add(time.Hour))
	_, err = flow.RecordClick(ctx, "abc123")
	require.NoError(t, err)

	row, err := repo.ByUID(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, row.ClickedAt)
	assert.True(t, row.ClickedAt.Equal(flowNow))

	_, err = flow.RecordClick(ctx, "missing")
	assert.True(t, IsClickLogNotFound(err))

	_, err = flow.RecordClick(ctx, "manual1")
	assert.True(t, IsClickLogNotFound(err))

	_, err = flow.RecordClick(ctx, "")
	assert.True(t, IsClickLogNotFound(err))
	assert.Equal(t, 4, tx.calls)

	t.Run("CommitFailure", func(t *testing.T) {
		failing := &inlineTx{commitErr: errors.New("connection reset")}
		flow := NewClickRecordFlow(repo, failing.run, testLogger())
		_, err := flow.RecordClick(ctx, "abc123")
		var be *BusinessError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, "CLICK_RECORD_FAILED", be.Code)
		assert.False(t, IsClickLogNotFound(err))
	})
}
