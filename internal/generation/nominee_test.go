package generation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func pendingItem(id, accountID int64, rtaID int64, amcCode string) models.OrderItem {
	return models.OrderItem{
		ID:              id,
		OrderID:         id,
		AccountID:       accountID,
		InstrumentID:    id,
		UniqueID:        fmt.Sprintf("TXN%d", id),
		RTAID:           rtaID,
		TransactionType: models.TransactionTypePurchase,
		Instrument: &models.Instrument{
			ID:                id,
			Name:              "GROWTH FUND",
			ServiceProviderID: 5,
			ServiceProvider: &models.ServiceProvider{
				ID:             5,
				Name:           "PARIJAT AMC",
				PrimaryAMCCode: amcCode,
				RTAID:          rtaID,
			},
		},
	}
}

func TestGenerateNomineeDocumentsKarvy(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(1, "AAAPA1111A")
	f.orderItems.items = []models.OrderItem{pendingItem(100, 1, models.RTAKarvy, "P")}

	results, err := f.engine.GenerateNomineeDocuments(context.Background(), NomineeFilter{RTAID: models.RTAKarvy})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	assert.Equal(t, "P~0005~TXN100_0001.zip", results[0].ArchiveName)
	require.NotNil(t, results[0].AppFileID)

	data, ok := f.store.Get("nomineedoc", results[0].ArchiveName)
	require.True(t, ok)
	// a bare TIFF, no DBF manifest for this registrar
	assert.Equal(t, []string{"P~0005~TXN100.tif"}, zipEntries(t, data))

	// claim created inactive, finalized against the uploaded record
	require.Len(t, f.nominees.claims, 1)
	claim := f.nominees.claims[0]
	assert.False(t, claim.IsActive)
	require.NotNil(t, claim.Remarks)
	assert.Equal(t, "order_item:TXN100", *claim.Remarks)
	assert.Equal(t, *results[0].AppFileID, f.nominees.finalized[claim.ID])

	// idempotency guard flipped
	assert.Equal(t, []int64{100}, f.orderItems.marked)
}

func TestGenerateNomineeDocumentsCAMSCarriesManifest(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(2, "BBBPB2222B")
	f.orderItems.items = []models.OrderItem{pendingItem(200, 2, models.RTACAMS, "Q")}

	results, err := f.engine.GenerateNomineeDocuments(context.Background(), NomineeFilter{RTAID: models.RTACAMS})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	data, ok := f.store.Get("nomineedoc", results[0].ArchiveName)
	require.True(t, ok)
	assert.Equal(t, []string{
		"ARN0005$BBBPB2222B$ALL.tif",
		"Text_BBBPB2222B.dbf",
	}, zipEntries(t, data))
}

func TestGenerateNomineeDocumentsAcrossRegistrars(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(1, "AAAPA1111A")
	f.seedAccount(2, "BBBPB2222B")
	f.orderItems.items = []models.OrderItem{
		pendingItem(100, 1, models.RTAKarvy, "P"),
		pendingItem(200, 2, models.RTACAMS, "Q"),
	}

	// no registrar filter: each item is named for its own registrar
	results, err := f.engine.GenerateNomineeDocuments(context.Background(), NomineeFilter{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	archives := map[int64]string{}
	for _, res := range results {
		require.NoError(t, res.Err)
		archives[res.OrderItemID] = res.ArchiveName
	}
	assert.Equal(t, "P~0005~TXN100_0001.zip", archives[100])

	camsData, ok := f.store.Get("nomineedoc", archives[200])
	require.True(t, ok)
	assert.Equal(t, []string{
		"ARN0005$BBBPB2222B$ALL.tif",
		"Text_BBBPB2222B.dbf",
	}, zipEntries(t, camsData))
}

func TestGenerateNomineeDocumentsSettleIndependently(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(1, "AAAPA1111A")

	// account 9 has no stored identity document
	pan := "CCCPC3333C"
	f.accounts.accounts[9] = &models.Account{
		ID:       9,
		IsActive: true,
		Holders: []models.Holder{{
			ID: 90, AccountID: 9, Rank: models.HolderPrimary,
			InvestorDetail: &models.InvestorDetail{ID: 900, InvestorID: 9000, FirstName: "C", LastName: "D", PANNumber: &pan},
		}},
	}

	f.orderItems.items = []models.OrderItem{
		pendingItem(100, 1, models.RTAKarvy, "P"),
		pendingItem(101, 9, models.RTAKarvy, "P"),
	}

	results, err := f.engine.GenerateNomineeDocuments(context.Background(), NomineeFilter{RTAID: models.RTAKarvy})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// one failure does not block the other item
	require.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	assert.Contains(t, results[1].Error, "App File not generated")

	// only the successful item is claimed, finalized and flagged
	require.Len(t, f.nominees.claims, 1)
	assert.Equal(t, []int64{100}, f.orderItems.marked)
	require.Len(t, f.appFiles.files, 1)
}

func TestGenerateNomineeDocumentsMissingProvider(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(1, "AAAPA1111A")

	item := pendingItem(100, 1, models.RTAKarvy, "P")
	item.Instrument = nil
	f.orderItems.items = []models.OrderItem{item}

	results, err := f.engine.GenerateNomineeDocuments(context.Background(), NomineeFilter{RTAID: models.RTAKarvy})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
	assert.Empty(t, f.nominees.claims)
}

func TestGenerateNomineeDocumentsSelectionFailure(t *testing.T) {
	f := newFixture(t)
	f.orderItems.listErr = fmt.Errorf("feed unavailable")

	_, err := f.engine.GenerateNomineeDocuments(context.Background(), NomineeFilter{RTAID: models.RTAKarvy})
	require.Error(t, err)
}
