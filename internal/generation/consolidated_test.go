package generation

import (
	"context"
	"fmt"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestGenerateConsolidatedKarvy(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(1, "AAAPA1111A", "BBBPB2222B")
	f.seedAccount(2, "CCCPC3333C")

	result, err := f.engine.GenerateConsolidated(context.Background(), []int64{1, 2}, models.RTAKarvy)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, 4, result.BatchNumber)
	assert.Equal(t, 2, result.DocumentCount)

	now := time.Now().UTC()
	wantArchive := fmt.Sprintf("INAAOF%s_AAAPA1111A_4.zip", now.Format("20060102"))
	assert.Equal(t, wantArchive, result.ArchiveName)

	data, ok := f.store.Get("rtazipdoc", wantArchive)
	require.True(t, ok, "archive must be uploaded")

	// three pancard holders across the two accounts, one run-wide DBF
	wantEntries := []string{
		fmt.Sprintf("0005%012d.tif", 1000),
		fmt.Sprintf("0005%012d.tif", 1001),
		fmt.Sprintf("0005%012d.tif", 2000),
		fmt.Sprintf("0005%s%03d.dbf", now.Format("020106"), 4),
	}
	assert.Equal(t, wantEntries, zipEntries(t, data))

	// ledger rows share the batch and increment per holder in traversal order
	require.Len(t, f.annexure.entries, 3)
	for i, entry := range f.annexure.entries {
		assert.Equal(t, 4, entry.BatchNumber)
		assert.Equal(t, i+1, entry.BatchSequenceNumber)
	}
	assert.Equal(t, int64(1), f.annexure.entries[0].AccountID)
	assert.Equal(t, int64(1), f.annexure.entries[1].AccountID)
	assert.Equal(t, int64(2), f.annexure.entries[2].AccountID)

	// tracking rows bulk-updated against the archive's app file record
	require.Len(t, f.consolidated.calls, 1)
	call := f.consolidated.calls[0]
	assert.Equal(t, []int64{1, 2}, call.accountIDs)
	assert.Equal(t, models.RTAKarvy, call.rtaID)
	assert.Equal(t, result.AppFileID, call.appFileID)

	require.Len(t, f.appFiles.files, 1)
	assert.Equal(t, "rtazipdoc", f.appFiles.files[0].ContainerName)
	assert.Equal(t, wantArchive, f.appFiles.files[0].Name)
	assert.NotEmpty(t, f.appFiles.files[0].Checksum)
}

func TestGenerateConsolidatedCAMS(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(7, "DDDPD4444D")

	result, err := f.engine.GenerateConsolidated(context.Background(), []int64{7}, models.RTACAMS)
	require.NoError(t, err)
	require.True(t, result.Success)

	data, ok := f.store.Get("rtazipdoc", result.ArchiveName)
	require.True(t, ok)

	// holder files grouped under the INV folder with a per-holder DBF
	folder := fmt.Sprintf("INV_%s_DDDPD4444D", time.Now().UTC().Format("20060102"))
	assert.Equal(t, []string{
		path.Join(folder, "ARN0005$DDDPD4444D$ALL.tif"),
		path.Join(folder, "Text_DDDPD4444D.dbf"),
	}, zipEntries(t, data))
}

func TestGenerateConsolidatedSkipsAccountsWithoutPrimaryPAN(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(1, "AAAPA1111A")

	// account 2 has a holder without investor details
	f.accounts.accounts[2] = &models.Account{
		ID:       2,
		IsActive: true,
		Holders:  []models.Holder{{ID: 20, AccountID: 2, Rank: models.HolderPrimary}},
	}

	result, err := f.engine.GenerateConsolidated(context.Background(), []int64{1, 2}, models.RTAKarvy)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DocumentCount)
	require.Len(t, f.annexure.entries, 1)
}

func TestGenerateConsolidatedFailsWithoutOrders(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(1, "AAAPA1111A")
	f.orderItems.noOrders = true

	_, err := f.engine.GenerateConsolidated(context.Background(), []int64{1}, models.RTAKarvy)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no orders found")
	assert.Empty(t, f.appFiles.files)
}

func TestGenerateConsolidatedDropsAccountsWithoutOrderItems(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(1, "AAAPA1111A")
	f.seedAccount(2, "CCCPC3333C")

	// only account 1 has an anchoring order item
	f.orderItems.ordersFor = []int64{1}

	result, err := f.engine.GenerateConsolidated(context.Background(), []int64{1, 2}, models.RTAKarvy)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DocumentCount)

	require.Len(t, f.consolidated.calls, 1)
	assert.Equal(t, []int64{1}, f.consolidated.calls[0].accountIDs)
}

func TestGenerateConsolidatedFailsWithoutDocuments(t *testing.T) {
	f := newFixture(t)

	// account exists but no identity document was ever generated
	pan := "AAAPA1111A"
	f.accounts.accounts[3] = &models.Account{
		ID:       3,
		IsActive: true,
		Holders: []models.Holder{{
			ID: 30, AccountID: 3, Rank: models.HolderPrimary,
			InvestorDetail: &models.InvestorDetail{ID: 300, InvestorID: 3000, FirstName: "A", LastName: "B", PANNumber: &pan},
		}},
	}

	_, err := f.engine.GenerateConsolidated(context.Background(), []int64{3}, models.RTAKarvy)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "App File not generated")

	// all-or-nothing: nothing uploaded, nothing marked
	assert.Empty(t, f.appFiles.files)
	assert.Empty(t, f.consolidated.calls)
}

func TestGenerateConsolidatedRejectsRunOnDownloadFailure(t *testing.T) {
	f := newFixture(t)
	acct := f.seedAccount(1, "AAAPA1111A")
	f.seedAccount(2, "CCCPC3333C")

	f.store.FailDownloads[path.Join("identitydoc", acct.AppFiles[0].AppFile.Name)] = true

	_, err := f.engine.GenerateConsolidated(context.Background(), []int64{1, 2}, models.RTAKarvy)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download_documents")
	assert.Empty(t, f.appFiles.files)
	assert.Empty(t, f.consolidated.calls)
}

func TestGenerateConsolidatedToleratesAnnexureFailure(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(1, "AAAPA1111A")
	f.annexure.err = fmt.Errorf("ledger unavailable")

	result, err := f.engine.GenerateConsolidated(context.Background(), []int64{1}, models.RTAKarvy)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, f.consolidated.calls, 1)
}

func TestGenerateConsolidatedUnknownRegistrar(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.GenerateConsolidated(context.Background(), []int64{1}, 9)
	require.Error(t, err)
}

func TestGenerateConsolidatedContinuesDaySequence(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(1, "AAAPA1111A", "BBBPB2222B")
	f.seedAccount(2, "CCCPC3333C")
	f.seedAccount(3, "DDDPD4444D")

	// first run covers three holders, claiming sequence numbers 1 through 3
	_, err := f.engine.GenerateConsolidated(context.Background(), []int64{1, 2}, models.RTAKarvy)
	require.NoError(t, err)
	require.Len(t, f.annexure.entries, 3)

	// a later run the same day must pick up where the ledger left off
	_, err = f.engine.GenerateConsolidated(context.Background(), []int64{3}, models.RTAKarvy)
	require.NoError(t, err)
	require.Len(t, f.annexure.entries, 4)
	assert.Equal(t, 4, f.annexure.entries[3].BatchSequenceNumber)
}

func TestGenerateConsolidatedRecordsOutcomeInOneTransaction(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(1, "AAAPA1111A")

	result, err := f.engine.GenerateConsolidated(context.Background(), []int64{1}, models.RTAKarvy)
	require.NoError(t, err)
	require.True(t, result.Success)

	// the archive record and the tracking update commit together
	assert.Equal(t, 1, f.tx.runs)
	require.Equal(t, []bool{true}, f.appFiles.createdIn)
	require.Len(t, f.consolidated.calls, 1)
	assert.True(t, f.consolidated.calls[0].inTx)
}

func TestGenerateConsolidatedFallsBackToIdentityContainer(t *testing.T) {
	f := newFixture(t)
	acct := f.seedAccount(1, "AAAPA1111A")

	// older records carry no container name; the configured default applies
	acct.AppFiles[0].AppFile.ContainerName = ""

	result, err := f.engine.GenerateConsolidated(context.Background(), []int64{1}, models.RTAKarvy)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.DocumentCount)
}
