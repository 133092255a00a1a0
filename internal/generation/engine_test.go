package generation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/internal/repositories/orderitem"
	"github.com/Ramsey-B/fern/pkg/filestore"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tiffconv"
)

func testLogger() ectologger.Logger {
	return zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
}

type fakeAccounts struct {
	accounts map[int64]*models.Account
}

func (f *fakeAccounts) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	acct, ok := f.accounts[id]
	if !ok {
		return nil, nil
	}
	clone := *acct
	return &clone, nil
}

func (f *fakeAccounts) GetByIDs(ctx context.Context, ids []int64) ([]models.Account, error) {
	out := make([]models.Account, 0, len(ids))
	for _, id := range ids {
		if acct, ok := f.accounts[id]; ok {
			out = append(out, *acct)
		}
	}
	return out, nil
}

type fakeOrderItems struct {
	mu        sync.Mutex
	items     []models.OrderItem
	listErr   error
	marked    []int64
	noOrders  bool
	ordersFor []int64 // nil means every requested account has an order item
}

func (f *fakeOrderItems) ListForConsolidated(ctx context.Context, accountIDs []int64, rtaID int64) ([]models.OrderItem, error) {
	if f.noOrders {
		return nil, nil
	}
	covered := accountIDs
	if f.ordersFor != nil {
		covered = f.ordersFor
	}
	feedLogID := int64(900)
	items := make([]models.OrderItem, 0, len(covered))
	for i, id := range covered {
		items = append(items, models.OrderItem{
			ID:                   int64(500 + i),
			AccountID:            id,
			RTAID:                rtaID,
			UniqueID:             fmt.Sprintf("ORD%d", id),
			TransactionFeedLogID: &feedLogID,
		})
	}
	return items, f.listErr
}

func (f *fakeOrderItems) ListPendingNominee(ctx context.Context, filter orderitem.Filter) ([]models.OrderItem, error) {
	return f.items, f.listErr
}

func (f *fakeOrderItems) MarkNomineeDocumentGenerated(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, id)
	return nil
}

type bulkCall struct {
	accountIDs []int64
	rtaID      int64
	appFileID  int64
	inTx       bool
}

// fakeTxRunner stands in for the database so tests can observe which
// writes land inside a transaction.
type fakeTxRunner struct {
	mu   sync.Mutex
	runs int
	inTx bool
}

func (f *fakeTxRunner) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	f.runs++
	f.inTx = true
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inTx = false
		f.mu.Unlock()
	}()
	return fn(ctx)
}

func (f *fakeTxRunner) active() bool {
	if f == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inTx
}

type fakeConsolidated struct {
	mu    sync.Mutex
	calls []bulkCall
	tx    *fakeTxRunner
}

func (f *fakeConsolidated) BulkMarkGenerated(ctx context.Context, accountIDs []int64, rtaID int64, appFileID int64, generatedDate time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, bulkCall{
		accountIDs: accountIDs,
		rtaID:      rtaID,
		appFileID:  appFileID,
		inTx:       f.tx.active(),
	})
	return int64(len(accountIDs)), nil
}

type fakeNominees struct {
	mu           sync.Mutex
	nextID       int64
	claims       []*models.NomineeDocument
	finalized    map[int64]int64
	expired      int64
	expireErr    error
	expireCutoff time.Time
}

func (f *fakeNominees) CreateClaim(ctx context.Context, doc *models.NomineeDocument) (*models.NomineeDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	created := *doc
	created.ID = f.nextID
	f.claims = append(f.claims, &created)
	return &created, nil
}

func (f *fakeNominees) Finalize(ctx context.Context, id int64, appFileID int64, generatedDate time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalized == nil {
		f.finalized = make(map[int64]int64)
	}
	f.finalized[id] = appFileID
	return nil
}

func (f *fakeNominees) ExpireStaleClaims(ctx context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireCutoff = olderThan
	return f.expired, f.expireErr
}

type fakeAnnexure struct {
	mu      sync.Mutex
	entries []models.AnnexureFeedEntry
	err     error
}

func (f *fakeAnnexure) BulkInsert(ctx context.Context, entries []models.AnnexureFeedEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entries...)
	return nil
}

type fakeAppFiles struct {
	mu        sync.Mutex
	nextID    int64
	files     []*models.AppFile
	tx        *fakeTxRunner
	createdIn []bool
}

func (f *fakeAppFiles) Create(ctx context.Context, file *models.AppFile) (*models.AppFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	created := *file
	created.ID = f.nextID
	f.files = append(f.files, &created)
	f.createdIn = append(f.createdIn, f.tx.active())
	return &created, nil
}

type fakeAllocator struct {
	mu      sync.Mutex
	batch   int
	seedSeq int
	ledger  *fakeAnnexure
	codes   map[int64]int
}

func (f *fakeAllocator) NextRunNumbers(ctx context.Context, rtaID int64, day time.Time) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	first := f.seedSeq + 1
	if f.ledger != nil {
		f.ledger.mu.Lock()
		first += len(f.ledger.entries)
		f.ledger.mu.Unlock()
	}
	return f.batch, first, nil
}

func (f *fakeAllocator) NextDayCode(ctx context.Context, rtaID int64, day time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.codes == nil {
		f.codes = make(map[int64]int)
	}
	f.codes[rtaID]++
	return fmt.Sprintf("%04d", f.codes[rtaID]), nil
}

// copyConverter stands in for imagemagick: it copies the source bytes to
// the destination path.
type copyConverter struct{}

func (copyConverter) Convert(ctx context.Context, src, destPath string, settings tiffconv.Settings) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()
	out, err := os.Create(destPath)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return "", err
	}
	return destPath, nil
}

type testFixture struct {
	engine       *Engine
	store        *filestore.MemoryStore
	accounts     *fakeAccounts
	orderItems   *fakeOrderItems
	consolidated *fakeConsolidated
	nominees     *fakeNominees
	annexure     *fakeAnnexure
	appFiles     *fakeAppFiles
	allocator    *fakeAllocator
	tx           *fakeTxRunner
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()

	tx := &fakeTxRunner{}
	annexure := &fakeAnnexure{}
	f := &testFixture{
		store:        filestore.NewMemoryStore(),
		accounts:     &fakeAccounts{accounts: make(map[int64]*models.Account)},
		orderItems:   &fakeOrderItems{},
		consolidated: &fakeConsolidated{tx: tx},
		nominees:     &fakeNominees{},
		annexure:     annexure,
		appFiles:     &fakeAppFiles{tx: tx},
		allocator:    &fakeAllocator{batch: 4, ledger: annexure},
		tx:           tx,
	}
	f.engine = NewEngine(
		f.accounts,
		f.orderItems,
		f.consolidated,
		f.nominees,
		f.annexure,
		f.appFiles,
		f.allocator,
		f.tx,
		f.store,
		copyConverter{},
		nil,
		Config{
			ScratchRoot:           t.TempDir(),
			IdentityContainer:     "identitydoc",
			ConsolidatedContainer: "rtazipdoc",
			NomineeContainer:      "nomineedoc",
			NomineeWorkers:        2,
		},
		testLogger(),
	)
	return f
}

// seedAccount registers an account with one pancard-bearing holder per
// given pan and a stored identity document.
func (f *testFixture) seedAccount(id int64, pans ...string) *models.Account {
	acct := &models.Account{ID: id, AccountCode: fmt.Sprintf("ACC%d", id), IsActive: true}
	for i, pan := range pans {
		pan := pan
		acct.Holders = append(acct.Holders, models.Holder{
			ID:        id*10 + int64(i),
			AccountID: id,
			Rank:      models.HolderRank(i + 1),
			InvestorDetail: &models.InvestorDetail{
				ID:         id*100 + int64(i),
				InvestorID: id*1000 + int64(i),
				FirstName:  fmt.Sprintf("HOLDER%d", i+1),
				LastName:   fmt.Sprintf("ACCT%d", id),
				PANNumber:  &pan,
			},
		})
	}

	docName := fmt.Sprintf("identity_%d.tif", id)
	f.store.Put("identitydoc", docName, []byte(fmt.Sprintf("image-bytes-%d", id)))
	acct.AppFiles = []models.AccountAppFile{{
		ID:        id,
		AccountID: id,
		AppFileID: id,
		AppFile: &models.AppFile{
			ID:            id,
			ContainerName: "identitydoc",
			Name:          docName,
			Extension:     "tif",
		},
	}}

	f.accounts.accounts[id] = acct
	return acct
}

func zipEntries(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, file := range zr.File {
		names = append(names, file.Name)
	}
	return names
}
