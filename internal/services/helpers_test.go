package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"ewallet/internal/models"
	"ewallet/internal/store"
	"ewallet/internal/websocket"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type snapshotter interface {
	snapshot() any
	restore(state any)
}

// fakeTxRunner serializes closures and restores every registered store when a
// closure fails, which is what a serializable database transaction guarantees.
type fakeTxRunner struct {
	mu     sync.Mutex
	stores []snapshotter
	err    error
	txs    []*fakeTx
}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	states := snapshotAll(f.stores)
	tx := &fakeTx{stores: f.stores, savepoints: map[string][]any{}}
	f.txs = append(f.txs, tx)
	if err := fn(tx); err != nil {
		restoreAll(f.stores, states)
		return err
	}
	return nil
}

func (f *fakeTxRunner) execs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []string
	for _, tx := range f.txs {
		all = append(all, tx.execs...)
	}
	return all
}

type fakeTx struct {
	stores     []snapshotter
	savepoints map[string][]any
	execs      []string
}

func (t *fakeTx) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	t.execs = append(t.execs, query)
	switch {
	case strings.HasPrefix(query, "SAVEPOINT "):
		t.savepoints[strings.TrimPrefix(query, "SAVEPOINT ")] = snapshotAll(t.stores)
	case strings.HasPrefix(query, "ROLLBACK TO SAVEPOINT "):
		name := strings.TrimPrefix(query, "ROLLBACK TO SAVEPOINT ")
		restoreAll(t.stores, t.savepoints[name])
	case strings.HasPrefix(query, "RELEASE SAVEPOINT "):
		delete(t.savepoints, strings.TrimPrefix(query, "RELEASE SAVEPOINT "))
	default:
		return nil, errors.New("unexpected statement: " + query)
	}
	return driver.RowsAffected(0), nil
}

func (t *fakeTx) GetContext(context.Context, any, string, ...any) error {
	return errors.New("unexpected direct query")
}

func (t *fakeTx) SelectContext(context.Context, any, string, ...any) error {
	return errors.New("unexpected direct query")
}

func snapshotAll(stores []snapshotter) []any {
	states := make([]any, len(stores))
	for i, s := range stores {
		states[i] = s.snapshot()
	}
	return states
}

func restoreAll(stores []snapshotter, states []any) {
	for i, s := range stores {
		s.restore(states[i])
	}
}

type memWalletStore struct {
	mu          sync.Mutex
	wallets     map[string]models.Wallet
	createErrs  []error
	updateErrOn func(walletID string, call int) error
	updates     int
}

func newMemWalletStore(wallets ...models.Wallet) *memWalletStore {
	s := &memWalletStore{wallets: map[string]models.Wallet{}}
	for _, wallet := range wallets {
		s.wallets[wallet.ID] = wallet
	}
	return s
}

func (s *memWalletStore) snapshot() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]models.Wallet, len(s.wallets))
	for id, wallet := range s.wallets {
		copied[id] = wallet
	}
	return copied
}

func (s *memWalletStore) restore(state any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets = state.(map[string]models.Wallet)
}

func (s *memWalletStore) Create(_ context.Context, _ store.Execer, wallet models.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		if err != nil {
			return err
		}
	}
	for _, existing := range s.wallets {
		if existing.WalletNumber == wallet.WalletNumber {
			return &pq.Error{Code: "23505", Constraint: "wallets_wallet_number_key"}
		}
	}
	s.wallets[wallet.ID] = wallet
	return nil
}

func (s *memWalletStore) GetByID(_ context.Context, walletID string) (models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallet, ok := s.wallets[walletID]
	if !ok {
		return models.Wallet{}, sql.ErrNoRows
	}
	return wallet, nil
}

func (s *memWalletStore) GetForUpdate(ctx context.Context, _ store.Getter, walletID string) (models.Wallet, error) {
	return s.GetByID(ctx, walletID)
}

func (s *memWalletStore) GetByWalletNumber(_ context.Context, walletNumber string) (models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wallet := range s.wallets {
		if wallet.WalletNumber == walletNumber {
			return wallet, nil
		}
	}
	return models.Wallet{}, sql.ErrNoRows
}

func (s *memWalletStore) ListByUser(_ context.Context, userID string) ([]models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var wallets []models.Wallet
	for _, wallet := range s.wallets {
		if wallet.UserID == userID {
			wallets = append(wallets, wallet)
		}
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].ID < wallets[j].ID })
	return wallets, nil
}

func (s *memWalletStore) WalletNumberExists(ctx context.Context, _ store.Getter, walletNumber string) (bool, error) {
	_, err := s.GetByWalletNumber(ctx, walletNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *memWalletStore) UpdateBalance(_ context.Context, _ store.Execer, walletID string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if s.updateErrOn != nil {
		if err := s.updateErrOn(walletID, s.updates); err != nil {
			return err
		}
	}
	wallet, ok := s.wallets[walletID]
	if !ok {
		return sql.ErrNoRows
	}
	wallet.Balance = balance
	s.wallets[walletID] = wallet
	return nil
}

func (s *memWalletStore) Delete(_ context.Context, _ store.Execer, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wallets[walletID]; !ok {
		return sql.ErrNoRows
	}
	delete(s.wallets, walletID)
	return nil
}

func (s *memWalletStore) balance(walletID string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallets[walletID].Balance
}

type memTransactionStore struct {
	mu           sync.Mutex
	transactions map[string]models.Transaction
}

func newMemTransactionStore() *memTransactionStore {
	return &memTransactionStore{transactions: map[string]models.Transaction{}}
}

func (s *memTransactionStore) snapshot() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]models.Transaction, len(s.transactions))
	for id, transaction := range s.transactions {
		copied[id] = transaction
	}
	return copied
}

func (s *memTransactionStore) restore(state any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = state.(map[string]models.Transaction)
}

func (s *memTransactionStore) Create(_ context.Context, _ store.Execer, input store.TransactionInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[input.ID] = models.Transaction{
		ID:                input.ID,
		WalletID:          input.WalletID,
		Amount:            input.Amount,
		Type:              input.Type,
		Status:            input.Status,
		RecipientWalletID: input.RecipientWalletID,
		Description:       input.Description,
	}
	return nil
}

func (s *memTransactionStore) GetByID(_ context.Context, transactionID string) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	transaction, ok := s.transactions[transactionID]
	if !ok {
		return models.Transaction{}, sql.ErrNoRows
	}
	return transaction, nil
}

func (s *memTransactionStore) GetForUpdate(ctx context.Context, _ store.Getter, transactionID string) (models.Transaction, error) {
	return s.GetByID(ctx, transactionID)
}

func (s *memTransactionStore) ListByWallet(_ context.Context, walletID string) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var transactions []models.Transaction
	for _, transaction := range s.transactions {
		if transaction.Touches(walletID) {
			transactions = append(transactions, transaction)
		}
	}
	return transactions, nil
}

func (s *memTransactionStore) UpdateStatus(_ context.Context, _ store.Execer, transactionID string, status models.TransactionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	transaction, ok := s.transactions[transactionID]
	if !ok || transaction.Status != models.StatusPending {
		return sql.ErrNoRows
	}
	transaction.Status = status
	s.transactions[transactionID] = transaction
	return nil
}

func (s *memTransactionStore) byType(txType models.TransactionType) []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found []models.Transaction
	for _, transaction := range s.transactions {
		if transaction.Type == txType {
			found = append(found, transaction)
		}
	}
	return found
}

type memUserStore struct {
	mu        sync.Mutex
	users     map[string]models.User
	createErr error
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[string]models.User{}}
}

func (s *memUserStore) snapshot() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]models.User, len(s.users))
	for id, user := range s.users {
		copied[id] = user
	}
	return copied
}

func (s *memUserStore) restore(state any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = state.(map[string]models.User)
}

func (s *memUserStore) Create(_ context.Context, _ store.Execer, id, username, email, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.users[id] = models.User{ID: id, Username: username, Email: email, PasswordHash: passwordHash}
	return nil
}

func (s *memUserStore) GetByID(_ context.Context, userID string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (s *memUserStore) find(match func(models.User) bool) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if match(user) {
			return user, nil
		}
	}
	return models.User{}, sql.ErrNoRows
}

func (s *memUserStore) GetByUsername(_ context.Context, username string) (models.User, error) {
	return s.find(func(u models.User) bool { return u.Username == username })
}

func (s *memUserStore) GetByEmail(_ context.Context, email string) (models.User, error) {
	return s.find(func(u models.User) bool { return u.Email == email })
}

func (s *memUserStore) Update(_ context.Context, _ store.Execer, userID string, update store.UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	if update.Username != nil {
		user.Username = *update.Username
	}
	if update.Email != nil {
		user.Email = *update.Email
	}
	if update.PasswordHash != nil {
		user.PasswordHash = *update.PasswordHash
	}
	s.users[userID] = user
	return nil
}

func (s *memUserStore) Delete(_ context.Context, _ store.Execer, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return sql.ErrNoRows
	}
	delete(s.users, userID)
	return nil
}

type memAuditStore struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (s *memAuditStore) snapshot() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditEntry(nil), s.entries...)
}

func (s *memAuditStore) restore(state any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = state.([]models.AuditEntry)
}

func (s *memAuditStore) Log(_ context.Context, _ store.Execer, input store.AuditInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	actor := input.ActorID
	s.entries = append(s.entries, models.AuditEntry{
		ActorUserID: &actor,
		Action:      input.Action,
		EntityType:  input.EntityType,
		EntityID:    input.EntityID,
		Data:        input.Data,
	})
	return nil
}

func (s *memAuditStore) ListByActor(_ context.Context, actorID string, limit int) ([]models.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []models.AuditEntry
	for i := len(s.entries) - 1; i >= 0 && len(entries) < limit; i-- {
		entry := s.entries[i]
		if entry.ActorUserID != nil && *entry.ActorUserID == actorID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (s *memAuditStore) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions := make([]string, 0, len(s.entries))
	for _, entry := range s.entries {
		actions = append(actions, entry.Action)
	}
	return actions
}

type recordingNotifier struct {
	mu      sync.Mutex
	updates map[string][]websocket.BalanceUpdate
}

func (n *recordingNotifier) BroadcastBalance(userID string, update websocket.BalanceUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.updates == nil {
		n.updates = map[string][]websocket.BalanceUpdate{}
	}
	n.updates[userID] = append(n.updates[userID], update)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, updates := range n.updates {
		total += len(updates)
	}
	return total
}

type fixture struct {
	runner       *fakeTxRunner
	wallets      *memWalletStore
	transactions *memTransactionStore
	users        *memUserStore
	audit        *memAuditStore
	notifier     *recordingNotifier
	walletSvc    *WalletService
	txSvc        *TransactionService
	userSvc      *UserService
}

func newFixture(t *testing.T, wallets ...models.Wallet) *fixture {
	t.Helper()
	f := &fixture{
		wallets:      newMemWalletStore(wallets...),
		transactions: newMemTransactionStore(),
		users:        newMemUserStore(),
		audit:        &memAuditStore{},
		notifier:     &recordingNotifier{},
	}
	f.runner = &fakeTxRunner{stores: []snapshotter{f.wallets, f.transactions, f.users, f.audit}}
	f.walletSvc = NewWalletService(f.runner, f.wallets, f.audit, f.notifier)
	f.txSvc = NewTransactionService(f.runner, f.transactions, f.walletSvc, zap.NewNop())
	f.userSvc = NewUserService(f.runner, f.users, f.walletSvc, f.audit, "secret", time.Hour)
	return f
}

func wallet(id, userID, number, balance string) models.Wallet {
	return models.Wallet{
		ID:           id,
		UserID:       userID,
		WalletNumber: number,
		Balance:      decimal.RequireFromString(balance),
		Currency:     "USD",
	}
}

func amount(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func stringPtr(value string) *string {
	return &value
}
