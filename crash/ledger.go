package crash

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"bierbaron/config"
)

var (
	// ErrInsufficientBalance is the one ledger outcome the bettor is told about.
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUserNotFound        = errors.New("user not found")
)

// User is the identity bound to a connection by the auth handshake.
type User struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"displayName"`
}

// LedgerTx is the set of balance operations available inside one ledger
// transaction. LockBalance takes a row lock held until commit or rollback.
type LedgerTx interface {
	LockBalance(ctx context.Context, userID int64) (int64, error)
	WriteBalance(ctx context.Context, userID int64, balance int64) error
	AppendTransaction(ctx context.Context, userID int64, amount int64, reason string) error
}

// Ledger is the durable balance store. WithTx commits when fn returns nil and
// rolls back otherwise, returning fn's error unchanged.
type Ledger interface {
	LookupUser(ctx context.Context, userID int64) (*User, error)
	WithTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// WinReason tags a cashout credit with its multiplier, e.g. "crash_win@1.8x".
func WinReason(multiplier float64) string {
	return fmt.Sprintf(config.ReasonCrashWinTmpl, strconv.FormatFloat(multiplier, 'f', -1, 64))
}

// debit takes amount from userID's balance, failing with
// ErrInsufficientBalance (and no mutation) when the balance is too low.
func debit(ctx context.Context, ledger Ledger, userID, amount int64) error {
	return ledger.WithTx(ctx, func(tx LedgerTx) error {
		balance, err := tx.LockBalance(ctx, userID)
		if err != nil {
			return err
		}
		if balance < amount {
			return ErrInsufficientBalance
		}
		if err := tx.WriteBalance(ctx, userID, balance-amount); err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, userID, -amount, config.ReasonCrashBet)
	})
}

func isInsufficient(err error) bool {
	return errors.Is(err, ErrInsufficientBalance)
}

// credit pays amount to userID, tagged with the cashout multiplier.
func credit(ctx context.Context, ledger Ledger, userID, amount int64, multiplier float64) error {
	return ledger.WithTx(ctx, func(tx LedgerTx) error {
		balance, err := tx.LockBalance(ctx, userID)
		if err != nil {
			return err
		}
		if err := tx.WriteBalance(ctx, userID, balance+amount); err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, userID, amount, WinReason(multiplier))
	})
}

/* =========================
   IN-MEMORY LEDGER
========================= */

// Transaction is one wallet_transactions row.
type Transaction struct {
	UserID int64
	Amount int64
	Reason string
}

// MemoryLedger is a process-local Ledger used when no database is configured
// and in tests. Transactions are serialized by a single lock and staged so a
// failed fn leaves nothing behind.
type MemoryLedger struct {
	mu           sync.Mutex
	users        map[int64]*User
	balances     map[int64]int64
	transactions []Transaction

	// FailNext, when set, makes the next WithTx fail before fn runs.
	FailNext error
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		users:    make(map[int64]*User),
		balances: make(map[int64]int64),
	}
}

// AddUser registers a user with a starting balance.
func (m *MemoryLedger) AddUser(id int64, name string, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &User{ID: id, DisplayName: name}
	m.balances[id] = balance
}

func (m *MemoryLedger) Balance(userID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID]
}

func (m *MemoryLedger) Transactions() []Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transaction, len(m.transactions))
	copy(out, m.transactions)
	return out
}

func (m *MemoryLedger) LookupUser(ctx context.Context, userID int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (m *MemoryLedger) WithTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if m.FailNext != nil {
		err := m.FailNext
		m.FailNext = nil
		return err
	}

	tx := &memoryTx{ledger: m, balances: make(map[int64]int64)}
	if err := fn(tx); err != nil {
		return err
	}
	for id, balance := range tx.balances {
		m.balances[id] = balance
	}
	m.transactions = append(m.transactions, tx.appended...)
	return nil
}

type memoryTx struct {
	ledger   *MemoryLedger
	balances map[int64]int64
	appended []Transaction
}

func (t *memoryTx) LockBalance(ctx context.Context, userID int64) (int64, error) {
	if b, ok := t.balances[userID]; ok {
		return b, nil
	}
	return t.ledger.balances[userID], nil
}

func (t *memoryTx) WriteBalance(ctx context.Context, userID int64, balance int64) error {
	t.balances[userID] = balance
	return nil
}

func (t *memoryTx) AppendTransaction(ctx context.Context, userID int64, amount int64, reason string) error {
	t.appended = append(t.appended, Transaction{UserID: userID, Amount: amount, Reason: reason})
	return nil
}
