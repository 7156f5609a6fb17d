package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/holiman/uint256"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it.  All prefix constants must be declared
// via this function.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

// statePrefixes is populated automatically by registerPrefix() below.
// ComputeRoot() iterates these prefixes to build the full world-state view.
var statePrefixes []string

var (
	prefixAccount      = registerPrefix("acct:")
	prefixAsset        = registerPrefix("asset:")
	prefixTemplate     = registerPrefix("tmpl:")
	prefixTool         = registerPrefix("tool:")
	prefixSecondary    = registerPrefix("sec:")
	prefixSecAllowance = registerPrefix("secallow:")
	prefixSale         = registerPrefix("sale:")
)

const (
	keySaleConfig   = "sale:cfg"
	keyMinterCount  = "sale:minters:n"
	prefixRound     = "sale:round:"
	prefixContainer = "sale:cont:"
	prefixAllowance = "sale:allow:"
	prefixBook      = "sale:book:"
	prefixOpened    = "sale:opened:"
	prefixMinter    = "sale:minter:"
	prefixMinterIdx = "sale:minters:"
)

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.State on top of a DB with in-memory write buffer,
// snapshot/rollback, and deterministic state-root computation. It is safe
// for concurrent use. Readers that must not see uncommitted writes use
// Committed.
type StateDB struct {
	mu        sync.RWMutex
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// Committed returns a view that reads only what Commit has written to the
// underlying DB. Writes made through the view stay in its own buffer.
func (s *StateDB) Committed() *StateDB {
	return NewStateDB(s.db)
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deleted[key] {
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) del(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dirty, key)
	s.deleted[key] = true
}

func (s *StateDB) getJSON(key string, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

func (s *StateDB) getUint64(key string) (uint64, error) {
	data, err := s.get(key)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(data), 10, 64)
}

func (s *StateDB) setUint64(key string, v uint64) {
	s.set(key, []byte(strconv.FormatUint(v, 10)))
}

func (s *StateDB) getAmount(key string) (*uint256.Int, error) {
	data, err := s.get(key)
	if errors.Is(err, core.ErrNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return uint256.FromDecimal(string(data))
}

func (s *StateDB) setAmount(key string, v *uint256.Int) {
	if v == nil {
		v = new(uint256.Int)
	}
	s.set(key, []byte(v.Dec()))
}

// idKey zero-pads numeric ids so prefix iteration yields numeric order.
func idKey(prefix string, id uint64) string {
	return fmt.Sprintf("%s%020d", prefix, id)
}

// ---- Account ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	var acc core.Account
	err := s.getJSON(prefixAccount+address, &acc)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address, Balance: new(uint256.Int)}, nil
	}
	if err != nil {
		return nil, err
	}
	if acc.Balance == nil {
		acc.Balance = new(uint256.Int)
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAccount+acc.Address, acc)
}

// ---- Asset ----

func (s *StateDB) GetAsset(id string) (*core.Asset, error) {
	var asset core.Asset
	if err := s.getJSON(prefixAsset+id, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

func (s *StateDB) SetAsset(asset *core.Asset) error {
	return s.setJSON(prefixAsset+asset.ID, asset)
}

func (s *StateDB) DeleteAsset(id string) error {
	s.del(prefixAsset + id)
	return nil
}

// ---- Template ----

func (s *StateDB) GetTemplate(id string) (*core.AssetTemplate, error) {
	var t core.AssetTemplate
	if err := s.getJSON(prefixTemplate+id, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *StateDB) SetTemplate(t *core.AssetTemplate) error {
	return s.setJSON(prefixTemplate+t.ID, t)
}

// ---- Batch tokens ----

func toolKey(owner string, tokenID uint64) string {
	return idKey(prefixTool+owner+":", tokenID)
}

func (s *StateDB) GetToolBalance(owner string, tokenID uint64) (uint64, error) {
	return s.getUint64(toolKey(owner, tokenID))
}

func (s *StateDB) SetToolBalance(owner string, tokenID uint64, amount uint64) error {
	key := toolKey(owner, tokenID)
	if amount == 0 {
		s.del(key)
		return nil
	}
	s.setUint64(key, amount)
	return nil
}

// ---- Secondary asset ----

func (s *StateDB) GetSecondaryBalance(owner string) (*uint256.Int, error) {
	return s.getAmount(prefixSecondary + owner)
}

func (s *StateDB) SetSecondaryBalance(owner string, amount *uint256.Int) error {
	s.setAmount(prefixSecondary+owner, amount)
	return nil
}

func (s *StateDB) GetSecondaryAllowance(owner, spender string) (*uint256.Int, error) {
	return s.getAmount(prefixSecAllowance + owner + ":" + spender)
}

func (s *StateDB) SetSecondaryAllowance(owner, spender string, amount *uint256.Int) error {
	s.setAmount(prefixSecAllowance+owner+":"+spender, amount)
	return nil
}

// ---- Sale ----

func (s *StateDB) GetSaleConfig() (*core.SaleConfig, error) {
	var cfg core.SaleConfig
	if err := s.getJSON(keySaleConfig, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *StateDB) SetSaleConfig(cfg *core.SaleConfig) error {
	return s.setJSON(keySaleConfig, cfg)
}

// GetRound returns the stored round, or an inactive round of the fixed kind
// when it has never been configured.
func (s *StateDB) GetRound(id uint8) (*core.Round, error) {
	var r core.Round
	err := s.getJSON(fmt.Sprintf("%s%d", prefixRound, id), &r)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Round{ID: id, Kind: core.KindOfRound(id)}, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *StateDB) SetRound(r *core.Round) error {
	return s.setJSON(fmt.Sprintf("%s%d", prefixRound, r.ID), r)
}

// GetContainer returns the stored container, or an empty one if it was
// never loaded.
func (s *StateDB) GetContainer(ref core.ContainerRef) (*core.Container, error) {
	var c core.Container
	err := s.getJSON(prefixContainer+ref.String(), &c)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Container{Ref: ref}, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *StateDB) SetContainer(c *core.Container) error {
	return s.setJSON(prefixContainer+c.Ref.String(), c)
}

func allowanceKey(round uint8, address string) string {
	return fmt.Sprintf("%s%d:%s", prefixAllowance, round, address)
}

func (s *StateDB) GetAllowance(round uint8, address string) (*core.Allowance, error) {
	var a core.Allowance
	err := s.getJSON(allowanceKey(round, address), &a)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Allowance{Round: round, Address: address}, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *StateDB) SetAllowance(a *core.Allowance) error {
	return s.setJSON(allowanceKey(a.Round, a.Address), a)
}

func (s *StateDB) GetBook(id uint64) (*core.Book, error) {
	var b core.Book
	if err := s.getJSON(idKey(prefixBook, id), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *StateDB) SetBook(b *core.Book) error {
	return s.setJSON(idKey(prefixBook, b.ID), b)
}

func (s *StateDB) DeleteBook(id uint64) error {
	s.del(idKey(prefixBook, id))
	return nil
}

func (s *StateDB) IsBookOpened(id uint64) (bool, error) {
	_, err := s.get(idKey(prefixOpened, id))
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *StateDB) MarkBookOpened(id uint64) error {
	s.set(idKey(prefixOpened, id), []byte{1})
	return nil
}

func (s *StateDB) GetMinterTotal(address string) (uint64, error) {
	return s.getUint64(prefixMinter + address)
}

func (s *StateDB) SetMinterTotal(address string, total uint64) error {
	s.setUint64(prefixMinter+address, total)
	return nil
}

// GetMinters returns every address that has been allocated a book, in
// first-allocation order.
func (s *StateDB) GetMinters() ([]string, error) {
	n, err := s.getUint64(keyMinterCount)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		addr, err := s.get(idKey(prefixMinterIdx, i))
		if err != nil {
			return nil, fmt.Errorf("minter %d: %w", i, err)
		}
		out = append(out, string(addr))
	}
	return out, nil
}

func (s *StateDB) AppendMinter(address string) error {
	n, err := s.getUint64(keyMinterCount)
	if err != nil {
		return err
	}
	s.set(idKey(prefixMinterIdx, n), []byte(address))
	s.setUint64(keyMinterCount, n+1)
	return nil
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := stateSnapshot{
		dirty:   make(map[string][]byte, len(s.dirty)),
		deleted: make(map[string]bool, len(s.deleted)),
	}
	for k, v := range s.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		snap.dirty[k] = cp
	}
	for k, v := range s.deleted {
		snap.deleted[k] = v
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot
// and discards it along with every later snapshot.
func (s *StateDB) RevertToSnapshot(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]

	dirty := make(map[string][]byte, len(snap.dirty))
	for k, v := range snap.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		dirty[k] = cp
	}
	deleted := make(map[string]bool, len(snap.deleted))
	for k, v := range snap.deleted {
		deleted[k] = v
	}

	s.dirty = dirty
	s.deleted = deleted
	s.snapshots = s.snapshots[:id]
	return nil
}

// DiscardSnapshot drops snapshot id and every later one without touching
// the write buffer. Call it when the guarded work succeeded.
func (s *StateDB) DiscardSnapshot(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id >= 0 && id < len(s.snapshots) {
		s.snapshots = s.snapshots[:id]
	}
}

// ComputeRoot returns the deterministic hash of the complete world state.
// It merges persisted entries under the registered prefixes with the write
// buffer, then hashes the sorted key-value pairs using length-prefix
// encoding. It does not flush or modify state.
func (s *StateDB) ComputeRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			k := string(it.Key())
			v := make([]byte, len(it.Value()))
			copy(v, it.Value())
			merged[k] = v
		}
		it.Release()
	}
	for k, v := range s.dirty {
		merged[k] = v
	}
	for k := range s.deleted {
		delete(merged, k)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		buf.Write(lenBuf[:])
		buf.WriteString(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// batch and then clears it.
func (s *StateDB) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}
