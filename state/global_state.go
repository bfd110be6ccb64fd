package state

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/kysee/rollup-statekeeper/types"
)

// ErrAccountOverflow is returned by InitAccount when the requested
// account id does not fit the configured account-tree height
// (spec §4.D "Structural overflow ... is fatal", surfaced here as a
// category-2 capacity error per spec §7).
var ErrAccountOverflow = errors.New("account id overflows account tree height")

// ErrUnknownAccount is the error value for a missing account. No
// operation in this package returns it: GetTokenBalance reports zero for
// a missing account, and the witness generator panics.
var ErrUnknownAccount = errors.New("unknown account")

// StateProof bundles the leaf, sub-tree roots and Merkle paths needed
// to witness a single-token, single-account read (spec §4.D
// "balance_proof / order_proof / account_proof").
type StateProof struct {
	Leaf        types.F
	Root        types.F
	BalanceRoot types.F
	OrderRoot   types.F
	BalancePath types.MerklePath
	AccountPath types.MerklePath
}

// BalanceSet is one {token, new value} write inside a BatchUpdate.
type BalanceSet struct {
	TokenID uint32
	Value   types.F
}

// OrderSet is one {slot, new order} write inside a BatchUpdate.
type OrderSet struct {
	Pos   uint32
	Order Order
}

// AccountUpdate is one account's portion of a BatchUpdate: every
// balance and order-slot write plus an optional new nonce, applied
// atomically and refreshed into the account tree exactly once
// (spec §4.D "batch_update").
type AccountUpdate struct {
	AccountID uint32
	Balances  []BalanceSet
	Orders    []OrderSet
	NewNonce  *types.F
}

// GlobalState is the three-level tree-of-trees of spec §3/§4.D: one
// account tree whose leaves are account-state hashes, and per-account
// balance/order sub-trees. Grounded on
// original_source/src/state/global_state.rs's `GlobalState`.
type GlobalState struct {
	hBal, hOrd, hAcc uint
	verbose          bool

	mu sync.RWMutex

	accountTree  *Tree
	balanceTrees map[uint32]*Tree
	orderTrees   map[uint32]*Tree
	accounts     map[uint32]AccountState

	// (account, order_id) <-> slot, and (account, slot) -> Order, per
	// spec §3 "Auxiliary maps".
	orderSlotByID      map[uint32]map[uint32]uint32
	orderByAccountSlot map[uint32]map[uint32]Order
	nextOrderPosition  map[uint32]uint32
	// nextOrderID is the supplemented per-account order-id counter from
	// original_source (spec_FULL §10) — distinct from nextOrderPosition,
	// which tracks the order *slot* allocator.
	nextOrderID map[uint32]uint32

	defaultBalanceRoot types.F
	defaultOrderLeaf   types.F
	defaultOrderRoot   types.F
	defaultAccountLeaf types.F
}

// NewGlobalState builds an empty global state for the given sub-tree
// heights (spec §6 Config: H_acc, H_bal, H_ord).
func NewGlobalState(hBal, hOrd, hAcc uint, verbose bool) *GlobalState {
	defaultBalanceRoot := NewTree(hBal, types.ZeroF()).Root()
	defaultOrderLeaf := EmptyOrder().Hash()
	defaultOrderRoot := NewTree(hOrd, defaultOrderLeaf).Root()
	defaultAccountLeaf := EmptyAccountState(defaultBalanceRoot, defaultOrderRoot).Hash()

	return &GlobalState{
		hBal: hBal, hOrd: hOrd, hAcc: hAcc,
		verbose:            verbose,
		accountTree:        NewTree(hAcc, defaultAccountLeaf),
		balanceTrees:       make(map[uint32]*Tree),
		orderTrees:         make(map[uint32]*Tree),
		accounts:           make(map[uint32]AccountState),
		orderSlotByID:      make(map[uint32]map[uint32]uint32),
		orderByAccountSlot: make(map[uint32]map[uint32]Order),
		nextOrderPosition:  make(map[uint32]uint32),
		nextOrderID:        make(map[uint32]uint32),
		defaultBalanceRoot: defaultBalanceRoot,
		defaultOrderLeaf:   defaultOrderLeaf,
		defaultOrderRoot:   defaultOrderRoot,
		defaultAccountLeaf: defaultAccountLeaf,
	}
}

// Root returns the current account-tree root (spec §4.D `root`).
func (s *GlobalState) Root() types.F {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountTree.Root()
}

// HasAccount reports whether the account has been assigned an L2 key
// (spec §4.D `has_account`: "true iff ay != 0").
func (s *GlobalState) HasAccount(accountID uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[accountID]
	return ok && !acc.IsEmpty()
}

// accountExists reports whether the account slot has been initialized
// at all (distinct from HasAccount, which additionally requires an L2
// key — an account can exist, empty, before its first deposit).
func (s *GlobalState) accountExists(accountID uint32) bool {
	_, ok := s.accounts[accountID]
	return ok
}

// InitAccount creates account slot accountID (balance/order sub-trees,
// empty account record) and seeds its order-slot allocator at
// nextOrderPos (spec §4.D `init_account`). Idempotent if the account
// already exists. Returns ErrAccountOverflow if accountID doesn't fit
// the configured account-tree height.
func (s *GlobalState) InitAccount(accountID, nextOrderPos uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if accountID >= uint32(1)<<s.hAcc {
		return fmt.Errorf("%w: account %d, height %d", ErrAccountOverflow, accountID, s.hAcc)
	}
	if s.accountExists(accountID) {
		return nil
	}
	s.balanceTrees[accountID] = NewTree(s.hBal, types.ZeroF())
	s.orderTrees[accountID] = NewTree(s.hOrd, s.defaultOrderLeaf)
	s.orderSlotByID[accountID] = make(map[uint32]uint32)
	s.orderByAccountSlot[accountID] = make(map[uint32]Order)
	s.accounts[accountID] = EmptyAccountState(s.defaultBalanceRoot, s.defaultOrderRoot)
	s.nextOrderPosition[accountID] = nextOrderPos
	s.nextOrderID[accountID] = 0
	s.accountTree.SetValue(accountID, s.defaultAccountLeaf)
	return nil
}

// flushAccountState recomputes account accountID's hash from its
// current sub-tree roots and writes it into the account tree
// (spec §4.C `flush_account_state`). Caller must hold s.mu.
func (s *GlobalState) flushAccountState(accountID uint32) {
	acc := s.accounts[accountID]
	s.accountTree.SetValue(accountID, acc.Hash())
}

// SetAccountL2Addr sets an account's (sign, ay, eth_addr) and refreshes
// the account tree (spec §4.D `set_account_l2_addr`).
func (s *GlobalState) SetAccountL2Addr(accountID uint32, sign, ay, ethAddr types.F) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[accountID]
	acc.Sign, acc.Ay, acc.EthAddr = sign, ay, ethAddr
	s.accounts[accountID] = acc
	s.flushAccountState(accountID)
}

// SetAccountNonce overwrites an account's nonce directly and refreshes
// the account tree.
func (s *GlobalState) SetAccountNonce(accountID uint32, nonce types.F) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[accountID]
	acc.Nonce = nonce
	s.accounts[accountID] = acc
	s.flushAccountState(accountID)
}

// IncreaseNonce increments an account's nonce by one.
func (s *GlobalState) IncreaseNonce(accountID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[accountID]
	acc.Nonce = types.Add(acc.Nonce, types.OneF())
	s.accounts[accountID] = acc
	s.flushAccountState(accountID)
}

// GetAccount returns a copy of account accountID's current state.
func (s *GlobalState) GetAccount(accountID uint32) AccountState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[accountID]
}

// GetTokenBalance returns account accountID's balance in token tokenID,
// zero if the account does not exist (spec §4.D `get_token_balance`).
func (s *GlobalState) GetTokenBalance(accountID, tokenID uint32) types.F {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bt, ok := s.balanceTrees[accountID]
	if !ok {
		return types.ZeroF()
	}
	return bt.GetLeaf(tokenID)
}

// SetTokenBalance writes a balance leaf and refreshes the owning
// account (spec §4.D `set_token_balance`).
func (s *GlobalState) SetTokenBalance(accountID, tokenID uint32, balance types.F) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balanceTrees[accountID].SetValue(tokenID, balance)
	acc := s.accounts[accountID]
	acc.BalanceRoot = s.balanceTrees[accountID].Root()
	s.accounts[accountID] = acc
	s.flushAccountState(accountID)
}

// SetAccountOrder writes an order into a specific slot, updates the
// order maps and refreshes the owning account (spec §4.D
// `set_account_order`).
func (s *GlobalState) SetAccountOrder(accountID, pos uint32, order Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installOrder(accountID, pos, order)
	acc := s.accounts[accountID]
	acc.OrderRoot = s.orderTrees[accountID].Root()
	s.accounts[accountID] = acc
	s.flushAccountState(accountID)
}

// installOrder writes order into (accountID, pos)'s order-tree leaf and
// maintains the order_id<->slot bijection (invariant 3), dropping the
// prior occupant's order-id mapping since a slot is only ever reused
// once its occupant is empty-or-filled. Caller must hold s.mu.
func (s *GlobalState) installOrder(accountID, pos uint32, order Order) {
	s.orderTrees[accountID].SetValue(pos, order.Hash())
	if prior, ok := s.orderByAccountSlot[accountID][pos]; ok && !prior.IsEmpty() {
		delete(s.orderSlotByID[accountID], prior.OrderID)
	}
	s.orderByAccountSlot[accountID][pos] = order
	if !order.IsEmpty() {
		s.orderSlotByID[accountID][order.OrderID] = pos
	}
}

// CancelOrder empties the slot occupied by (accountID, orderID) if one
// is currently mapped, freeing it for reallocation, and reports whether
// anything was found (spec §4.I "Order FINISH -> cancel order if
// known; otherwise ignore").
func (s *GlobalState) CancelOrder(accountID, orderID uint32) bool {
	s.mu.Lock()
	pos, ok := s.orderSlotByID[accountID][orderID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()
	s.SetAccountOrder(accountID, pos, EmptyOrder())
	return true
}

// GetAccountOrder returns the order occupying slot pos.
func (s *GlobalState) GetAccountOrder(accountID, pos uint32) Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderByAccountSlot[accountID][pos]
}

// FindOrInsertOrder implements spec §4.D's allocator: if order.OrderID
// is already mapped to a slot for this account, that slot (and its
// current occupant, before this call changes anything) is returned
// unchanged. Otherwise the next empty-or-filled slot starting at
// next_order_position(accountID) is allocated, order is installed
// there, and the allocator advances past it.
func (s *GlobalState) FindOrInsertOrder(accountID uint32, order Order) (pos uint32, priorOccupant Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.orderSlotByID[accountID][order.OrderID]; ok {
		return existing, s.orderByAccountSlot[accountID][existing]
	}

	pos = s.nextOrderPosition[accountID]
	priorOccupant = s.orderByAccountSlot[accountID][pos]
	s.installOrder(accountID, pos, order)
	acc := s.accounts[accountID]
	acc.OrderRoot = s.orderTrees[accountID].Root()
	s.accounts[accountID] = acc
	s.flushAccountState(accountID)

	s.nextOrderPosition[accountID] = s.advancePastFilledSlots(accountID, pos)
	return pos, priorOccupant
}

// advancePastFilledSlots walks forward (wrapping modulo 2^H_ord) from
// consumed+1, returning the first slot whose occupant is
// empty-or-filled. Panics if every slot in the order tree is a live,
// unfilled order (spec §4.D "panics if no such slot exists").
func (s *GlobalState) advancePastFilledSlots(accountID, consumed uint32) uint32 {
	maxSlots := uint32(1) << s.hOrd
	candidate := (consumed + 1) % maxSlots
	for i := uint32(0); i < maxSlots; i++ {
		occupant := s.orderByAccountSlot[accountID][candidate]
		if occupant.IsEmptyOrFilled() {
			return candidate
		}
		candidate = (candidate + 1) % maxSlots
	}
	panic(fmt.Sprintf("account %d has no empty-or-filled order slot to allocate (all %d slots hold live orders)", accountID, maxSlots))
}

// NextOrderID returns and advances the per-account order-id counter
// (spec_FULL §10 supplemented feature).
func (s *GlobalState) NextOrderID(accountID uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextOrderID[accountID]
	s.nextOrderID[accountID] = id + 1
	return id
}

// TrivialOrderPathElements is the sibling path of leaf 0 in an
// order-height tree whose leaves are all zero (not the EmptyOrder hash
// an account's order tree starts with), used to pad the witness of transactions that don't touch the
// order tree (Nop/Deposit/Withdraw), matching
// original_source/src/state/global_state.rs's
// `trivial_order_path_elements`.
func (s *GlobalState) TrivialOrderPathElements() types.MerklePath {
	return NewTree(s.hOrd, types.ZeroF()).GetProof(0).PathElements
}

// TrivialBalancePathElements is the analogous sibling path for an empty
// balance tree's leaf 0, used by Nop before any account has been
// initialized.
func (s *GlobalState) TrivialBalancePathElements() types.MerklePath {
	return NewTree(s.hBal, types.ZeroF()).GetProof(0).PathElements
}

// LocateOrderSlot determines which slot a (accountID, orderID) pair
// occupies or will occupy, without writing anything: if orderID is
// already mapped, its current slot is returned with alreadyMapped =
// true; otherwise the next empty-or-filled slot is reserved (the
// allocator is advanced past it) and alreadyMapped = false. The caller
// is responsible for actually writing the order (e.g. via
// SetAccountOrder) before it can be looked up by id. Splitting
// reservation from write lets the witness generator capture a
// pre-mutation Merkle proof at the slot that will be used.
func (s *GlobalState) LocateOrderSlot(accountID, orderID uint32) (pos uint32, alreadyMapped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.orderSlotByID[accountID][orderID]; ok {
		return existing, true
	}
	pos = s.nextOrderPosition[accountID]
	s.nextOrderPosition[accountID] = s.advancePastFilledSlots(accountID, pos)
	return pos, false
}

// OrderIsKnown reports whether orderID is currently mapped to a slot
// for accountID, without reserving or mutating anything — the
// read-only probe the message adapter needs to decide whether a trade
// event's order is new (and must carry its full definition) or already
// resolvable from state (spec §4.F "if a sub-order is provided, it
// must be new ... if omitted, the state must already know the order").
func (s *GlobalState) OrderIsKnown(accountID, orderID uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.orderSlotByID[accountID][orderID]
	return ok
}

// BalanceProof returns a non-destructive witness of account
// accountID's balance in tokenID (spec §4.D `balance_proof`).
func (s *GlobalState) BalanceProof(accountID, tokenID uint32) MerkleProof {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balanceTrees[accountID].GetProof(tokenID)
}

// OrderProof returns a non-destructive witness of account accountID's
// order slot pos (spec §4.D `order_proof`).
func (s *GlobalState) OrderProof(accountID, pos uint32) MerkleProof {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderTrees[accountID].GetProof(pos)
}

// AccountProof returns a non-destructive witness of account accountID's
// leaf in the account tree (spec §4.D `account_proof`).
func (s *GlobalState) AccountProof(accountID uint32) MerkleProof {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountTree.GetProof(accountID)
}

// StateProofFor bundles a balance+account proof for (accountID,
// tokenID), matching original_source's `state_proof`. Used by the
// witness generator to capture both "before" and "after" snapshots
// around a single state mutation.
func (s *GlobalState) StateProofFor(accountID, tokenID uint32) StateProof {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balanceProof := s.balanceTrees[accountID].GetProof(tokenID)
	orderRoot := s.orderTrees[accountID].Root()
	accountProof := s.accountTree.GetProof(accountID)
	return StateProof{
		Leaf:        balanceProof.Leaf,
		Root:        accountProof.Root,
		BalanceRoot: balanceProof.Root,
		OrderRoot:   orderRoot,
		BalancePath: balanceProof.PathElements,
		AccountPath: accountProof.PathElements,
	}
}

// BatchUpdate applies every listed account's balance and order writes,
// refreshing each account's leaf in the account tree exactly once
// (spec §4.D `batch_update`). When parallel is true, independent
// accounts' balance/order sub-trees are mutated concurrently (each
// account already owns its own tree instance); the resulting account
// states are then written into the shared s.accounts map and the
// account tree is refreshed in a serialized section, since a Go map
// is not safe for concurrent read+write even across disjoint keys.
func (s *GlobalState) BatchUpdate(updates []AccountUpdate, parallel bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accs := make([]AccountState, len(updates))
	hashes := make([]types.F, len(updates))
	apply := func(i int) {
		u := updates[i]
		bt := s.balanceTrees[u.AccountID]
		for _, b := range u.Balances {
			bt.SetValue(b.TokenID, b.Value)
		}
		ot := s.orderTrees[u.AccountID]
		for _, o := range u.Orders {
			s.installOrder(u.AccountID, o.Pos, o.Order)
		}
		acc := s.accounts[u.AccountID]
		acc.BalanceRoot = bt.Root()
		acc.OrderRoot = ot.Root()
		if u.NewNonce != nil {
			acc.Nonce = *u.NewNonce
		}
		accs[i] = acc
		hashes[i] = acc.Hash()
	}

	if parallel && len(updates) > 1 {
		var wg sync.WaitGroup
		for i := range updates {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				apply(i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range updates {
			apply(i)
		}
	}

	for i, u := range updates {
		s.accounts[u.AccountID] = accs[i]
	}

	leafUpdates := make([]leafUpdate, len(updates))
	for i, u := range updates {
		leafUpdates[i] = leafUpdate{idx: u.AccountID, value: hashes[i]}
	}
	if parallel {
		s.accountTree.SetValueParallel(leafUpdates, runtime.NumCPU())
	} else {
		for _, lu := range leafUpdates {
			s.accountTree.SetValue(lu.idx, lu.value)
		}
	}
}
