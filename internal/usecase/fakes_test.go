package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/zinrai/fabric-portal/internal/domain"
)

// memStore is an in-memory relational store. Units of work opened on it keep
// an undo log so rollback restores what they changed.
type memStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
	keys  map[string]*domain.SSHKey
	vlans map[string]map[int]*domain.VlanReservation
	seq   int

	// beforeVlanInsert runs ahead of every reservation insert.
	beforeVlanInsert func(ownerUUID string, vlanID int)
	commits          int
	rollbacks        int
}

func newMemStore() *memStore {
	return &memStore{
		users: make(map[string]*domain.User),
		keys:  make(map[string]*domain.SSHKey),
		vlans: make(map[string]map[int]*domain.VlanReservation),
	}
}

func (s *memStore) factory() domain.UnitOfWorkFactory {
	return func(ctx context.Context) domain.UnitOfWork {
		return &memUnitOfWork{store: s}
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *memStore) addUser(id, ownerUUID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = &domain.User{ID: id, Username: id, Email: id + "@example.com", OwnerUUID: ownerUUID}
}

func (s *memStore) reserve(ownerUUID string, vlanID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertVlan(ownerUUID, vlanID)
}

func (s *memStore) insertVlan(ownerUUID string, vlanID int) *domain.VlanReservation {
	if s.vlans[ownerUUID] == nil {
		s.vlans[ownerUUID] = make(map[int]*domain.VlanReservation)
	}
	r := &domain.VlanReservation{ID: s.nextID("vlan"), OwnerUUID: ownerUUID, VlanID: vlanID, CreatedAt: time.Now()}
	s.vlans[ownerUUID][vlanID] = r
	return r
}

func (s *memStore) reservedIDs(ownerUUID string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int
	for id := range s.vlans[ownerUUID] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

type memUnitOfWork struct {
	store  *memStore
	inTx   bool
	undo   []func()
	closed bool
}

func (u *memUnitOfWork) BeginTransaction(ctx context.Context) error {
	if u.closed || u.inTx {
		return domain.ErrInvalidState
	}
	u.inTx = true
	return nil
}

func (u *memUnitOfWork) CommitTransaction() error {
	if !u.inTx {
		return domain.ErrInvalidState
	}
	u.inTx = false
	u.undo = nil
	u.store.mu.Lock()
	u.store.commits++
	u.store.mu.Unlock()
	return nil
}

func (u *memUnitOfWork) RollbackTransaction() error {
	if !u.inTx {
		return domain.ErrInvalidState
	}
	u.inTx = false
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	for i := len(u.undo) - 1; i >= 0; i-- {
		u.undo[i]()
	}
	u.undo = nil
	u.store.rollbacks++
	return nil
}

func (u *memUnitOfWork) InTransaction() bool { return u.inTx }

func (u *memUnitOfWork) Close() error {
	if u.closed {
		return nil
	}
	var err error
	if u.inTx {
		err = u.RollbackTransaction()
	}
	u.closed = true
	return err
}

func (u *memUnitOfWork) Users() domain.UserRepository     { return memUsers{u} }
func (u *memUnitOfWork) SSHKeys() domain.SSHKeyRepository { return memKeys{u} }
func (u *memUnitOfWork) VlanIDs() domain.VlanRepository   { return memVlans{u} }

// record registers an undo step. Called with the store lock held.
func (u *memUnitOfWork) record(fn func()) {
	if u.inTx {
		u.undo = append(u.undo, fn)
	}
}

// fail mirrors the session: a failed write rolls back the open transaction.
func (u *memUnitOfWork) fail(err error) error {
	if u.inTx {
		u.store.mu.Unlock()
		_ = u.RollbackTransaction()
		u.store.mu.Lock()
	}
	return err
}

type memUsers struct{ u *memUnitOfWork }

func (r memUsers) List(ctx context.Context) ([]*domain.User, error) {
	r.u.store.mu.Lock()
	defer r.u.store.mu.Unlock()
	var users []*domain.User
	for _, user := range r.u.store.users {
		copied := *user
		users = append(users, &copied)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (r memUsers) find(match func(*domain.User) bool) (*domain.User, error) {
	r.u.store.mu.Lock()
	defer r.u.store.mu.Unlock()
	for _, user := range r.u.store.users {
		if match(user) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, errors.Wrap(domain.ErrNotFound, "user")
}

func (r memUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.ID == id })
}

func (r memUsers) GetByOwnerUUID(ctx context.Context, ownerUUID string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.OwnerUUID != "" && u.OwnerUUID == ownerUUID })
}

func (r memUsers) Create(ctx context.Context, user *domain.User) error {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == user.Username {
			return r.u.fail(errors.Wrap(domain.ErrConflict, "username taken"))
		}
	}
	user.ID = s.nextID("user")
	copied := *user
	s.users[user.ID] = &copied
	id := user.ID
	r.u.record(func() { delete(s.users, id) })
	return nil
}

func (r memUsers) Update(ctx context.Context, user *domain.User) error {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.users[user.ID]
	if !ok {
		return domain.ErrNotFound
	}
	copied := *user
	copied.Password = prev.Password
	s.users[user.ID] = &copied
	r.u.record(func() { s.users[prev.ID] = prev })
	return nil
}

func (r memUsers) UpdatePassword(ctx context.Context, id, hash string) error {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	copied := *prev
	copied.Password = hash
	s.users[id] = &copied
	r.u.record(func() { s.users[id] = prev })
	return nil
}

func (r memUsers) Delete(ctx context.Context, id string) error {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(s.users, id)
	r.u.record(func() { s.users[id] = prev })
	return nil
}

type memKeys struct{ u *memUnitOfWork }

func (r memKeys) ListByUser(ctx context.Context, userID string) ([]*domain.SSHKey, error) {
	r.u.store.mu.Lock()
	defer r.u.store.mu.Unlock()
	var keys []*domain.SSHKey
	for _, k := range r.u.store.keys {
		if k.UserID == userID {
			copied := *k
			keys = append(keys, &copied)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })
	return keys, nil
}

func (r memKeys) Create(ctx context.Context, key *domain.SSHKey) error {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	key.ID = s.nextID("key")
	copied := *key
	s.keys[key.ID] = &copied
	id := key.ID
	r.u.record(func() { delete(s.keys, id) })
	return nil
}

func (r memKeys) Delete(ctx context.Context, userID, id string) error {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.keys[id]
	if !ok || prev.UserID != userID {
		return domain.ErrNotFound
	}
	delete(s.keys, id)
	r.u.record(func() { s.keys[id] = prev })
	return nil
}

func (r memKeys) DeleteByUser(ctx context.Context, userID string) error {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, k := range s.keys {
		if k.UserID == userID {
			prev := k
			delete(s.keys, id)
			r.u.record(func() { s.keys[prev.ID] = prev })
		}
	}
	return nil
}

type memVlans struct{ u *memUnitOfWork }

func (r memVlans) ListByOwner(ctx context.Context, ownerUUID string) ([]*domain.VlanReservation, error) {
	r.u.store.mu.Lock()
	defer r.u.store.mu.Unlock()
	var out []*domain.VlanReservation
	for _, v := range r.u.store.vlans[ownerUUID] {
		copied := *v
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VlanID < out[j].VlanID })
	return out, nil
}

func (r memVlans) Create(ctx context.Context, ownerUUID string, vlanID int) (*domain.VlanReservation, error) {
	s := r.u.store
	if hook := s.beforeVlanInsert; hook != nil {
		hook(ownerUUID, vlanID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.vlans[ownerUUID][vlanID]; taken {
		return nil, r.u.fail(errors.Wrap(domain.ErrConflict, "duplicate reservation"))
	}
	res := s.insertVlan(ownerUUID, vlanID)
	r.u.record(func() { delete(s.vlans[ownerUUID], vlanID) })
	copied := *res
	return &copied, nil
}

func (r memVlans) Delete(ctx context.Context, ownerUUID string, vlanID int) error {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.vlans[ownerUUID][vlanID]
	if !ok {
		return errors.Wrap(domain.ErrNotFound, "reservation")
	}
	delete(s.vlans[ownerUUID], vlanID)
	r.u.record(func() { s.vlans[ownerUUID][vlanID] = prev })
	return nil
}

// fakeNetwork is a fabric network service holding VLANs per owner.
type fakeNetwork struct {
	mu        sync.Mutex
	vlans     map[string]map[int]domain.FabricVlan
	networks  []domain.Network
	createErr func(vlan domain.FabricVlan) error
	deleteErr error
	listErr   error
	calls     []string
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{vlans: make(map[string]map[int]domain.FabricVlan)}
}

func (n *fakeNetwork) add(ownerUUID string, ids ...int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, id := range ids {
		if n.vlans[ownerUUID] == nil {
			n.vlans[ownerUUID] = make(map[int]domain.FabricVlan)
		}
		n.vlans[ownerUUID][id] = domain.FabricVlan{VlanID: id, OwnerUUID: ownerUUID, Name: fmt.Sprintf("vlan-%d", id)}
	}
}

func (n *fakeNetwork) ids(ownerUUID string) []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	var ids []int
	for id := range n.vlans[ownerUUID] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (n *fakeNetwork) ListNetworks(ctx context.Context, ownerUUID string) ([]domain.Network, error) {
	return n.networks, n.listErr
}

func (n *fakeNetwork) ListVlans(ctx context.Context, ownerUUID string) ([]domain.FabricVlan, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, "list")
	if n.listErr != nil {
		return nil, n.listErr
	}
	var out []domain.FabricVlan
	for _, v := range n.vlans[ownerUUID] {
		out = append(out, v)
	}
	return out, nil
}

func (n *fakeNetwork) CreateVlan(ctx context.Context, vlan domain.FabricVlan) (*domain.FabricVlan, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, fmt.Sprintf("create %d", vlan.VlanID))
	if n.createErr != nil {
		if err := n.createErr(vlan); err != nil {
			return nil, err
		}
	}
	if _, exists := n.vlans[vlan.OwnerUUID][vlan.VlanID]; exists {
		return nil, errors.Wrap(domain.ErrConflict, "vlan exists")
	}
	if n.vlans[vlan.OwnerUUID] == nil {
		n.vlans[vlan.OwnerUUID] = make(map[int]domain.FabricVlan)
	}
	n.vlans[vlan.OwnerUUID][vlan.VlanID] = vlan
	return &vlan, nil
}

func (n *fakeNetwork) DeleteVlan(ctx context.Context, ownerUUID string, vlanID int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, fmt.Sprintf("delete %d", vlanID))
	if n.deleteErr != nil {
		return n.deleteErr
	}
	if _, ok := n.vlans[ownerUUID][vlanID]; !ok {
		return errors.Wrap(domain.ErrNotFound, "vlan")
	}
	delete(n.vlans[ownerUUID], vlanID)
	return nil
}

// createdRuleUUID is the uuid the fake firewall gives its nth created rule.
func createdRuleUUID(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}

// fakeFirewall is a fabric firewall service. fail is keyed by "create:<rule
// text>", "update:<uuid>" or "delete:<uuid>".
type fakeFirewall struct {
	mu     sync.Mutex
	rules  map[string]domain.RemoteRule
	global []domain.RemoteRule
	byVM   map[string][]domain.RemoteRule
	fail   map[string]error
	seq    int
	calls  []string
}

func newFakeFirewall(rules ...domain.RemoteRule) *fakeFirewall {
	f := &fakeFirewall{rules: make(map[string]domain.RemoteRule), fail: make(map[string]error), byVM: make(map[string][]domain.RemoteRule)}
	for _, r := range rules {
		f.rules[r.UUID] = r
	}
	return f
}

func (f *fakeFirewall) ListRulesByOwner(ctx context.Context, ownerUUID string) ([]domain.RemoteRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["list"]; err != nil {
		return nil, err
	}
	var out []domain.RemoteRule
	for _, r := range f.rules {
		if r.OwnerUUID == ownerUUID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out, nil
}

func (f *fakeFirewall) ListRulesByVM(ctx context.Context, vmUUID string) ([]domain.RemoteRule, error) {
	return f.byVM[vmUUID], nil
}

func (f *fakeFirewall) ListGlobalRules(ctx context.Context) ([]domain.RemoteRule, error) {
	return f.global, nil
}

func (f *fakeFirewall) CreateRule(ctx context.Context, rule domain.DesiredRule) (*domain.RemoteRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create "+rule.Rule)
	if err := f.fail["create:"+rule.Rule]; err != nil {
		return nil, err
	}
	f.seq++
	remote := domain.RemoteRule{UUID: createdRuleUUID(f.seq), Rule: rule.Rule, Enabled: rule.Enabled, OwnerUUID: rule.OwnerUUID}
	if rule.UUID != "" {
		remote.UUID = rule.UUID
	}
	f.rules[remote.UUID] = remote
	return &remote, nil
}

func (f *fakeFirewall) UpdateRule(ctx context.Context, rule domain.DesiredRule) (*domain.RemoteRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "update "+rule.UUID)
	if err := f.fail["update:"+rule.UUID]; err != nil {
		return nil, err
	}
	remote := domain.RemoteRule{UUID: rule.UUID, Rule: rule.Rule, Enabled: rule.Enabled, OwnerUUID: rule.OwnerUUID}
	f.rules[rule.UUID] = remote
	return &remote, nil
}

func (f *fakeFirewall) DeleteRule(ctx context.Context, uuid, ownerUUID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete "+uuid)
	if err := f.fail["delete:"+uuid]; err != nil {
		return err
	}
	delete(f.rules, uuid)
	return nil
}

// fakeVMs is a fabric VM service. Every NIC mutation is appended to a shared
// log alongside the job waits so tests can check ordering.
type fakeVMs struct {
	mu   sync.Mutex
	vms  map[string]*domain.VM
	fail map[string]error
	log  *[]string
	seq  int
	macs int
}

func newFakeVMs(log *[]string, vms ...domain.VM) *fakeVMs {
	f := &fakeVMs{vms: make(map[string]*domain.VM), fail: make(map[string]error), log: log}
	for i := range vms {
		vm := vms[i]
		f.vms[vm.UUID] = &vm
	}
	return f
}

func (f *fakeVMs) job(op string) (*domain.JobRef, error) {
	f.seq++
	*f.log = append(*f.log, op)
	if err := f.fail[op]; err != nil {
		return nil, err
	}
	return &domain.JobRef{JobUUID: fmt.Sprintf("job-%d", f.seq)}, nil
}

func (f *fakeVMs) ListVMs(ctx context.Context, ownerUUID string) ([]domain.VM, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.VM
	for _, vm := range f.vms {
		if vm.OwnerUUID == ownerUUID {
			out = append(out, *vm)
		}
	}
	return out, nil
}

func (f *fakeVMs) GetVM(ctx context.Context, uuid string) (*domain.VM, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vm, ok := f.vms[uuid]
	if !ok {
		return nil, errors.Wrap(domain.ErrNotFound, "vm")
	}
	copied := *vm
	copied.Nics = append([]domain.RemoteNic(nil), vm.Nics...)
	return &copied, nil
}

func (f *fakeVMs) AddNics(ctx context.Context, vmUUID string, nics []domain.NicSpec) (*domain.JobRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, err := f.job("add")
	if err != nil {
		return nil, err
	}
	vm := f.vms[vmUUID]
	for _, n := range nics {
		f.macs++
		mac := fmt.Sprintf("90:b8:d0:00:00:%02x", f.macs)
		vm.Nics = append(vm.Nics, domain.RemoteNic{MAC: mac, NetworkUUID: n.NetworkUUID, Primary: n.Primary})
	}
	return job, nil
}

func (f *fakeVMs) UpdateNics(ctx context.Context, vmUUID string, nics []domain.NicUpdate) (*domain.JobRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, err := f.job("update")
	if err != nil {
		return nil, err
	}
	vm := f.vms[vmUUID]
	for _, u := range nics {
		for i := range vm.Nics {
			if vm.Nics[i].MAC == u.MAC {
				vm.Nics[i].Primary = u.Primary
			}
		}
	}
	return job, nil
}

func (f *fakeVMs) RemoveNics(ctx context.Context, vmUUID string, macs []string) (*domain.JobRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, err := f.job("remove")
	if err != nil {
		return nil, err
	}
	vm := f.vms[vmUUID]
	drop := make(map[string]bool, len(macs))
	for _, m := range macs {
		drop[m] = true
	}
	kept := vm.Nics[:0]
	for _, n := range vm.Nics {
		if !drop[n.MAC] {
			kept = append(kept, n)
		}
	}
	vm.Nics = kept
	return job, nil
}

type fakeJobs struct {
	log  *[]string
	fail map[string]error
}

func (j *fakeJobs) WaitJob(ctx context.Context, jobUUID string) error {
	*j.log = append(*j.log, "wait "+jobUUID)
	return j.fail[jobUUID]
}
