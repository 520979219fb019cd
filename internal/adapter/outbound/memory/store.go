// Package memory provides in-process implementations of the outbound
// database ports. Transactions are serialised with a mutex and rolled back by
// restoring a snapshot, so row locks are implied by holding the transaction.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/portraitlab/server/internal/model"
	"github.com/portraitlab/server/internal/port/outbound"
)

type txKeyType struct{}

var txKey = txKeyType{}

// state is the full dataset. It is copied wholesale for rollback.
type state struct {
	users     map[uuid.UUID]model.User
	plans     map[string]model.Plan
	subs      map[uuid.UUID]model.Subscription
	trainings map[uuid.UUID]model.TrainingRecord
	uploads   map[uuid.UUID]model.UploadedImage
	generated []model.GeneratedImage
	processed map[string]time.Time
}

func newState() *state {
	return &state{
		users:     make(map[uuid.UUID]model.User),
		plans:     make(map[string]model.Plan),
		subs:      make(map[uuid.UUID]model.Subscription),
		trainings: make(map[uuid.UUID]model.TrainingRecord),
		uploads:   make(map[uuid.UUID]model.UploadedImage),
		processed: make(map[string]time.Time),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.plans {
		c.plans[k] = v
	}
	for k, v := range s.subs {
		c.subs[k] = v
	}
	for k, v := range s.trainings {
		c.trainings[k] = v
	}
	for k, v := range s.uploads {
		c.uploads[k] = v
	}
	c.generated = append(c.generated, s.generated...)
	for k, v := range s.processed {
		c.processed[k] = v
	}
	return c
}

// Store is an in-memory database shared by all memory adapters.
type Store struct {
	mu     sync.Mutex
	data   *state
	faults map[string][]error
	now    func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		data:   newState(),
		faults: make(map[string][]error),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// InjectFault makes the next call of op fail with err. Faults queue per op.
// Known ops: users.lock, users.update, subscriptions.lock,
// subscriptions.update, trainings.create, trainings.transition,
// uploads.lock, uploads.attach, generated.create, tx.commit.
func (s *Store) InjectFault(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], err)
}

// fault pops the next injected error for op. Caller holds mu.
func (s *Store) fault(op string) error {
	queue := s.faults[op]
	if len(queue) == 0 {
		return nil
	}
	s.faults[op] = queue[1:]
	return queue[0]
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey).(*Store)
	return ok && owner == s
}

// view runs fn against the dataset, joining the caller's transaction if any.
func (s *Store) view(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.inTx(ctx) {
		return fn(s.data)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

// RunInTransaction implements outbound.TransactionPort.
func (s *Store) RunInTransaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	txCtx := context.WithValue(ctx, txKey, s)
	err := fn(txCtx)
	if err == nil {
		err = s.fault("tx.commit")
	}
	if err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// --- Seeding helpers ---

// PutUser inserts or replaces a user.
func (s *Store) PutUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	s.data.users[u.ID] = *u
}

// PutPlan inserts or replaces a plan.
func (s *Store) PutPlan(p *model.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.plans[p.ID] = *p
}

// PutSubscription inserts or replaces a subscription.
func (s *Store) PutSubscription(sub *model.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	stored := *sub
	stored.Plan = nil
	s.data.subs[sub.ID] = stored
}

// PutUploadedImage inserts or replaces an uploaded image.
func (s *Store) PutUploadedImage(img *model.UploadedImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	s.data.uploads[img.ID] = *img
}

// Compile-time check
var _ outbound.TransactionPort = (*Store)(nil)
