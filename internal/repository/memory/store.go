// Package memory provides an in-process repository.Store used for local development
// without Postgres and as the test double for the service layer.
//
// Transactions are serialized by a single mutex and rolled back by restoring a snapshot,
// so the store behaves like a SERIALIZABLE database for writers. Reads outside InTx may
// observe writes of a transaction that is still running.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/ticketid"
)

type counterKey struct {
	year int
	code string
}

type dataset struct {
	tickets   map[string]domain.Ticket
	responses map[int64]domain.Response
	replies   map[int64]domain.Reply
	history   []domain.TicketHistory
	counters  map[counterKey]int64
	users     map[int64]domain.User

	nextResponseID int64
	nextReplyID    int64
	nextHistoryID  int64
}

func newDataset() *dataset {
	return &dataset{
		tickets:   map[string]domain.Ticket{},
		responses: map[int64]domain.Response{},
		replies:   map[int64]domain.Reply{},
		counters:  map[counterKey]int64{},
		users:     map[int64]domain.User{},
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, v := range d.tickets {
		c.tickets[k] = cloneTicket(v)
	}
	for k, v := range d.responses {
		c.responses[k] = v
	}
	for k, v := range d.replies {
		c.replies[k] = v
	}
	c.history = append([]domain.TicketHistory(nil), d.history...)
	for k, v := range d.counters {
		c.counters[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	c.nextResponseID = d.nextResponseID
	c.nextReplyID = d.nextReplyID
	c.nextHistoryID = d.nextHistoryID
	return c
}

// Store is the in-memory repository.Store.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *dataset
	now  func() time.Time
}

var _ repository.Store = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: newDataset(), now: func() time.Time { return time.Now().UTC() }}
}

// SeedUser inserts or replaces an identity record.
func (s *Store) SeedUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	s.data.users[user.ID] = user
}

func (s *Store) Tickets() repository.TicketRepository        { return ticketRepo{s} }
func (s *Store) Threads() repository.ThreadRepository        { return threadRepo{s} }
func (s *Store) History() repository.TicketHistoryRepository { return historyRepo{s} }
func (s *Store) Counters() repository.CounterRepository      { return counterRepo{s} }
func (s *Store) Users() repository.UserRepository            { return userRepo{s} }

// InTx runs fn while holding the transaction lock and restores the pre-transaction state if fn fails.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Store) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()
	return fn(txStore{s})
}

func (s *Store) restore(snapshot *dataset) {
	s.mu.Lock()
	s.data = snapshot
	s.mu.Unlock()
}

type txStore struct {
	*Store
}

func (t txStore) InTx(_ context.Context, fn func(tx repository.Store) error) error {
	return fn(t)
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	t.Attachment = clonePtr(t.Attachment)
	t.AssignedTo = clonePtr(t.AssignedTo)
	t.UpdatedBy = clonePtr(t.UpdatedBy)
	t.ClosedAt = clonePtr(t.ClosedAt)
	t.AssignedToName = nil
	t.CreatedByName = ""
	t.Responses = nil
	return t
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

type ticketRepo struct{ s *Store }

func (r ticketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.data.tickets[ticket.ID]; exists {
		return fmt.Errorf("%w: tickets_pkey", repository.ErrDuplicateKey)
	}
	if _, ok := r.s.data.users[ticket.CreatedBy]; !ok {
		return fmt.Errorf("%w: tickets_created_by_fkey", repository.ErrNotFound)
	}
	now := r.s.now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	r.s.data.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r ticketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.data.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if ticket.AssignedTo != nil {
		if _, ok := r.s.data.users[*ticket.AssignedTo]; !ok {
			return fmt.Errorf("%w: tickets_assigned_to_fkey", repository.ErrNotFound)
		}
	}
	stored.Status = ticket.Status
	stored.LastAction = ticket.LastAction
	stored.AssignedTo = clonePtr(ticket.AssignedTo)
	stored.UpdatedBy = clonePtr(ticket.UpdatedBy)
	stored.ClosedAt = clonePtr(ticket.ClosedAt)
	stored.UpdatedAt = r.s.now()
	ticket.UpdatedAt = stored.UpdatedAt
	r.s.data.tickets[ticket.ID] = stored
	return nil
}

func (r ticketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	stored, ok := r.s.data.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	ticket := r.project(stored)
	return &ticket, nil
}

// GetForUpdate needs no extra locking: writers already hold the transaction mutex.
func (r ticketRepo) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r ticketRepo) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	statuses := map[domain.TicketStatus]bool{}
	for _, st := range filter.Statuses {
		statuses[st] = true
	}
	var result []domain.Ticket
	for _, stored := range r.s.data.tickets {
		if filter.CreatedBy != nil && stored.CreatedBy != *filter.CreatedBy {
			continue
		}
		if filter.AssignedToOrUnassigned != nil && stored.AssignedTo != nil && *stored.AssignedTo != *filter.AssignedToOrUnassigned {
			continue
		}
		if len(statuses) > 0 && !statuses[stored.Status] {
			continue
		}
		result = append(result, r.project(stored))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

func (r ticketRepo) StatsForCreator(ctx context.Context, userID int64) (domain.TicketStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var stats domain.TicketStats
	for _, t := range r.s.data.tickets {
		if t.CreatedBy != userID {
			continue
		}
		stats.Created++
		switch t.Status {
		case domain.TicketStatusResolved:
			stats.Resolved++
		case domain.TicketStatusYetToOpen:
			stats.Pending++
		}
	}
	return stats, nil
}

func (r ticketRepo) project(stored domain.Ticket) domain.Ticket {
	ticket := cloneTicket(stored)
	ticket.CreatedByName = r.s.data.users[stored.CreatedBy].Username
	if stored.AssignedTo != nil {
		if u, ok := r.s.data.users[*stored.AssignedTo]; ok {
			name := u.Username
			ticket.AssignedToName = &name
		}
	}
	return ticket
}

type threadRepo struct{ s *Store }

func (r threadRepo) CreateResponse(ctx context.Context, response *domain.Response) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.tickets[response.TicketID]; !ok {
		return fmt.Errorf("%w: responses_ticket_id_fkey", repository.ErrNotFound)
	}
	r.s.data.nextResponseID++
	now := r.s.now()
	response.ID = r.s.data.nextResponseID
	response.CreatedAt = now
	response.UpdatedAt = now
	response.ResponderName = r.s.data.users[response.Responder].Username
	stored := *response
	stored.Replies = nil
	r.s.data.responses[stored.ID] = stored
	return nil
}

func (r threadRepo) CreateReply(ctx context.Context, reply *domain.Reply) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.responses[reply.ResponseID]; !ok {
		return fmt.Errorf("%w: replies_response_id_fkey", repository.ErrNotFound)
	}
	r.s.data.nextReplyID++
	reply.ID = r.s.data.nextReplyID
	reply.CreatedAt = r.s.now()
	reply.Username = r.s.data.users[reply.UserID].Username
	r.s.data.replies[reply.ID] = *reply
	return nil
}

func (r threadRepo) GetResponse(ctx context.Context, responseID int64) (*domain.Response, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	response, ok := r.s.data.responses[responseID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &response, nil
}

func (r threadRepo) ListResponses(ctx context.Context, ticketIDs []string) ([]domain.Response, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	wanted := make(map[string]bool, len(ticketIDs))
	for _, id := range ticketIDs {
		wanted[id] = true
	}
	var result []domain.Response
	for _, response := range r.s.data.responses {
		if wanted[response.TicketID] {
			result = append(result, response)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r threadRepo) ListReplies(ctx context.Context, responseIDs []int64) ([]domain.Reply, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	wanted := make(map[int64]bool, len(responseIDs))
	for _, id := range responseIDs {
		wanted[id] = true
	}
	var result []domain.Reply
	for _, reply := range r.s.data.replies {
		if wanted[reply.ResponseID] {
			result = append(result, reply)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

type historyRepo struct{ s *Store }

func (r historyRepo) Create(ctx context.Context, history *domain.TicketHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.nextHistoryID++
	history.ID = r.s.data.nextHistoryID
	history.CreatedAt = r.s.now()
	r.s.data.history = append(r.s.data.history, *history)
	return nil
}

func (r historyRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.TicketHistory
	for _, entry := range r.s.data.history {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type counterRepo struct{ s *Store }

func (r counterRepo) Increment(ctx context.Context, year int, code string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := counterKey{year: year, code: code}
	r.s.data.counters[key]++
	return r.s.data.counters[key], nil
}

func (r counterRepo) Resync(ctx context.Context, year int, code string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := counterKey{year: year, code: code}
	highest := r.s.data.counters[key]
	for id := range r.s.data.tickets {
		y, c, serial, err := ticketid.Parse(id)
		if err != nil || y != year || c != code {
			continue
		}
		if serial > highest {
			highest = serial
		}
	}
	r.s.data.counters[key] = highest
	return highest, nil
}

type userRepo struct{ s *Store }

func (r userRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	user, ok := r.s.data.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}
