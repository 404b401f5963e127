// Package memory provides in-process repository implementations used in development mode
// (no POSTGRES_DSN) and as fakes in tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/repository"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util/errorutil"
)

var (
	_ repository.TicketRepository        = (*Tickets)(nil)
	_ repository.UserRepository          = (*Users)(nil)
	_ repository.TicketHistoryRepository = (*History)(nil)
	_ repository.SLAPolicyRepository     = (*Policies)(nil)
	_ repository.MailSettingsRepository  = (*MailSettings)(nil)
	_ repository.ProblemTypeRepository   = (*ProblemTypes)(nil)
)

// Tickets is an in-memory TicketRepository.
type Tickets struct {
	mu      sync.RWMutex
	tickets map[string]*domain.Ticket
	now     func() time.Time
}

// NewTickets returns an empty ticket store.
func NewTickets() *Tickets {
	return &Tickets{tickets: map[string]*domain.Ticket{}, now: time.Now}
}

func (r *Tickets) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	now := r.now().UTC()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now
	ticket.NormalizeTimes()
	r.tickets[ticket.ID] = copyTicket(ticket)
	return nil
}

func (r *Tickets) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"id": ticket.ID})
	}
	flags := stored.SLA
	ticket.UpdatedAt = r.now().UTC()
	ticket.NormalizeTimes()
	updated := copyTicket(ticket)
	updated.SLA = copyFlags(flags)
	updated.CreatedAt = stored.CreatedAt
	r.tickets[ticket.ID] = updated
	return nil
}

func (r *Tickets) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}
	return copyTicket(stored), nil
}

func (r *Tickets) ListByStatuses(ctx context.Context, statuses []domain.TicketStatus) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[domain.TicketStatus]struct{}, len(statuses))
	for _, s := range statuses {
		wanted[s] = struct{}{}
	}
	result := []domain.Ticket{}
	for _, t := range r.tickets {
		if _, ok := wanted[t.Status]; ok {
			result = append(result, *copyTicket(t))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *Tickets) UpdateSLAFlags(ctx context.Context, ticketID string, prev, next domain.SLAFlags) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[ticketID]
	if !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
	}
	if !stored.SLA.Equal(prev) {
		return repository.ErrStaleSLAFlags
	}
	stored.SLA = copyFlags(next)
	return nil
}

// All returns every stored ticket, oldest first.
func (r *Tickets) All() []domain.Ticket {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Ticket, 0, len(r.tickets))
	for _, t := range r.tickets {
		result = append(result, *copyTicket(t))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Users is an in-memory UserRepository.
type Users struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

// NewUsers returns a user store seeded with users.
func NewUsers(users ...domain.User) *Users {
	r := &Users{users: map[string]*domain.User{}}
	for i := range users {
		u := users[i]
		_ = r.Create(context.Background(), &u)
	}
	return r
}

func (r *Users) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *Users) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.NewNotFound("user", map[string]any{"id": id})
	}
	out := *u
	return &out, nil
}

func (r *Users) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	email = strings.TrimSpace(email)
	for _, u := range r.users {
		if u.Email != "" && strings.EqualFold(u.Email, email) {
			out := *u
			return &out, nil
		}
	}
	return nil, apperrors.NewNotFound("user", map[string]any{"email": email})
}

func (r *Users) ListActiveByRoles(ctx context.Context, roles []domain.Role) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []domain.User{}
	for _, u := range r.users {
		if !u.Active {
			continue
		}
		for _, role := range roles {
			if u.Role == role {
				result = append(result, *u)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

// History is an in-memory TicketHistoryRepository.
type History struct {
	mu      sync.RWMutex
	entries []domain.TicketHistory
}

// NewHistory returns an empty audit store.
func NewHistory() *History {
	return &History{}
}

func (r *History) Create(ctx context.Context, history *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	if history.CreatedAt.IsZero() {
		history.CreatedAt = time.Now().UTC()
	}
	r.entries = append(r.entries, *history)
	return nil
}

func (r *History) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []domain.TicketHistory{}
	for _, e := range r.entries {
		if e.TicketID == ticketID {
			result = append(result, e)
		}
	}
	return result, nil
}

// Policies is a fixed SLAPolicyRepository.
type Policies struct {
	policies []domain.SLAPolicy
}

// NewPolicies returns a store holding policies.
func NewPolicies(policies ...domain.SLAPolicy) *Policies {
	return &Policies{policies: policies}
}

// DefaultPolicies mirrors the seed migration.
func DefaultPolicies() []domain.SLAPolicy {
	return []domain.SLAPolicy{
		{ID: "sla-high", Urgency: domain.UrgencyHigh, AssignmentTimeHours: 1, ResolutionTimeHours: 8},
		{ID: "sla-medium", Urgency: domain.UrgencyMedium, AssignmentTimeHours: 4, ResolutionTimeHours: 24},
		{ID: "sla-low", Urgency: domain.UrgencyLow, AssignmentTimeHours: 8, ResolutionTimeHours: 72},
	}
}

func (r *Policies) ListAll(ctx context.Context) ([]domain.SLAPolicy, error) {
	out := make([]domain.SLAPolicy, len(r.policies))
	copy(out, r.policies)
	return out, nil
}

// MailSettings is a single-row MailSettingsRepository.
type MailSettings struct {
	mu       sync.RWMutex
	settings *domain.MailSettings
}

// NewMailSettings returns a store holding settings, or nothing when nil.
func NewMailSettings(settings *domain.MailSettings) *MailSettings {
	return &MailSettings{settings: settings}
}

func (r *MailSettings) Get(ctx context.Context) (*domain.MailSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.settings == nil {
		return nil, apperrors.NewNotFound("mail settings", nil)
	}
	out := *r.settings
	return &out, nil
}

// Set replaces the stored settings.
func (r *MailSettings) Set(settings *domain.MailSettings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = settings
}

// ProblemTypes is a fixed ProblemTypeRepository.
type ProblemTypes struct {
	types []domain.ProblemType
}

// NewProblemTypes returns a catalogue holding types.
func NewProblemTypes(types ...domain.ProblemType) *ProblemTypes {
	return &ProblemTypes{types: types}
}

// DefaultProblemTypes mirrors the seed migration.
func DefaultProblemTypes() []domain.ProblemType {
	return []domain.ProblemType{
		{ID: "pt-hardware", Name: "Hardware", Description: "Workstations, printers and peripherals", IsActive: true},
		{ID: "pt-software", Name: "Software", Description: "Installed applications and licences", IsActive: true},
		{ID: "pt-network", Name: "Network", Description: "Connectivity, VPN and Wi-Fi", IsActive: true},
		{ID: "pt-access", Name: "Access", Description: "Accounts, passwords and permissions", IsActive: true},
	}
}

func (r *ProblemTypes) GetByID(ctx context.Context, id string) (*domain.ProblemType, error) {
	for _, pt := range r.types {
		if pt.ID == id {
			out := pt
			return &out, nil
		}
	}
	return nil, apperrors.NewNotFound("problem type", map[string]any{"id": id})
}

func (r *ProblemTypes) ListActive(ctx context.Context) ([]domain.ProblemType, error) {
	result := []domain.ProblemType{}
	for _, pt := range r.types {
		if pt.IsActive {
			result = append(result, pt)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func copyTicket(t *domain.Ticket) *domain.Ticket {
	out := *t
	if t.Urgency != nil {
		u := *t.Urgency
		out.Urgency = &u
	}
	if t.ProblemTypeID != nil {
		p := *t.ProblemTypeID
		out.ProblemTypeID = &p
	}
	if t.TechnicianID != nil {
		id := *t.TechnicianID
		out.TechnicianID = &id
	}
	out.AssignedAt = domain.UTCPtr(t.AssignedAt)
	out.ResolvedAt = domain.UTCPtr(t.ResolvedAt)
	out.SLA = copyFlags(t.SLA)
	return &out
}

func copyFlags(f domain.SLAFlags) domain.SLAFlags {
	out := domain.SLAFlags{ViolationSent: f.ViolationSent}
	if f.WarningLevel != nil {
		level := *f.WarningLevel
		out.WarningLevel = &level
	}
	return out
}
