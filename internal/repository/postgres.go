package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/fieldservice/internal/domain"
)

// PostgresStore persists the ticket aggregate in PostgreSQL. Transitions run
// inside a single transaction guarded by the ticket's version column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore builds the store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateTicket(ctx context.Context, ticket *domain.Ticket, audit domain.AuditEvent) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Races on the same tenant are caught by the unique (tenant_id, number)
	// constraint; callers may retry.
	const numberQuery = `
        SELECT COALESCE(MAX(number), 0) + 1 FROM tickets WHERE tenant_id=$1`
	if err := tx.QueryRow(ctx, numberQuery, ticket.TenantID).Scan(&ticket.Number); err != nil {
		return err
	}

	const insertQuery = `
        INSERT INTO tickets (id, tenant_id, number, kind, status, urgent, client_ref, summary, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)`
	if _, err := tx.Exec(ctx, insertQuery,
		ticket.ID,
		ticket.TenantID,
		ticket.Number,
		ticket.Kind,
		ticket.Status,
		ticket.Urgent,
		ticket.ClientRef,
		ticket.Summary,
		ticket.Version,
		ticket.CreatedAt,
	); err != nil {
		return err
	}

	if err := insertAuditEvent(ctx, tx, audit); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ApplyTransition(ctx context.Context, update TransitionUpdate) (*domain.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const lockQuery = `
        SELECT version FROM tickets WHERE tenant_id=$1 AND id=$2 FOR UPDATE`
	var version int64
	if err := tx.QueryRow(ctx, lockQuery, update.TenantID, update.TicketID).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	if version != update.ExpectedVersion {
		return nil, ErrVersionConflict
	}

	const updateQuery = `
        UPDATE tickets SET status=$1, kind=COALESCE($2, kind),
            linked_budget_id=COALESCE($3, linked_budget_id),
            version=version+1, updated_at=$4
        WHERE tenant_id=$5 AND id=$6`
	if _, err := tx.Exec(ctx, updateQuery,
		update.NewStatus,
		update.SetKind,
		update.LinkBudgetID,
		update.OccurredAt,
		update.TenantID,
		update.TicketID,
	); err != nil {
		return nil, err
	}

	if update.NewEntry != nil {
		if err := insertEntry(ctx, tx, update.NewEntry); err != nil {
			return nil, err
		}
	}
	if update.UpdateEntry != nil {
		const entryQuery = `
            UPDATE schedule_entries SET status=$1, outcome=$2, finalized_at=$3, scheduled_at=$4
            WHERE ticket_id=$5 AND id=$6`
		cmd, err := tx.Exec(ctx, entryQuery,
			update.UpdateEntry.Status,
			update.UpdateEntry.Outcome,
			update.UpdateEntry.FinalizedAt,
			update.UpdateEntry.ScheduledAt,
			update.TicketID,
			update.UpdateEntry.ID,
		)
		if err != nil {
			return nil, err
		}
		if cmd.RowsAffected() == 0 {
			return nil, ErrEntryNotFound
		}
	}
	// Resolve before insert so a transition replacing an open pendency of
	// the same kind does not trip the one-open-per-kind index.
	if update.ResolvePendencyID != nil {
		const pendencyQuery = `
            UPDATE pendencies SET resolved=TRUE, resolved_at=COALESCE(resolved_at, $1)
            WHERE ticket_id=$2 AND id=$3`
		cmd, err := tx.Exec(ctx, pendencyQuery, update.OccurredAt, update.TicketID, *update.ResolvePendencyID)
		if err != nil {
			return nil, err
		}
		if cmd.RowsAffected() == 0 {
			return nil, ErrPendencyNotFound
		}
	}
	if update.NewPendency != nil {
		if err := insertPendency(ctx, tx, update.NewPendency); err != nil {
			return nil, err
		}
	}
	if update.NewBudget != nil {
		if err := insertBudget(ctx, tx, update.NewBudget); err != nil {
			return nil, err
		}
	}
	if update.MirrorBudget != nil {
		const budgetQuery = `
            UPDATE budgets SET status=$1, status_set_at=$2 WHERE tenant_id=$3 AND id=$4`
		cmd, err := tx.Exec(ctx, budgetQuery,
			update.MirrorBudget.Status,
			update.OccurredAt,
			update.TenantID,
			update.MirrorBudget.BudgetID,
		)
		if err != nil {
			return nil, err
		}
		if cmd.RowsAffected() == 0 {
			return nil, ErrBudgetNotFound
		}
	}

	if err := insertAuditEvent(ctx, tx, update.Audit); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.GetTicket(ctx, update.TenantID, update.TicketID)
}

func insertEntry(ctx context.Context, tx pgx.Tx, entry *domain.ScheduleEntry) error {
	technicians, err := json.Marshal(entry.Technicians)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO schedule_entries (id, ticket_id, scheduled_at, technicians, activity_type_id, activity_name,
            observations, status, outcome, is_return_visit, origin_entry_id, public_token, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err = tx.Exec(ctx, query,
		entry.ID,
		entry.TicketID,
		entry.ScheduledAt,
		technicians,
		entry.ActivityTypeID,
		entry.ActivityName,
		entry.Observations,
		entry.Status,
		entry.Outcome,
		entry.IsReturnVisit,
		entry.OriginEntryID,
		entry.PublicToken,
		entry.CreatedAt,
	)
	return err
}

func insertPendency(ctx context.Context, tx pgx.Tx, pendency *domain.Pendency) error {
	var (
		finType         *domain.FinancialPendencyType
		description     string
		estimatedAmount *float64
		partsRemoved    bool
		partsLocation   string
		rejectionReason string
		instructions    string
	)
	switch pendency.Kind {
	case domain.PendencyKindTechnical:
		description = pendency.Technical.Description
	case domain.PendencyKindFinancial:
		finType = &pendency.Financial.Type
		description = pendency.Financial.Description
		estimatedAmount = pendency.Financial.EstimatedAmount
		partsRemoved = pendency.Financial.PartsRemoved
		partsLocation = pendency.Financial.PartsLocation
	case domain.PendencyKindReturn:
		rejectionReason = pendency.Return.RejectionReason
		instructions = pendency.Return.ReturnInstructions
		partsLocation = pendency.Return.PartsLocation
	}
	const query = `
        INSERT INTO pendencies (id, ticket_id, kind, financial_type, description, estimated_amount, parts_removed,
            parts_location, rejection_reason, return_instructions, origin_entry_id, resolved, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,FALSE,$12)`
	_, err := tx.Exec(ctx, query,
		pendency.ID,
		pendency.TicketID,
		pendency.Kind,
		finType,
		description,
		estimatedAmount,
		partsRemoved,
		partsLocation,
		rejectionReason,
		instructions,
		pendency.OriginEntryID,
		pendency.CreatedAt,
	)
	return err
}

func insertAuditEvent(ctx context.Context, tx pgx.Tx, event domain.AuditEvent) error {
	const query = `
        INSERT INTO audit_events (id, ticket_id, actor_id, actor_name, action, detail, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := tx.Exec(ctx, query,
		event.ID,
		event.TicketID,
		event.ActorID,
		event.ActorName,
		event.Action,
		event.Detail,
		event.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetTicket(ctx context.Context, tenantID, ticketID string) (*domain.Ticket, error) {
	const query = `
        SELECT id, tenant_id, number, kind, status, urgent, client_ref, summary, linked_budget_id, version, created_at, updated_at
        FROM tickets WHERE tenant_id=$1 AND id=$2`
	var ticket domain.Ticket
	if err := s.pool.QueryRow(ctx, query, tenantID, ticketID).Scan(
		&ticket.ID,
		&ticket.TenantID,
		&ticket.Number,
		&ticket.Kind,
		&ticket.Status,
		&ticket.Urgent,
		&ticket.ClientRef,
		&ticket.Summary,
		&ticket.LinkedBudgetID,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}

	var err error
	if ticket.Entries, err = s.listEntries(ctx, ticketID); err != nil {
		return nil, err
	}
	if ticket.Pendencies, err = s.listPendencies(ctx, ticketID); err != nil {
		return nil, err
	}
	if ticket.AuditTrail, err = s.listAuditEvents(ctx, ticketID); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (s *PostgresStore) ListTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT id, tenant_id, number, kind, status, urgent, client_ref, summary, linked_budget_id, version, created_at, updated_at
             FROM tickets`
	clauses := []string{"tenant_id=$1"}
	args := []any{filter.TenantID}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Kind != nil {
		args = append(args, *filter.Kind)
		clauses = append(clauses, fmt.Sprintf("kind=$%d", len(args)))
	}
	if filter.Urgent != nil {
		args = append(args, *filter.Urgent)
		clauses = append(clauses, fmt.Sprintf("urgent=$%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY number DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.TenantID,
			&ticket.Number,
			&ticket.Kind,
			&ticket.Status,
			&ticket.Urgent,
			&ticket.ClientRef,
			&ticket.Summary,
			&ticket.LinkedBudgetID,
			&ticket.Version,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func (s *PostgresStore) listEntries(ctx context.Context, ticketID string) ([]domain.ScheduleEntry, error) {
	const query = `
        SELECT id, ticket_id, scheduled_at, technicians, activity_type_id, activity_name, observations,
               status, outcome, is_return_visit, origin_entry_id, public_token, created_at, finalized_at
        FROM schedule_entries WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := s.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ScheduleEntry
	for rows.Next() {
		var entry domain.ScheduleEntry
		var technicians []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.ScheduledAt,
			&technicians,
			&entry.ActivityTypeID,
			&entry.ActivityName,
			&entry.Observations,
			&entry.Status,
			&entry.Outcome,
			&entry.IsReturnVisit,
			&entry.OriginEntryID,
			&entry.PublicToken,
			&entry.CreatedAt,
			&entry.FinalizedAt,
		); err != nil {
			return nil, err
		}
		if len(technicians) > 0 {
			if err := json.Unmarshal(technicians, &entry.Technicians); err != nil {
				return nil, err
			}
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (s *PostgresStore) listPendencies(ctx context.Context, ticketID string) ([]domain.Pendency, error) {
	const query = `
        SELECT id, ticket_id, kind, financial_type, description, estimated_amount, parts_removed,
               parts_location, rejection_reason, return_instructions, origin_entry_id, resolved, created_at, resolved_at
        FROM pendencies WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := s.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Pendency
	for rows.Next() {
		var (
			pendency        domain.Pendency
			finType         *domain.FinancialPendencyType
			description     string
			estimatedAmount *float64
			partsRemoved    bool
			partsLocation   string
			rejectionReason string
			instructions    string
		)
		if err := rows.Scan(
			&pendency.ID,
			&pendency.TicketID,
			&pendency.Kind,
			&finType,
			&description,
			&estimatedAmount,
			&partsRemoved,
			&partsLocation,
			&rejectionReason,
			&instructions,
			&pendency.OriginEntryID,
			&pendency.Resolved,
			&pendency.CreatedAt,
			&pendency.ResolvedAt,
		); err != nil {
			return nil, err
		}
		switch pendency.Kind {
		case domain.PendencyKindTechnical:
			pendency.Technical = &domain.TechnicalDetails{Description: description}
		case domain.PendencyKindFinancial:
			details := domain.FinancialDetails{
				Description:     description,
				EstimatedAmount: estimatedAmount,
				PartsRemoved:    partsRemoved,
				PartsLocation:   partsLocation,
			}
			if finType != nil {
				details.Type = *finType
			}
			pendency.Financial = &details
		case domain.PendencyKindReturn:
			pendency.Return = &domain.ReturnDetails{
				RejectionReason:    rejectionReason,
				ReturnInstructions: instructions,
				PartsLocation:      partsLocation,
			}
		}
		result = append(result, pendency)
	}
	return result, rows.Err()
}

func (s *PostgresStore) listAuditEvents(ctx context.Context, ticketID string) ([]domain.AuditEvent, error) {
	const query = `
        SELECT id, ticket_id, actor_id, actor_name, action, detail, created_at
        FROM audit_events WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := s.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditEvent
	for rows.Next() {
		var event domain.AuditEvent
		if err := rows.Scan(
			&event.ID,
			&event.TicketID,
			&event.ActorID,
			&event.ActorName,
			&event.Action,
			&event.Detail,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}

func (s *PostgresStore) GetOrCreateActivityType(ctx context.Context, tenantID, name string) (*domain.ActivityType, error) {
	name = strings.TrimSpace(name)
	const insertQuery = `
        INSERT INTO activity_types (id, tenant_id, name)
        VALUES (gen_random_uuid(), $1, $2)
        ON CONFLICT (tenant_id, lower(name)) DO UPDATE SET name=activity_types.name
        RETURNING id, tenant_id, name, created_at`
	var activity domain.ActivityType
	if err := s.pool.QueryRow(ctx, insertQuery, tenantID, name).Scan(
		&activity.ID,
		&activity.TenantID,
		&activity.Name,
		&activity.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &activity, nil
}

func (s *PostgresStore) GetActivityType(ctx context.Context, tenantID, id string) (*domain.ActivityType, error) {
	const query = `
        SELECT id, tenant_id, name, created_at FROM activity_types WHERE tenant_id=$1 AND id=$2`
	var activity domain.ActivityType
	if err := s.pool.QueryRow(ctx, query, tenantID, id).Scan(
		&activity.ID,
		&activity.TenantID,
		&activity.Name,
		&activity.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrActivityTypeNotFound
		}
		return nil, err
	}
	return &activity, nil
}

func insertBudget(ctx context.Context, tx pgx.Tx, budget *domain.Budget) error {
	const query = `
        INSERT INTO budgets (id, tenant_id, ticket_id, pendency_id, title, valid_until, status, created_at, status_set_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)`
	_, err := tx.Exec(ctx, query,
		budget.ID,
		budget.TenantID,
		budget.TicketID,
		budget.PendencyID,
		budget.Title,
		budget.ValidUntil,
		budget.Status,
		budget.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetBudget(ctx context.Context, tenantID, id string) (*domain.Budget, error) {
	const query = `
        SELECT id, tenant_id, ticket_id, pendency_id, title, valid_until, status, created_at, status_set_at
        FROM budgets WHERE tenant_id=$1 AND id=$2`
	var budget domain.Budget
	if err := s.pool.QueryRow(ctx, query, tenantID, id).Scan(
		&budget.ID,
		&budget.TenantID,
		&budget.TicketID,
		&budget.PendencyID,
		&budget.Title,
		&budget.ValidUntil,
		&budget.Status,
		&budget.CreatedAt,
		&budget.StatusSetAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBudgetNotFound
		}
		return nil, err
	}
	return &budget, nil
}
