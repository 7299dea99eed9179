package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/kbase/groups-sub003/pkg/core"
	"github.com/kbase/groups-sub003/pkg/storage"
)

const requestColumns = "id, group_id, requester, request_type, resource_type, " +
	"resource_admin_id, resource_id, status, closed_by, closed_reason, created, modified, expires"

// StoreRequest stores a new open request. The characteristic string is the
// duplicate-prevention key; its unique index rejects a second open request
// with the same natural key.
func (s *Storage) StoreRequest(ctx context.Context, r *core.GroupRequest) error {
	_, err := s.write().ExecContext(ctx, `
		INSERT INTO requests (id, group_id, requester, request_type, resource_type,
			resource_admin_id, resource_id, status, closed_by, closed_reason,
			characteristic_string, created, modified, expires)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, NULL, $9, $10, $11, $12)`,
		r.ID, r.GroupID, r.Requester, r.Type, r.ResourceType,
		r.Resource.AdministrativeID, r.Resource.ID, r.Status.Type,
		r.CharacteristicString(), r.CreatedAt, r.ModifiedAt, r.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err, "idx_requests_characteristic") {
			return &core.RequestExistsError{
				Msg: fmt.Sprintf("an equivalent open request already exists for group %s", r.GroupID)}
		}
		return fmt.Errorf("failed to store request: %w", err)
	}
	return nil
}

// GetRequest returns the request by ID.
func (s *Storage) GetRequest(ctx context.Context, id core.RequestID) (*core.GroupRequest, error) {
	row := s.read().QueryRowContext(ctx,
		"SELECT "+requestColumns+" FROM requests WHERE id = $1", id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, &core.NoSuchRequestError{ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return r, nil
}

func scanRequest(row rowScanner) (*core.GroupRequest, error) {
	var r core.GroupRequest
	var closedBy sql.NullString
	var closedReason sql.NullString
	err := row.Scan(&r.ID, &r.GroupID, &r.Requester, &r.Type, &r.ResourceType,
		&r.Resource.AdministrativeID, &r.Resource.ID, &r.Status.Type,
		&closedBy, &closedReason, &r.CreatedAt, &r.ModifiedAt, &r.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if closedBy.Valid {
		u := core.UserName(closedBy.String)
		r.Status.ClosedBy = &u
	}
	if closedReason.Valid {
		r.Status.ClosedReason = closedReason.String
	}
	return &r, nil
}

// requestFilter accumulates WHERE conditions for request listings.
type requestFilter struct {
	conds []string
	args  []interface{}
}

func (f *requestFilter) arg(v interface{}) string {
	f.args = append(f.args, v)
	return fmt.Sprintf("$%d", len(f.args))
}

func (f *requestFilter) add(format string, vals ...interface{}) {
	placeholders := make([]interface{}, len(vals))
	for i, v := range vals {
		placeholders[i] = f.arg(v)
	}
	f.conds = append(f.conds, fmt.Sprintf(format, placeholders...))
}

// applyParams adds the standard listing filters: open-only unless closed
// requests are included, the exclusive modification time cursor, and the
// optional target resource restriction.
func (f *requestFilter) applyParams(params core.GetRequestsParams) {
	if !params.IncludeClosed {
		f.add("status = %s", string(core.StatusOpen))
	}
	if params.ExcludeUpTo != nil {
		op := ">"
		if !params.SortAscending {
			op = "<"
		}
		f.add("modified "+op+" %s", *params.ExcludeUpTo)
	}
	if params.ResourceType != "" {
		f.add("resource_type = %s AND resource_id = %s",
			string(params.ResourceType), string(params.ResourceID))
	}
}

func (f *requestFilter) query(params core.GetRequestsParams) string {
	order := "ASC"
	if !params.SortAscending {
		order = "DESC"
	}
	return fmt.Sprintf("SELECT %s FROM requests WHERE %s ORDER BY modified %s LIMIT %d",
		requestColumns, strings.Join(f.conds, " AND "), order, storage.MaxList)
}

func (s *Storage) listRequests(ctx context.Context, f *requestFilter,
	params core.GetRequestsParams) ([]*core.GroupRequest, error) {
	rows, err := s.read().QueryContext(ctx, f.query(params), f.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var result []*core.GroupRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate requests: %w", err)
	}
	return result, nil
}

// GetRequestsByRequester lists requests created by the user.
func (s *Storage) GetRequestsByRequester(ctx context.Context, user core.UserName,
	params core.GetRequestsParams) ([]*core.GroupRequest, error) {
	f := &requestFilter{}
	f.add("requester = %s", string(user))
	f.applyParams(params)
	return s.listRequests(ctx, f, params)
}

// GetRequestsByTarget lists requests targeting the user directly (open
// invitations) or targeting resources the user administers.
func (s *Storage) GetRequestsByTarget(ctx context.Context, user core.UserName,
	adminResources map[core.ResourceType][]core.ResourceAdministrativeID,
	params core.GetRequestsParams) ([]*core.GroupRequest, error) {
	f := &requestFilter{}

	targets := []string{fmt.Sprintf(
		"(request_type = %s AND resource_type = %s AND resource_id = %s)",
		f.arg(string(core.RequestTypeInvite)), f.arg(string(core.ResourceTypeUser)), f.arg(string(user)))}
	for t, adminIDs := range adminResources {
		if len(adminIDs) == 0 {
			continue
		}
		ids := make([]string, len(adminIDs))
		for i, id := range adminIDs {
			ids[i] = string(id)
		}
		targets = append(targets, fmt.Sprintf(
			"(resource_type = %s AND resource_admin_id = ANY(%s))",
			f.arg(string(t)), f.arg(pq.Array(ids))))
	}
	f.conds = append(f.conds, "("+strings.Join(targets, " OR ")+")")
	f.applyParams(params)
	return s.listRequests(ctx, f, params)
}

// GetRequestsByGroup lists requests against a single group.
func (s *Storage) GetRequestsByGroup(ctx context.Context, id core.GroupID,
	params core.GetRequestsParams) ([]*core.GroupRequest, error) {
	f := &requestFilter{}
	f.add("group_id = %s", string(id))
	f.applyParams(params)
	return s.listRequests(ctx, f, params)
}

// GetRequestsByGroups lists requests against any of the given groups.
func (s *Storage) GetRequestsByGroups(ctx context.Context, ids []core.GroupID,
	params core.GetRequestsParams) ([]*core.GroupRequest, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = string(id)
	}
	f := &requestFilter{}
	f.add("group_id = ANY(%s)", pq.Array(strs))
	f.applyParams(params)
	return s.listRequests(ctx, f, params)
}

// GroupHasRequest reports whether the group has an open request, optionally
// restricted to requests modified strictly after laterThan.
func (s *Storage) GroupHasRequest(ctx context.Context, id core.GroupID, laterThan *time.Time) (bool, error) {
	query := "SELECT EXISTS(SELECT 1 FROM requests WHERE group_id = $1 AND status = $2"
	args := []interface{}{id, core.StatusOpen}
	if laterThan != nil {
		query += " AND modified > $3"
		args = append(args, *laterThan)
	}
	query += ")"

	var exists bool
	if err := s.read().QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check group requests: %w", err)
	}
	return exists, nil
}

// CloseRequest atomically moves an open request to a terminal status. The
// status condition makes the close a compare-and-swap: of two racing closes
// exactly one updates a row, and the loser gets core.ClosedRequestError.
// Closing clears the characteristic string so an equivalent request may be
// opened again.
func (s *Storage) CloseRequest(ctx context.Context, id core.RequestID,
	status core.RequestStatus, mod time.Time) error {
	if status.Type == core.StatusOpen {
		return fmt.Errorf("cannot close a request to open status")
	}

	var closedBy sql.NullString
	if status.ClosedBy != nil {
		closedBy = sql.NullString{String: string(*status.ClosedBy), Valid: true}
	}
	var closedReason sql.NullString
	if status.ClosedReason != "" {
		closedReason = sql.NullString{String: status.ClosedReason, Valid: true}
	}

	res, err := s.write().ExecContext(ctx, `
		UPDATE requests
		SET status = $2, closed_by = $3, closed_reason = $4, modified = $5,
			characteristic_string = NULL
		WHERE id = $1 AND status = $6`,
		id, status.Type, closedBy, closedReason, mod, core.StatusOpen)
	if err != nil {
		return fmt.Errorf("failed to close request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check request close: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := s.write().QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM requests WHERE id = $1)", id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check request existence: %w", err)
	}
	if !exists {
		return &core.NoSuchRequestError{ID: string(id)}
	}
	return &core.ClosedRequestError{ID: id}
}

// GetExpiredRequests returns IDs of open requests whose expiration date is
// strictly before now.
func (s *Storage) GetExpiredRequests(ctx context.Context, now time.Time) ([]core.RequestID, error) {
	rows, err := s.read().QueryContext(ctx, fmt.Sprintf(
		"SELECT id FROM requests WHERE status = $1 AND expires < $2 ORDER BY expires LIMIT %d",
		storage.MaxList), core.StatusOpen, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired requests: %w", err)
	}
	defer rows.Close()

	var result []core.RequestID
	for rows.Next() {
		var id core.RequestID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan request id: %w", err)
		}
		result = append(result, id)
	}
	return result, rows.Err()
}
