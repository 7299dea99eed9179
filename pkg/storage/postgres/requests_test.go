package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase/groups-sub003/pkg/core"
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewStorage(db), mock, db
}

func testRequest(t *testing.T) *core.GroupRequest {
	t.Helper()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r, err := core.NewGroupRequest(core.NewRequestID(), "grp", "alice",
		core.RequestTypeInvite, core.ResourceTypeUser, core.UserResource("bob"),
		created, created.Add(14*24*time.Hour))
	require.NoError(t, err)
	return r
}

var requestRowColumns = []string{"id", "group_id", "requester", "request_type",
	"resource_type", "resource_admin_id", "resource_id", "status", "closed_by",
	"closed_reason", "created", "modified", "expires"}

func requestRow(r *core.GroupRequest) *sqlmock.Rows {
	var closedBy, closedReason interface{}
	if r.Status.ClosedBy != nil {
		closedBy = string(*r.Status.ClosedBy)
	}
	if r.Status.ClosedReason != "" {
		closedReason = r.Status.ClosedReason
	}
	return sqlmock.NewRows(requestRowColumns).AddRow(
		string(r.ID), string(r.GroupID), string(r.Requester), string(r.Type),
		string(r.ResourceType), string(r.Resource.AdministrativeID), string(r.Resource.ID),
		string(r.Status.Type), closedBy, closedReason, r.CreatedAt, r.ModifiedAt, r.ExpiresAt)
}

func TestStoreRequest(t *testing.T) {
	s, mock, db := newMockStorage(t)
	defer db.Close()
	ctx := context.Background()
	r := testRequest(t)

	insertPattern := regexp.QuoteMeta("INSERT INTO requests")

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(insertPattern).
			WithArgs(r.ID, r.GroupID, r.Requester, r.Type, r.ResourceType,
				r.Resource.AdministrativeID, r.Resource.ID, r.Status.Type,
				r.CharacteristicString(), r.CreatedAt, r.ModifiedAt, r.ExpiresAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.StoreRequest(ctx, r))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate open request", func(t *testing.T) {
		mock.ExpectExec(insertPattern).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "idx_requests_characteristic"})

		err := s.StoreRequest(ctx, r)
		require.Error(t, err)
		assert.True(t, core.IsRequestExists(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other error wrapped", func(t *testing.T) {
		mock.ExpectExec(insertPattern).
			WillReturnError(fmt.Errorf("connection reset"))

		err := s.StoreRequest(ctx, r)
		require.Error(t, err)
		assert.False(t, core.IsRequestExists(err))
		assert.Contains(t, err.Error(), "failed to store request")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetRequest(t *testing.T) {
	s, mock, db := newMockStorage(t)
	defer db.Close()
	ctx := context.Background()

	selectPattern := regexp.QuoteMeta("SELECT " + requestColumns + " FROM requests WHERE id = $1")

	t.Run("open request", func(t *testing.T) {
		r := testRequest(t)
		mock.ExpectQuery(selectPattern).WithArgs(r.ID).WillReturnRows(requestRow(r))

		got, err := s.GetRequest(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, r, got)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("denied request carries closed fields", func(t *testing.T) {
		r := testRequest(t)
		status, err := core.DeniedStatus("alice", "not a fit")
		require.NoError(t, err)
		r.Status = status

		mock.ExpectQuery(selectPattern).WithArgs(r.ID).WillReturnRows(requestRow(r))

		got, err := s.GetRequest(ctx, r.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Status.ClosedBy)
		assert.Equal(t, core.UserName("alice"), *got.Status.ClosedBy)
		assert.Equal(t, "not a fit", got.Status.ClosedReason)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		id := core.NewRequestID()
		mock.ExpectQuery(selectPattern).WithArgs(id).
			WillReturnRows(sqlmock.NewRows(requestRowColumns))

		_, err := s.GetRequest(ctx, id)
		require.Error(t, err)
		assert.True(t, core.IsNoSuchRequest(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCloseRequest(t *testing.T) {
	s, mock, db := newMockStorage(t)
	defer db.Close()
	ctx := context.Background()
	mod := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	id := core.NewRequestID()

	updatePattern := regexp.QuoteMeta("UPDATE requests")
	existsPattern := regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM requests WHERE id = $1)")

	t.Run("accept", func(t *testing.T) {
		status, err := core.AcceptedStatus("bob")
		require.NoError(t, err)

		mock.ExpectExec(updatePattern).
			WithArgs(id, core.StatusAccepted,
				sql.NullString{String: "bob", Valid: true}, sql.NullString{},
				mod, core.StatusOpen).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.CloseRequest(ctx, id, status, mod))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deny with reason", func(t *testing.T) {
		status, err := core.DeniedStatus("alice", "not a fit")
		require.NoError(t, err)

		mock.ExpectExec(updatePattern).
			WithArgs(id, core.StatusDenied,
				sql.NullString{String: "alice", Valid: true},
				sql.NullString{String: "not a fit", Valid: true},
				mod, core.StatusOpen).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.CloseRequest(ctx, id, status, mod))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race yields closed error", func(t *testing.T) {
		mock.ExpectExec(updatePattern).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(existsPattern).WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err := s.CloseRequest(ctx, id, core.CanceledStatus(), mod)
		require.Error(t, err)
		assert.True(t, core.IsClosedRequest(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing request", func(t *testing.T) {
		mock.ExpectExec(updatePattern).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(existsPattern).WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		err := s.CloseRequest(ctx, id, core.ExpiredStatus(), mod)
		require.Error(t, err)
		assert.True(t, core.IsNoSuchRequest(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("refuses open status", func(t *testing.T) {
		err := s.CloseRequest(ctx, id, core.OpenStatus(), mod)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot close")
	})
}

func TestGetRequestsByRequester(t *testing.T) {
	s, mock, db := newMockStorage(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("open only ascending", func(t *testing.T) {
		r := testRequest(t)
		query := fmt.Sprintf(
			"SELECT %s FROM requests WHERE requester = $1 AND status = $2 ORDER BY modified ASC LIMIT 100",
			requestColumns)
		mock.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs("alice", string(core.StatusOpen)).
			WillReturnRows(requestRow(r))

		got, err := s.GetRequestsByRequester(ctx, "alice", core.DefaultRequestsParams())
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, r.ID, got[0].ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("closed included with descending cursor", func(t *testing.T) {
		cursor := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		params := core.GetRequestsParams{IncludeClosed: true, ExcludeUpTo: &cursor}
		query := fmt.Sprintf(
			"SELECT %s FROM requests WHERE requester = $1 AND modified < $2 ORDER BY modified DESC LIMIT 100",
			requestColumns)
		mock.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs("alice", cursor).
			WillReturnRows(sqlmock.NewRows(requestRowColumns))

		got, err := s.GetRequestsByRequester(ctx, "alice", params)
		require.NoError(t, err)
		assert.Empty(t, got)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		mock.ExpectQuery("SELECT").WillReturnError(fmt.Errorf("boom"))

		_, err := s.GetRequestsByRequester(ctx, "alice", core.DefaultRequestsParams())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to list requests")
	})
}

func TestGetRequestsByTarget(t *testing.T) {
	s, mock, db := newMockStorage(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("user target only", func(t *testing.T) {
		r := testRequest(t)
		query := fmt.Sprintf(
			"SELECT %s FROM requests WHERE ((request_type = $1 AND resource_type = $2 AND resource_id = $3)) AND status = $4 ORDER BY modified ASC LIMIT 100",
			requestColumns)
		mock.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs("Invite", "user", "bob", string(core.StatusOpen)).
			WillReturnRows(requestRow(r))

		got, err := s.GetRequestsByTarget(ctx, "bob", nil, core.DefaultRequestsParams())
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with administrated resources", func(t *testing.T) {
		admin := map[core.ResourceType][]core.ResourceAdministrativeID{
			"workspace": {"34", "99"},
		}
		query := fmt.Sprintf(
			"SELECT %s FROM requests WHERE ((request_type = $1 AND resource_type = $2 AND resource_id = $3) OR (resource_type = $4 AND resource_admin_id = ANY($5))) AND status = $6 ORDER BY modified ASC LIMIT 100",
			requestColumns)
		mock.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs("Invite", "user", "bob", "workspace",
				pq.Array([]string{"34", "99"}), string(core.StatusOpen)).
			WillReturnRows(sqlmock.NewRows(requestRowColumns))

		_, err := s.GetRequestsByTarget(ctx, "bob", admin, core.DefaultRequestsParams())
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetRequestsByGroups(t *testing.T) {
	s, mock, db := newMockStorage(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("single group", func(t *testing.T) {
		r := testRequest(t)
		query := fmt.Sprintf(
			"SELECT %s FROM requests WHERE group_id = $1 AND status = $2 ORDER BY modified ASC LIMIT 100",
			requestColumns)
		mock.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs("grp", string(core.StatusOpen)).
			WillReturnRows(requestRow(r))

		got, err := s.GetRequestsByGroup(ctx, "grp", core.DefaultRequestsParams())
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("multiple groups", func(t *testing.T) {
		query := fmt.Sprintf(
			"SELECT %s FROM requests WHERE group_id = ANY($1) AND status = $2 ORDER BY modified ASC LIMIT 100",
			requestColumns)
		mock.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs(pq.Array([]string{"g1", "g2"}), string(core.StatusOpen)).
			WillReturnRows(sqlmock.NewRows(requestRowColumns))

		_, err := s.GetRequestsByGroups(ctx, []core.GroupID{"g1", "g2"}, core.DefaultRequestsParams())
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no groups short-circuits", func(t *testing.T) {
		got, err := s.GetRequestsByGroups(ctx, nil, core.DefaultRequestsParams())
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestGroupHasRequest(t *testing.T) {
	s, mock, db := newMockStorage(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("any open request", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(
			"SELECT EXISTS(SELECT 1 FROM requests WHERE group_id = $1 AND status = $2)")).
			WithArgs(core.GroupID("grp"), core.StatusOpen).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		has, err := s.GroupHasRequest(ctx, "grp", nil)
		require.NoError(t, err)
		assert.True(t, has)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("later than", func(t *testing.T) {
		later := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery(regexp.QuoteMeta(
			"SELECT EXISTS(SELECT 1 FROM requests WHERE group_id = $1 AND status = $2 AND modified > $3)")).
			WithArgs(core.GroupID("grp"), core.StatusOpen, later).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		has, err := s.GroupHasRequest(ctx, "grp", &later)
		require.NoError(t, err)
		assert.False(t, has)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetExpiredRequests(t *testing.T) {
	s, mock, db := newMockStorage(t)
	defer db.Close()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	query := regexp.QuoteMeta(
		"SELECT id FROM requests WHERE status = $1 AND expires < $2 ORDER BY expires LIMIT 100")

	t.Run("returns ids", func(t *testing.T) {
		id1 := core.NewRequestID()
		id2 := core.NewRequestID()
		mock.ExpectQuery(query).
			WithArgs(core.StatusOpen, now).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).
				AddRow(string(id1)).AddRow(string(id2)))

		ids, err := s.GetExpiredRequests(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, []core.RequestID{id1, id2}, ids)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("none expired", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(core.StatusOpen, now).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		ids, err := s.GetExpiredRequests(ctx, now)
		require.NoError(t, err)
		assert.Empty(t, ids)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
