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

const groupColumns = "id, name, owner, is_private, private_member_list, custom_fields, created, modified"

// CreateGroup stores a new group and its owner membership row.
func (s *Storage) CreateGroup(ctx context.Context, g *core.Group) error {
	fields, err := marshalFields(g.CustomFields)
	if err != nil {
		return err
	}

	tx, err := s.write().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO groups (id, name, owner, is_private, private_member_list, custom_fields, created, modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		g.ID, g.Name, g.Owner, g.IsPrivate, g.PrivateMemberList, fields, g.CreatedAt, g.ModifiedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return &core.GroupExistsError{ID: g.ID}
		}
		return fmt.Errorf("failed to create group: %w", err)
	}

	for _, member := range g.Members {
		if err := insertMember(ctx, tx, g.ID, member); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit group creation: %w", err)
	}
	return nil
}

func insertMember(ctx context.Context, tx *sql.Tx, id core.GroupID, member core.GroupUser) error {
	fields, err := marshalFields(member.CustomFields)
	if err != nil {
		return err
	}
	var lastVisit sql.NullTime
	if member.LastVisit != nil {
		lastVisit = sql.NullTime{Time: *member.LastVisit, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_name, role, joined, last_visit, custom_fields)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, member.Name, member.Role, member.Joined, lastVisit, fields)
	if err != nil {
		if isUniqueViolation(err, "") {
			return &core.UserIsMemberError{
				Msg: fmt.Sprintf("user %s is already a member of group %s", member.Name, id)}
		}
		if isForeignKeyViolation(err) {
			return &core.NoSuchGroupError{ID: id}
		}
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// UpdateGroup applies the update inside a transaction, merging custom field
// changes into the stored fields. The modification time is written only when
// the update changes something.
func (s *Storage) UpdateGroup(ctx context.Context, id core.GroupID, update core.GroupUpdate, mod time.Time) error {
	if !update.HasUpdate() {
		return nil
	}

	tx, err := s.write().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var fieldsJSON []byte
	err = tx.QueryRowContext(ctx,
		"SELECT custom_fields FROM groups WHERE id = $1 FOR UPDATE", id,
	).Scan(&fieldsJSON)
	if err == sql.ErrNoRows {
		return &core.NoSuchGroupError{ID: id}
	}
	if err != nil {
		return fmt.Errorf("failed to lock group for update: %w", err)
	}

	sets := []string{"modified = $2"}
	args := []interface{}{id, mod}
	n := 3
	if update.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", n))
		args = append(args, *update.Name)
		n++
	}
	if update.IsPrivate != nil {
		sets = append(sets, fmt.Sprintf("is_private = $%d", n))
		args = append(args, *update.IsPrivate)
		n++
	}
	if update.PrivateMemberList != nil {
		sets = append(sets, fmt.Sprintf("private_member_list = $%d", n))
		args = append(args, *update.PrivateMemberList)
		n++
	}
	if len(update.CustomFields) > 0 {
		fields, err := unmarshalFields(fieldsJSON)
		if err != nil {
			return err
		}
		merged, err := marshalFields(applyFieldUpdates(fields, update.CustomFields))
		if err != nil {
			return err
		}
		sets = append(sets, fmt.Sprintf("custom_fields = $%d", n))
		args = append(args, merged)
	}

	query := fmt.Sprintf("UPDATE groups SET %s WHERE id = $1", strings.Join(sets, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit group update: %w", err)
	}
	return nil
}

// GetGroup returns the group with all members and resources.
func (s *Storage) GetGroup(ctx context.Context, id core.GroupID) (*core.Group, error) {
	row := s.read().QueryRowContext(ctx,
		"SELECT "+groupColumns+" FROM groups WHERE id = $1", id)
	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, &core.NoSuchGroupError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	groups := map[core.GroupID]*core.Group{g.ID: g}
	if err := s.loadMembers(ctx, groups); err != nil {
		return nil, err
	}
	if err := s.loadResources(ctx, groups); err != nil {
		return nil, err
	}
	return g, nil
}

// GetGroups returns groups visible to the user matching the parameters,
// ordered by ID, at most storage.MaxList rows.
func (s *Storage) GetGroups(ctx context.Context, params core.GetGroupsParams, user core.UserName) ([]*core.Group, error) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if user == "" {
		conds = append(conds, "NOT g.is_private")
	} else {
		conds = append(conds, fmt.Sprintf(
			"(NOT g.is_private OR EXISTS (SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.user_name = %s))",
			arg(user)))
	}
	if params.ExcludeUpTo != "" {
		op := ">"
		if !params.SortAscending {
			op = "<"
		}
		conds = append(conds, fmt.Sprintf("g.id %s %s", op, arg(params.ExcludeUpTo)))
	}
	if params.ResourceType != "" {
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM group_resources r WHERE r.group_id = g.id AND r.resource_type = %s AND r.resource_id = %s)",
			arg(params.ResourceType), arg(params.ResourceID)))
	}
	if params.Role != core.RoleNone && user != "" {
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.user_name = %s AND m.role = ANY(%s))",
			arg(user), arg(pq.Array(rolesAtLeast(params.Role)))))
	}

	order := "ASC"
	if !params.SortAscending {
		order = "DESC"
	}
	query := fmt.Sprintf(
		"SELECT %s FROM groups g WHERE %s ORDER BY g.id %s LIMIT %d",
		groupColumnsPrefixed("g"), strings.Join(conds, " AND "), order, storage.MaxList)

	rows, err := s.read().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var result []*core.Group
	byID := map[core.GroupID]*core.Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		result = append(result, g)
		byID[g.ID] = g
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}

	if err := s.loadMembers(ctx, byID); err != nil {
		return nil, err
	}
	if err := s.loadResources(ctx, byID); err != nil {
		return nil, err
	}
	return result, nil
}

func rolesAtLeast(r core.Role) []string {
	switch r {
	case core.RoleOwner:
		return []string{string(core.RoleOwner)}
	case core.RoleAdmin:
		return []string{string(core.RoleAdmin), string(core.RoleOwner)}
	default:
		return []string{string(core.RoleMember), string(core.RoleAdmin), string(core.RoleOwner)}
	}
}

func groupColumnsPrefixed(alias string) string {
	cols := strings.Split(groupColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGroup(row rowScanner) (*core.Group, error) {
	var g core.Group
	var fieldsJSON []byte
	err := row.Scan(&g.ID, &g.Name, &g.Owner, &g.IsPrivate, &g.PrivateMemberList,
		&fieldsJSON, &g.CreatedAt, &g.ModifiedAt)
	if err != nil {
		return nil, err
	}
	g.CustomFields, err = unmarshalFields(fieldsJSON)
	if err != nil {
		return nil, err
	}
	g.Members = map[core.UserName]core.GroupUser{}
	g.Resources = map[core.ResourceType]map[core.ResourceID]core.AttachedResource{}
	return &g, nil
}

func (s *Storage) loadMembers(ctx context.Context, groups map[core.GroupID]*core.Group) error {
	if len(groups) == 0 {
		return nil
	}
	ids := groupIDStrings(groups)
	rows, err := s.read().QueryContext(ctx, `
		SELECT group_id, user_name, role, joined, last_visit, custom_fields
		FROM group_members WHERE group_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var gid core.GroupID
		var m core.GroupUser
		var lastVisit sql.NullTime
		var fieldsJSON []byte
		if err := rows.Scan(&gid, &m.Name, &m.Role, &m.Joined, &lastVisit, &fieldsJSON); err != nil {
			return fmt.Errorf("failed to scan member: %w", err)
		}
		if lastVisit.Valid {
			t := lastVisit.Time
			m.LastVisit = &t
		}
		if m.CustomFields, err = unmarshalFields(fieldsJSON); err != nil {
			return err
		}
		if g, ok := groups[gid]; ok {
			g.Members[m.Name] = m
		}
	}
	return rows.Err()
}

func (s *Storage) loadResources(ctx context.Context, groups map[core.GroupID]*core.Group) error {
	if len(groups) == 0 {
		return nil
	}
	ids := groupIDStrings(groups)
	rows, err := s.read().QueryContext(ctx, `
		SELECT group_id, resource_type, resource_id, admin_id, added
		FROM group_resources WHERE group_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load resources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var gid core.GroupID
		var t core.ResourceType
		var rid core.ResourceID
		var aid core.ResourceAdministrativeID
		var added sql.NullTime
		if err := rows.Scan(&gid, &t, &rid, &aid, &added); err != nil {
			return fmt.Errorf("failed to scan resource: %w", err)
		}
		res := core.AttachedResource{Descriptor: core.NewResourceDescriptor(aid, rid)}
		if added.Valid {
			at := added.Time
			res.Added = &at
		}
		if g, ok := groups[gid]; ok {
			if g.Resources[t] == nil {
				g.Resources[t] = map[core.ResourceID]core.AttachedResource{}
			}
			g.Resources[t][rid] = res
		}
	}
	return rows.Err()
}

func groupIDStrings(groups map[core.GroupID]*core.Group) []string {
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, string(id))
	}
	return ids
}

// GetGroupNames returns ID and name for each given group, in ID order.
func (s *Storage) GetGroupNames(ctx context.Context, ids []core.GroupID) ([]core.GroupIDAndName, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = string(id)
	}
	rows, err := s.read().QueryContext(ctx,
		"SELECT id, name FROM groups WHERE id = ANY($1) ORDER BY id", pq.Array(strs))
	if err != nil {
		return nil, fmt.Errorf("failed to get group names: %w", err)
	}
	defer rows.Close()

	var result []core.GroupIDAndName
	seen := map[core.GroupID]bool{}
	for rows.Next() {
		var gn core.GroupIDAndName
		if err := rows.Scan(&gn.ID, &gn.Name); err != nil {
			return nil, fmt.Errorf("failed to scan group name: %w", err)
		}
		result = append(result, gn)
		seen[gn.ID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group names: %w", err)
	}
	for _, id := range ids {
		if !seen[id] {
			return nil, &core.NoSuchGroupError{ID: id}
		}
	}
	return result, nil
}

// GroupExists reports whether the group exists.
func (s *Storage) GroupExists(ctx context.Context, id core.GroupID) (bool, error) {
	var exists bool
	err := s.read().QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM groups WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check group existence: %w", err)
	}
	return exists, nil
}

// GetMemberGroups returns ID and name of every group the user belongs to.
func (s *Storage) GetMemberGroups(ctx context.Context, user core.UserName) ([]core.GroupIDAndName, error) {
	rows, err := s.read().QueryContext(ctx, `
		SELECT g.id, g.name FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_name = $1
		ORDER BY g.id`, user)
	if err != nil {
		return nil, fmt.Errorf("failed to get member groups: %w", err)
	}
	defer rows.Close()

	var result []core.GroupIDAndName
	for rows.Next() {
		var gn core.GroupIDAndName
		if err := rows.Scan(&gn.ID, &gn.Name); err != nil {
			return nil, fmt.Errorf("failed to scan member group: %w", err)
		}
		result = append(result, gn)
	}
	return result, rows.Err()
}

// GetAdministratedGroups returns IDs of groups where the user is owner or
// admin.
func (s *Storage) GetAdministratedGroups(ctx context.Context, user core.UserName) ([]core.GroupID, error) {
	rows, err := s.read().QueryContext(ctx, `
		SELECT group_id FROM group_members
		WHERE user_name = $1 AND role = ANY($2)
		ORDER BY group_id`,
		user, pq.Array([]string{string(core.RoleAdmin), string(core.RoleOwner)}))
	if err != nil {
		return nil, fmt.Errorf("failed to get administrated groups: %w", err)
	}
	defer rows.Close()

	var result []core.GroupID
	for rows.Next() {
		var id core.GroupID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group id: %w", err)
		}
		result = append(result, id)
	}
	return result, rows.Err()
}

// touchGroup updates the group modification time within a transaction,
// confirming the group exists.
func touchGroup(ctx context.Context, tx *sql.Tx, id core.GroupID, mod time.Time) error {
	res, err := tx.ExecContext(ctx, "UPDATE groups SET modified = $2 WHERE id = $1", id, mod)
	if err != nil {
		return fmt.Errorf("failed to update group modification time: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check group update: %w", err)
	}
	if n == 0 {
		return &core.NoSuchGroupError{ID: id}
	}
	return nil
}

// AddMember adds a user to the group.
func (s *Storage) AddMember(ctx context.Context, id core.GroupID, member core.GroupUser, mod time.Time) error {
	tx, err := s.write().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := touchGroup(ctx, tx, id, mod); err != nil {
		return err
	}
	if err := insertMember(ctx, tx, id, member); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit member addition: %w", err)
	}
	return nil
}

// RemoveMember removes a regular member from the group. Admins and owners
// must be demoted first.
func (s *Storage) RemoveMember(ctx context.Context, id core.GroupID, user core.UserName, mod time.Time) error {
	return s.memberRoleOp(ctx, id, user, mod,
		"DELETE FROM group_members WHERE group_id = $1 AND user_name = $2 AND role = $3",
		core.RoleMember,
		fmt.Sprintf("user %s is not a standard member of group %s", user, id))
}

// PromoteMember changes a regular member's role to admin.
func (s *Storage) PromoteMember(ctx context.Context, id core.GroupID, user core.UserName, mod time.Time) error {
	return s.memberRoleOp(ctx, id, user, mod,
		"UPDATE group_members SET role = 'admin' WHERE group_id = $1 AND user_name = $2 AND role = $3",
		core.RoleMember,
		fmt.Sprintf("user %s is not a standard member of group %s", user, id))
}

// DemoteAdmin changes an admin's role to member.
func (s *Storage) DemoteAdmin(ctx context.Context, id core.GroupID, user core.UserName, mod time.Time) error {
	return s.memberRoleOp(ctx, id, user, mod,
		"UPDATE group_members SET role = 'member' WHERE group_id = $1 AND user_name = $2 AND role = $3",
		core.RoleAdmin,
		fmt.Sprintf("user %s is not an admin of group %s", user, id))
}

func (s *Storage) memberRoleOp(ctx context.Context, id core.GroupID, user core.UserName,
	mod time.Time, query string, requiredRole core.Role, notFoundMsg string) error {
	tx, err := s.write().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := touchGroup(ctx, tx, id, mod); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, query, id, user, requiredRole)
	if err != nil {
		return fmt.Errorf("failed to modify member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check member modification: %w", err)
	}
	if n == 0 {
		return &core.NoSuchUserError{Msg: notFoundMsg}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit member modification: %w", err)
	}
	return nil
}

// UpdateUserFields updates a member's custom fields without touching the
// group modification time.
func (s *Storage) UpdateUserFields(ctx context.Context, id core.GroupID, user core.UserName, fields map[string]*string) error {
	if len(fields) == 0 {
		return nil
	}

	tx, err := s.write().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var fieldsJSON []byte
	err = tx.QueryRowContext(ctx,
		"SELECT custom_fields FROM group_members WHERE group_id = $1 AND user_name = $2 FOR UPDATE",
		id, user).Scan(&fieldsJSON)
	if err == sql.ErrNoRows {
		return &core.NoSuchUserError{
			Msg: fmt.Sprintf("user %s is not a member of group %s", user, id)}
	}
	if err != nil {
		return fmt.Errorf("failed to lock member for update: %w", err)
	}

	existing, err := unmarshalFields(fieldsJSON)
	if err != nil {
		return err
	}
	merged, err := marshalFields(applyFieldUpdates(existing, fields))
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE group_members SET custom_fields = $3 WHERE group_id = $1 AND user_name = $2",
		id, user, merged); err != nil {
		return fmt.Errorf("failed to update member fields: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit member field update: %w", err)
	}
	return nil
}

// UpdateLastVisit records the member's last visit to the group.
func (s *Storage) UpdateLastVisit(ctx context.Context, id core.GroupID, user core.UserName, visit time.Time) error {
	res, err := s.write().ExecContext(ctx,
		"UPDATE group_members SET last_visit = $3 WHERE group_id = $1 AND user_name = $2",
		id, user, visit)
	if err != nil {
		return fmt.Errorf("failed to update last visit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check last visit update: %w", err)
	}
	if n == 0 {
		return &core.NoSuchUserError{
			Msg: fmt.Sprintf("user %s is not a member of group %s", user, id)}
	}
	return nil
}

// AddResource attaches a resource to the group.
func (s *Storage) AddResource(ctx context.Context, id core.GroupID, t core.ResourceType,
	res core.AttachedResource, mod time.Time) error {
	tx, err := s.write().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := touchGroup(ctx, tx, id, mod); err != nil {
		return err
	}

	var added sql.NullTime
	if res.Added != nil {
		added = sql.NullTime{Time: *res.Added, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO group_resources (group_id, resource_type, resource_id, admin_id, added)
		VALUES ($1, $2, $3, $4, $5)`,
		id, t, res.Descriptor.ID, res.Descriptor.AdministrativeID, added)
	if err != nil {
		if isUniqueViolation(err, "") {
			return &core.ResourceExistsError{Type: t, ID: res.Descriptor.ID}
		}
		return fmt.Errorf("failed to add resource: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resource addition: %w", err)
	}
	return nil
}

// RemoveResource detaches a resource from the group.
func (s *Storage) RemoveResource(ctx context.Context, id core.GroupID, t core.ResourceType,
	rid core.ResourceID, mod time.Time) error {
	tx, err := s.write().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := touchGroup(ctx, tx, id, mod); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM group_resources WHERE group_id = $1 AND resource_type = $2 AND resource_id = $3",
		id, t, rid)
	if err != nil {
		return fmt.Errorf("failed to remove resource: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check resource removal: %w", err)
	}
	if n == 0 {
		return &core.NoSuchResourceError{Type: t, ID: rid}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resource removal: %w", err)
	}
	return nil
}
