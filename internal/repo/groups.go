package repo

import (
	"context"
	"database/sql"

	"studyline/internal/domain"
)

func (r Repo) InsertGroup(ctx context.Context, tx *sql.Tx, g domain.Group) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO groups(id,name,owner_id,invite_code,created_at) VALUES (?,?,?,?,?)`,
		g.ID, g.Name, g.OwnerID, g.InviteCode, g.CreatedAt)
	return err
}

func (r Repo) GetGroup(ctx context.Context, id string) (domain.Group, error) {
	var g domain.Group
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,owner_id,invite_code,created_at FROM groups WHERE id=?`, id).
		Scan(&g.ID, &g.Name, &g.OwnerID, &g.InviteCode, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	return g, err
}

func (r Repo) GetGroupByInviteCode(ctx context.Context, code string) (domain.Group, error) {
	var g domain.Group
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,owner_id,invite_code,created_at FROM groups WHERE invite_code=?`, code).
		Scan(&g.ID, &g.Name, &g.OwnerID, &g.InviteCode, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	return g, err
}

func (r Repo) ListGroupsForActor(ctx context.Context, actorID string) ([]domain.Group, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT g.id,g.name,g.owner_id,g.invite_code,g.created_at
FROM groups g JOIN group_members m ON m.group_id=g.id
WHERE m.actor_id=? ORDER BY g.created_at DESC`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Group
	for rows.Next() {
		var g domain.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.OwnerID, &g.InviteCode, &g.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

func (r Repo) InsertGroupMember(ctx context.Context, tx *sql.Tx, m domain.GroupMember) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO group_members(group_id,actor_id,role,joined_at) VALUES (?,?,?,?)
ON CONFLICT(group_id,actor_id) DO NOTHING`, m.GroupID, m.ActorID, m.Role, m.JoinedAt)
	return err
}

func (r Repo) DeleteGroupMember(ctx context.Context, tx *sql.Tx, groupID, actorID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=? AND actor_id=?`, groupID, actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateGroupInviteCode(ctx context.Context, tx *sql.Tx, groupID, code string) error {
	res, err := tx.ExecContext(ctx, `UPDATE groups SET invite_code=? WHERE id=?`, code, groupID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteGroup(ctx context.Context, tx *sql.Tx, groupID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=?`, groupID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM groups WHERE id=?`, groupID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListGroupMembers(ctx context.Context, groupID string) ([]domain.GroupMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT group_id,actor_id,role,joined_at FROM group_members WHERE group_id=? ORDER BY joined_at,actor_id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.GroupMember
	for rows.Next() {
		var m domain.GroupMember
		if err := rows.Scan(&m.GroupID, &m.ActorID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) IsGroupMember(ctx context.Context, groupID, actorID string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM group_members WHERE group_id=? AND actor_id=?`, groupID, actorID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MemberTotals holds raw study totals per member, used as leaderboard input.
type MemberTotals struct {
	ActorID      string
	StudySeconds int
	Questions    int
}

// GroupMemberTotals sums study seconds and question counts per member across
// the journeys each member owns.
func (r Repo) GroupMemberTotals(ctx context.Context, groupID string) ([]MemberTotals, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT m.actor_id,
COALESCE((SELECT SUM(s.duration_seconds) FROM study_sessions s JOIN journeys j ON j.id=s.journey_id WHERE j.owner_id=m.actor_id),0),
COALESCE((SELECT SUM(q.total) FROM question_logs q JOIN journeys j ON j.id=q.journey_id WHERE j.owner_id=m.actor_id),0)
FROM group_members m WHERE m.group_id=? ORDER BY m.actor_id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []MemberTotals
	for rows.Next() {
		var t MemberTotals
		if err := rows.Scan(&t.ActorID, &t.StudySeconds, &t.Questions); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
