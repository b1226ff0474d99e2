// Package sqlite provides a SQLite-backed implementation of the storage interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/groupcart/internal/models"
	"github.com/mmynk/groupcart/internal/storage"
)

// Ensure SQLiteStore implements the storage interfaces
var (
	_ storage.GroupStore       = (*SQLiteStore)(nil)
	_ storage.SlotLockStore    = (*SQLiteStore)(nil)
	_ storage.IdempotencyStore = (*SQLiteStore)(nil)
)

// obligation kinds stored in the obligations table
const (
	obligationKindSplit = "split"
	obligationKindOrder = "order"
)

// SQLiteStore implements the storage interfaces using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	db, err := sql.Open("sqlite", dbPath+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection serializes transactions
	// instead of failing them with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateGroup persists a new group and its children at version 1.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.Group) error {
	// Generate ID if not set
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}
	if group.UpdatedAt == 0 {
		group.UpdatedAt = group.CreatedAt
	}
	group.Version = 1

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO groups (id, name, owner_member_id, status, version, total, slot_id,
		 slot_locked_until, ordering_since, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		group.ID, group.Name, group.OwnerMemberID, string(group.Status), group.Version, group.Total,
		group.SlotID, group.SlotLockedUntil, group.OrderingSince, group.CreatedAt, group.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}

	if err := writeChildren(ctx, tx, group); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CommitIfVersion replaces the stored aggregate if its version still matches.
func (s *SQLiteStore) CommitIfVersion(ctx context.Context, group *models.Group, expectedVersion int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE groups SET name = ?, owner_member_id = ?, status = ?, version = version + 1, total = ?,
		 slot_id = ?, slot_locked_until = ?, ordering_since = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		group.Name, group.OwnerMemberID, string(group.Status), group.Total,
		group.SlotID, group.SlotLockedUntil, group.OrderingSince, group.UpdatedAt,
		group.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM groups WHERE id = ?", group.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("group %s: %w", group.ID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check group existence: %w", err)
		}
		return fmt.Errorf("group %s at version %d: %w", group.ID, expectedVersion, storage.ErrVersionConflict)
	}

	for _, table := range []string{"group_members", "group_invites", "cart_items",
		"payment_splits", "payment_split_entries", "obligations", "group_orders"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE group_id = ?", group.ID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if err := writeChildren(ctx, tx, group); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	group.Version = expectedVersion + 1
	return nil
}

// writeChildren inserts every child row of the aggregate.
func writeChildren(ctx context.Context, tx *sql.Tx, group *models.Group) error {
	for i, m := range group.Members {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO group_members (id, group_id, user_id, role, joined_at, position) VALUES (?, ?, ?, ?, ?, ?)",
			m.ID, group.ID, m.UserID, string(m.Role), m.JoinedAt, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert member: %w", err)
		}
	}

	for _, inv := range group.Invites {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO group_invites (token, group_id, phone, status, created_at, expires_at, accepted_by)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			inv.Token, group.ID, inv.Phone, string(inv.Status), inv.CreatedAt, inv.ExpiresAt, inv.AcceptedBy,
		)
		if err != nil {
			return fmt.Errorf("failed to insert invite: %w", err)
		}
	}

	for i, item := range group.Items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cart_items (id, group_id, owner_member_id, catalog_ref, quantity, price_at_time, added_at, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, group.ID, item.OwnerMemberID, item.CatalogRef, item.Quantity, item.PriceAtTime, item.AddedAt, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert cart item: %w", err)
		}
	}

	if split := group.Split; split != nil {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO payment_splits (group_id, split_type, captured_total, updated_at) VALUES (?, ?, ?, ?)",
			group.ID, string(split.Policy.Type), split.CapturedTotal, split.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert payment split: %w", err)
		}
		for i, e := range split.Policy.Entries {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO payment_split_entries (group_id, member_id, amount, percent, position) VALUES (?, ?, ?, ?, ?)",
				group.ID, e.MemberID, e.Amount, e.Percent, i,
			)
			if err != nil {
				return fmt.Errorf("failed to insert split entry: %w", err)
			}
		}
		if err := writeObligations(ctx, tx, group.ID, obligationKindSplit, split.Obligations); err != nil {
			return err
		}
	}

	if order := group.Order; order != nil {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO group_orders (group_id, order_id, total, placed_at) VALUES (?, ?, ?, ?)",
			group.ID, order.OrderID, order.Total, order.PlacedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert group order: %w", err)
		}
		if err := writeObligations(ctx, tx, group.ID, obligationKindOrder, order.Obligations); err != nil {
			return err
		}
	}
	return nil
}

func writeObligations(ctx context.Context, tx *sql.Tx, groupID, kind string, obligations []models.Obligation) error {
	for i, o := range obligations {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO obligations (group_id, kind, member_id, amount, position) VALUES (?, ?, ?, ?, ?)",
			groupID, kind, o.MemberID, o.Amount, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert obligation: %w", err)
		}
	}
	return nil
}

// GetGroup retrieves a group by ID, including all of its children.
// The reads run in one transaction so the aggregate is never torn.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	group, err := loadGroup(ctx, tx, groupID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return group, nil
}

func loadGroup(ctx context.Context, q querier, groupID string) (*models.Group, error) {
	group := &models.Group{}
	var status string
	err := q.QueryRowContext(ctx,
		`SELECT id, name, owner_member_id, status, version, total, slot_id, slot_locked_until,
		 ordering_since, created_at, updated_at FROM groups WHERE id = ?`,
		groupID,
	).Scan(&group.ID, &group.Name, &group.OwnerMemberID, &status, &group.Version, &group.Total,
		&group.SlotID, &group.SlotLockedUntil, &group.OrderingSince, &group.CreatedAt, &group.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	group.Status = models.GroupStatus(status)

	if group.Members, err = loadMembers(ctx, q, groupID); err != nil {
		return nil, err
	}
	if group.Invites, err = loadInvites(ctx, q, groupID); err != nil {
		return nil, err
	}
	if group.Items, err = loadItems(ctx, q, groupID); err != nil {
		return nil, err
	}
	if group.Split, err = loadSplit(ctx, q, groupID); err != nil {
		return nil, err
	}
	if group.Order, err = loadOrder(ctx, q, groupID); err != nil {
		return nil, err
	}
	return group, nil
}

func loadMembers(ctx context.Context, q querier, groupID string) ([]models.Member, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, user_id, role, joined_at FROM group_members WHERE group_id = ? ORDER BY position",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		m := models.Member{GroupID: groupID}
		var role string
		if err := rows.Scan(&m.ID, &m.UserID, &role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.Role = models.MemberRole(role)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

func loadInvites(ctx context.Context, q querier, groupID string) ([]models.Invite, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT token, phone, status, created_at, expires_at, accepted_by
		 FROM group_invites WHERE group_id = ? ORDER BY created_at, token`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get invites: %w", err)
	}
	defer rows.Close()

	var invites []models.Invite
	for rows.Next() {
		inv := models.Invite{GroupID: groupID}
		var status string
		if err := rows.Scan(&inv.Token, &inv.Phone, &status, &inv.CreatedAt, &inv.ExpiresAt, &inv.AcceptedBy); err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		inv.Status = models.InviteStatus(status)
		invites = append(invites, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invites: %w", err)
	}
	return invites, nil
}

func loadItems(ctx context.Context, q querier, groupID string) ([]models.CartItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, owner_member_id, catalog_ref, quantity, price_at_time, added_at
		 FROM cart_items WHERE group_id = ? ORDER BY position`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart items: %w", err)
	}
	defer rows.Close()

	var items []models.CartItem
	for rows.Next() {
		item := models.CartItem{GroupID: groupID}
		if err := rows.Scan(&item.ID, &item.OwnerMemberID, &item.CatalogRef, &item.Quantity,
			&item.PriceAtTime, &item.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cart items: %w", err)
	}
	return items, nil
}

func loadSplit(ctx context.Context, q querier, groupID string) (*models.PaymentSplit, error) {
	split := &models.PaymentSplit{GroupID: groupID}
	var splitType string
	err := q.QueryRowContext(ctx,
		"SELECT split_type, captured_total, updated_at FROM payment_splits WHERE group_id = ?",
		groupID,
	).Scan(&splitType, &split.CapturedTotal, &split.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment split: %w", err)
	}
	split.Policy.Type = models.SplitType(splitType)

	rows, err := q.QueryContext(ctx,
		"SELECT member_id, amount, percent FROM payment_split_entries WHERE group_id = ? ORDER BY position",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get split entries: %w", err)
	}
	for rows.Next() {
		var e models.SplitEntry
		if err := rows.Scan(&e.MemberID, &e.Amount, &e.Percent); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan split entry: %w", err)
		}
		split.Policy.Entries = append(split.Policy.Entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate split entries: %w", err)
	}

	if split.Obligations, err = loadObligations(ctx, q, groupID, obligationKindSplit); err != nil {
		return nil, err
	}
	return split, nil
}

func loadOrder(ctx context.Context, q querier, groupID string) (*models.GroupOrder, error) {
	order := &models.GroupOrder{GroupID: groupID}
	err := q.QueryRowContext(ctx,
		"SELECT order_id, total, placed_at FROM group_orders WHERE group_id = ?",
		groupID,
	).Scan(&order.OrderID, &order.Total, &order.PlacedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group order: %w", err)
	}
	if order.Obligations, err = loadObligations(ctx, q, groupID, obligationKindOrder); err != nil {
		return nil, err
	}
	return order, nil
}

func loadObligations(ctx context.Context, q querier, groupID, kind string) ([]models.Obligation, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT member_id, amount FROM obligations WHERE group_id = ? AND kind = ? ORDER BY position",
		groupID, kind,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get obligations: %w", err)
	}
	defer rows.Close()

	var out []models.Obligation
	for rows.Next() {
		var o models.Obligation
		if err := rows.Scan(&o.MemberID, &o.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan obligation: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate obligations: %w", err)
	}
	return out, nil
}

// ListGroupsByUser retrieves every group the user belongs to, newest first.
func (s *SQLiteStore) ListGroupsByUser(ctx context.Context, userID string) ([]*models.Group, error) {
	ids, err := s.listIDs(ctx,
		`SELECT g.id FROM groups g JOIN group_members m ON m.group_id = g.id
		 WHERE m.user_id = ? ORDER BY g.created_at DESC, g.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups by user: %w", err)
	}

	groups := make([]*models.Group, 0, len(ids))
	for _, id := range ids {
		group, err := s.GetGroup(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue // deleted between the two reads
		}
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// ListGroupsByStatus returns the ids of groups in a status.
func (s *SQLiteStore) ListGroupsByStatus(ctx context.Context, status models.GroupStatus) ([]string, error) {
	ids, err := s.listIDs(ctx, "SELECT id FROM groups WHERE status = ? ORDER BY updated_at", string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list groups by status: %w", err)
	}
	return ids, nil
}

// FindInviteGroup returns the group an invite token belongs to.
func (s *SQLiteStore) FindInviteGroup(ctx context.Context, token string) (string, error) {
	var groupID string
	err := s.db.QueryRowContext(ctx, "SELECT group_id FROM group_invites WHERE token = ?", token).Scan(&groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("invite: %w", storage.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to find invite: %w", err)
	}
	return groupID, nil
}

func (s *SQLiteStore) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
