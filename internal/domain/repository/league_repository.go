package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stepleague/internal/common"
	"stepleague/internal/domain/model"
)

type LeagueRepository interface {
	Create(ctx context.Context, tx *sql.Tx, league *model.League) error
	FindByID(ctx context.Context, id string) (*model.League, error)
	FindBySlug(ctx context.Context, slug string) (*model.League, error)

	AddMember(ctx context.Context, tx *sql.Tx, leagueID, userID string) error
	IsMember(ctx context.Context, leagueID, userID string) (bool, error)
	ListMembers(ctx context.Context, leagueID string) ([]model.LeagueMember, error)
}

type pgLeagueRepository struct {
	db *sql.DB
}

func NewPgLeagueRepository(db *sql.DB) LeagueRepository {
	return &pgLeagueRepository{db: db}
}

func (r *pgLeagueRepository) Create(ctx context.Context, tx *sql.Tx, l *model.League) error {
	query := `INSERT INTO leagues (id, name, slug, start_date, end_date, require_proof, created_by)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          RETURNING created_at`

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRowContext(ctx, query, l.ID, l.Name, l.Slug, l.StartDate, l.EndDate, l.RequireProof, l.CreatedByID)
	} else {
		row = r.db.QueryRowContext(ctx, query, l.ID, l.Name, l.Slug, l.StartDate, l.EndDate, l.RequireProof, l.CreatedByID)
	}
	if err := row.Scan(&l.CreatedAt); err != nil {
		if common.IsUniqueViolation(err) {
			return fmt.Errorf("league with this slug already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgLeagueRepository.Create: %w", err)
	}
	return nil
}

func (r *pgLeagueRepository) FindByID(ctx context.Context, id string) (*model.League, error) {
	return r.findOne(ctx, "FindByID", `WHERE id = $1`, id)
}

func (r *pgLeagueRepository) FindBySlug(ctx context.Context, slug string) (*model.League, error) {
	return r.findOne(ctx, "FindBySlug", `WHERE slug = $1`, slug)
}

func (r *pgLeagueRepository) findOne(ctx context.Context, op, where string, arg interface{}) (*model.League, error) {
	query := `SELECT id, name, slug, start_date, end_date, require_proof, created_by, created_at
	          FROM leagues ` + where
	l := &model.League{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&l.ID, &l.Name, &l.Slug, &l.StartDate, &l.EndDate, &l.RequireProof, &l.CreatedByID, &l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgLeagueRepository.%s: %w", op, err)
	}
	return l, nil
}

// AddMember is idempotent; joining twice is not an error.
func (r *pgLeagueRepository) AddMember(ctx context.Context, tx *sql.Tx, leagueID, userID string) error {
	query := `INSERT INTO league_members (league_id, user_id) VALUES ($1, $2)
	          ON CONFLICT (league_id, user_id) DO NOTHING`
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, leagueID, userID)
	} else {
		_, err = r.db.ExecContext(ctx, query, leagueID, userID)
	}
	if err != nil {
		return fmt.Errorf("pgLeagueRepository.AddMember: %w", err)
	}
	return nil
}

func (r *pgLeagueRepository) IsMember(ctx context.Context, leagueID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM league_members WHERE league_id = $1 AND user_id = $2)`,
		leagueID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pgLeagueRepository.IsMember: %w", err)
	}
	return exists, nil
}

func (r *pgLeagueRepository) ListMembers(ctx context.Context, leagueID string) ([]model.LeagueMember, error) {
	query := `SELECT m.league_id, m.user_id, u.username, m.joined_at
	          FROM league_members m
	          JOIN users u ON u.id = m.user_id
	          WHERE m.league_id = $1
	          ORDER BY m.joined_at, m.user_id`
	rows, err := r.db.QueryContext(ctx, query, leagueID)
	if err != nil {
		return nil, fmt.Errorf("pgLeagueRepository.ListMembers query: %w", err)
	}
	defer rows.Close()

	members := []model.LeagueMember{}
	for rows.Next() {
		var m model.LeagueMember
		if err := rows.Scan(&m.LeagueID, &m.UserID, &m.Username, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("pgLeagueRepository.ListMembers scan: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgLeagueRepository.ListMembers rows: %w", err)
	}
	return members, nil
}
