package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyPathAPI/internal/types/admin"
	"studyPathAPI/internal/types/challenge"
	"studyPathAPI/internal/types/goal"
)

// AdminService owns content authoring: challenges, objectives, goals, steps,
// and the links that chain them. Student progress tables are never touched
// here.
type AdminService struct {
	db *pgxpool.Pool
}

func NewAdminService(db *pgxpool.Pool) *AdminService {
	return &AdminService{db: db}
}

// pg error codes used to translate constraint violations into the service
// error taxonomy.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func translateConstraintErr(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s already exists: %w", what, ErrConflict)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s references a missing row: %w", what, ErrNotFound)
		}
	}
	return err
}

func boolOrDefault(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}

// ListChallenges returns all challenges including hidden and inactive ones.
func (s *AdminService) ListChallenges(ctx context.Context) ([]*challenge.Challenge, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+challengeColumns+`
		FROM challenges c
		ORDER BY c.sort_order, c.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query challenges: %w", err)
	}
	defer rows.Close()

	var out []*challenge.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *AdminService) CreateChallenge(ctx context.Context, req *admin.CreateChallengeRequest) (*challenge.Challenge, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("challenge title is required: %w", ErrInvalidState)
	}

	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO challenges
			(title, description, goal_id, next_challenge_id, sort_order,
			 visible_to_students, is_active, points, category,
			 due_date, start_date, expires_at, recurrence_days, recurrence_limit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`, req.Title, req.Description, req.GoalID, req.NextChallengeID, req.SortOrder,
		boolOrDefault(req.VisibleToStudents, true), boolOrDefault(req.IsActive, true),
		req.Points, req.Category, req.DueDate, req.StartDate, req.ExpiresAt,
		req.RecurrenceDays, req.RecurrenceLimit).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", translateConstraintErr(err, "challenge"))
	}
	return s.GetChallenge(ctx, id)
}

func (s *AdminService) GetChallenge(ctx context.Context, id int64) (*challenge.Challenge, error) {
	c, err := scanChallenge(s.db.QueryRow(ctx,
		`SELECT `+challengeColumns+` FROM challenges c WHERE c.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("challenge %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	return c, nil
}

func (s *AdminService) UpdateChallenge(ctx context.Context, id int64, req *admin.UpdateChallengeRequest) (*challenge.Challenge, error) {
	updates := []string{}
	args := []interface{}{id}
	argCount := 2

	set := func(col string, val interface{}) {
		updates = append(updates, fmt.Sprintf("%s = $%d", col, argCount))
		args = append(args, val)
		argCount++
	}

	if req.Title != nil {
		set("title", *req.Title)
	}
	if req.Description != nil {
		set("description", *req.Description)
	}
	if req.GoalID != nil {
		set("goal_id", *req.GoalID)
	}
	if req.ClearNext {
		updates = append(updates, "next_challenge_id = NULL")
	} else if req.NextChallengeID != nil {
		set("next_challenge_id", *req.NextChallengeID)
	}
	if req.SortOrder != nil {
		set("sort_order", *req.SortOrder)
	}
	if req.VisibleToStudents != nil {
		set("visible_to_students", *req.VisibleToStudents)
	}
	if req.IsActive != nil {
		set("is_active", *req.IsActive)
	}
	if req.Points != nil {
		set("points", *req.Points)
	}
	if req.Category != nil {
		set("category", *req.Category)
	}
	if req.ClearDueDate {
		updates = append(updates, "due_date = NULL")
	} else if req.DueDate != nil {
		set("due_date", *req.DueDate)
	}
	if req.StartDate != nil {
		set("start_date", *req.StartDate)
	}
	if req.ExpiresAt != nil {
		set("expires_at", *req.ExpiresAt)
	}
	if req.RecurrenceDays != nil {
		set("recurrence_days", *req.RecurrenceDays)
	}
	if req.RecurrenceLimit != nil {
		set("recurrence_limit", *req.RecurrenceLimit)
	}

	if len(updates) == 0 {
		return s.GetChallenge(ctx, id)
	}

	query := fmt.Sprintf("UPDATE challenges SET %s WHERE id = $1 RETURNING id", strings.Join(updates, ", "))
	var updatedID int64
	err := s.db.QueryRow(ctx, query, args...).Scan(&updatedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("challenge %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update challenge: %w", translateConstraintErr(err, "challenge"))
	}
	return s.GetChallenge(ctx, id)
}

// DeleteChallenge removes a challenge; objectives, links, progress rows, and
// snoozes go with it via ON DELETE CASCADE.
func (s *AdminService) DeleteChallenge(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM challenges WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("challenge %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *AdminService) CreateObjective(ctx context.Context, req *admin.CreateObjectiveRequest) (*challenge.Objective, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("objective title is required: %w", ErrInvalidState)
	}

	o := &challenge.Objective{}
	err := s.db.QueryRow(ctx, `
		INSERT INTO objectives (challenge_id, title, description, points, sort_order, is_required)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, challenge_id, title, description, points, sort_order, is_required
	`, req.ChallengeID, req.Title, req.Description, req.Points, req.SortOrder,
		boolOrDefault(req.IsRequired, true)).Scan(
		&o.ID, &o.ChallengeID, &o.Title, &o.Description, &o.Points, &o.SortOrder, &o.IsRequired)
	if err != nil {
		return nil, fmt.Errorf("failed to create objective: %w", translateConstraintErr(err, "objective"))
	}
	return o, nil
}

func (s *AdminService) UpdateObjective(ctx context.Context, id int64, req *admin.UpdateObjectiveRequest) (*challenge.Objective, error) {
	updates := []string{}
	args := []interface{}{id}
	argCount := 2

	set := func(col string, val interface{}) {
		updates = append(updates, fmt.Sprintf("%s = $%d", col, argCount))
		args = append(args, val)
		argCount++
	}

	if req.Title != nil {
		set("title", *req.Title)
	}
	if req.Description != nil {
		set("description", *req.Description)
	}
	if req.Points != nil {
		set("points", *req.Points)
	}
	if req.SortOrder != nil {
		set("sort_order", *req.SortOrder)
	}
	if req.IsRequired != nil {
		set("is_required", *req.IsRequired)
	}

	query := "SELECT id, challenge_id, title, description, points, sort_order, is_required FROM objectives WHERE id = $1"
	if len(updates) > 0 {
		query = fmt.Sprintf(`
			UPDATE objectives SET %s WHERE id = $1
			RETURNING id, challenge_id, title, description, points, sort_order, is_required
		`, strings.Join(updates, ", "))
	}

	o := &challenge.Objective{}
	err := s.db.QueryRow(ctx, query, args...).Scan(
		&o.ID, &o.ChallengeID, &o.Title, &o.Description, &o.Points, &o.SortOrder, &o.IsRequired)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("objective %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update objective: %w", err)
	}
	return o, nil
}

func (s *AdminService) DeleteObjective(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM objectives WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete objective: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("objective %d: %w", id, ErrNotFound)
	}
	return nil
}

// CreateChallengeLink chains two challenges. The unique (from, condition)
// index keeps chains linear; a second link on the same condition is a
// conflict, not a silent overwrite.
func (s *AdminService) CreateChallengeLink(ctx context.Context, req *admin.CreateLinkRequest) (*challenge.ChallengeLink, error) {
	cond := req.Condition
	if cond == "" {
		cond = challenge.ConditionOnComplete
	}
	if req.FromID == req.ToID {
		return nil, fmt.Errorf("challenge cannot link to itself: %w", ErrInvalidState)
	}

	l := &challenge.ChallengeLink{}
	err := s.db.QueryRow(ctx, `
		INSERT INTO challenge_links (from_challenge_id, to_challenge_id, condition)
		VALUES ($1, $2, $3)
		RETURNING id, from_challenge_id, to_challenge_id, condition
	`, req.FromID, req.ToID, cond).Scan(&l.ID, &l.FromChallengeID, &l.ToChallengeID, &l.Condition)
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge link: %w", translateConstraintErr(err, "challenge link"))
	}
	return l, nil
}

func (s *AdminService) DeleteChallengeLink(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM challenge_links WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete challenge link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("challenge link %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *AdminService) ListGoals(ctx context.Context) ([]*goal.Goal, error) {
	rows, err := s.db.Query(ctx, `SELECT `+goalColumns+` FROM goals ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	var out []*goal.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *AdminService) CreateGoal(ctx context.Context, req *admin.CreateGoalRequest) (*goal.Goal, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("goal title is required: %w", ErrInvalidState)
	}

	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO goals
			(title, description, is_active, sort_order, start_date, expires_at,
			 recurrence_days, recurrence_limit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, req.Title, req.Description, boolOrDefault(req.IsActive, true), req.SortOrder,
		req.StartDate, req.ExpiresAt, req.RecurrenceDays, req.RecurrenceLimit).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create goal: %w", translateConstraintErr(err, "goal"))
	}

	g, err := scanGoal(s.db.QueryRow(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to load created goal: %w", err)
	}
	return g, nil
}

func (s *AdminService) UpdateGoal(ctx context.Context, id int64, req *admin.UpdateGoalRequest) (*goal.Goal, error) {
	updates := []string{}
	args := []interface{}{id}
	argCount := 2

	set := func(col string, val interface{}) {
		updates = append(updates, fmt.Sprintf("%s = $%d", col, argCount))
		args = append(args, val)
		argCount++
	}

	if req.Title != nil {
		set("title", *req.Title)
	}
	if req.Description != nil {
		set("description", *req.Description)
	}
	if req.IsActive != nil {
		set("is_active", *req.IsActive)
	}
	if req.SortOrder != nil {
		set("sort_order", *req.SortOrder)
	}
	if req.StartDate != nil {
		set("start_date", *req.StartDate)
	}
	if req.ExpiresAt != nil {
		set("expires_at", *req.ExpiresAt)
	}
	if req.RecurrenceDays != nil {
		set("recurrence_days", *req.RecurrenceDays)
	}
	if req.RecurrenceLimit != nil {
		set("recurrence_limit", *req.RecurrenceLimit)
	}

	if len(updates) > 0 {
		query := fmt.Sprintf("UPDATE goals SET %s WHERE id = $1 RETURNING id", strings.Join(updates, ", "))
		var updatedID int64
		if err := s.db.QueryRow(ctx, query, args...).Scan(&updatedID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("goal %d: %w", id, ErrNotFound)
			}
			return nil, fmt.Errorf("failed to update goal: %w", err)
		}
	}

	g, err := scanGoal(s.db.QueryRow(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("goal %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load goal: %w", err)
	}
	return g, nil
}

func (s *AdminService) DeleteGoal(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM goals WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete goal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("goal %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *AdminService) CreateGoalStep(ctx context.Context, req *admin.CreateGoalStepRequest) (*goal.GoalStep, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("step title is required: %w", ErrInvalidState)
	}

	st := &goal.GoalStep{}
	err := s.db.QueryRow(ctx, `
		INSERT INTO goal_steps (goal_id, title, description, points, sort_order, is_required)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, goal_id, title, description, points, sort_order, is_required
	`, req.GoalID, req.Title, req.Description, req.Points, req.SortOrder,
		boolOrDefault(req.IsRequired, true)).Scan(
		&st.ID, &st.GoalID, &st.Title, &st.Description, &st.Points, &st.SortOrder, &st.IsRequired)
	if err != nil {
		return nil, fmt.Errorf("failed to create goal step: %w", translateConstraintErr(err, "goal step"))
	}
	return st, nil
}

func (s *AdminService) UpdateGoalStep(ctx context.Context, id int64, req *admin.UpdateGoalStepRequest) (*goal.GoalStep, error) {
	updates := []string{}
	args := []interface{}{id}
	argCount := 2

	set := func(col string, val interface{}) {
		updates = append(updates, fmt.Sprintf("%s = $%d", col, argCount))
		args = append(args, val)
		argCount++
	}

	if req.Title != nil {
		set("title", *req.Title)
	}
	if req.Description != nil {
		set("description", *req.Description)
	}
	if req.Points != nil {
		set("points", *req.Points)
	}
	if req.SortOrder != nil {
		set("sort_order", *req.SortOrder)
	}
	if req.IsRequired != nil {
		set("is_required", *req.IsRequired)
	}

	query := "SELECT id, goal_id, title, description, points, sort_order, is_required FROM goal_steps WHERE id = $1"
	if len(updates) > 0 {
		query = fmt.Sprintf(`
			UPDATE goal_steps SET %s WHERE id = $1
			RETURNING id, goal_id, title, description, points, sort_order, is_required
		`, strings.Join(updates, ", "))
	}

	st := &goal.GoalStep{}
	err := s.db.QueryRow(ctx, query, args...).Scan(
		&st.ID, &st.GoalID, &st.Title, &st.Description, &st.Points, &st.SortOrder, &st.IsRequired)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("goal step %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update goal step: %w", err)
	}
	return st, nil
}

func (s *AdminService) DeleteGoalStep(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM goal_steps WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete goal step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("goal step %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *AdminService) CreateGoalLink(ctx context.Context, req *admin.CreateLinkRequest) (*goal.GoalLink, error) {
	cond := req.Condition
	if cond == "" {
		cond = goal.ConditionOnComplete
	}
	if req.FromID == req.ToID {
		return nil, fmt.Errorf("goal cannot link to itself: %w", ErrInvalidState)
	}

	l := &goal.GoalLink{}
	err := s.db.QueryRow(ctx, `
		INSERT INTO goal_links (from_goal_id, to_goal_id, condition)
		VALUES ($1, $2, $3)
		RETURNING id, from_goal_id, to_goal_id, condition
	`, req.FromID, req.ToID, cond).Scan(&l.ID, &l.FromGoalID, &l.ToGoalID, &l.Condition)
	if err != nil {
		return nil, fmt.Errorf("failed to create goal link: %w", translateConstraintErr(err, "goal link"))
	}
	return l, nil
}

func (s *AdminService) DeleteGoalLink(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM goal_links WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete goal link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("goal link %d: %w", id, ErrNotFound)
	}
	return nil
}
