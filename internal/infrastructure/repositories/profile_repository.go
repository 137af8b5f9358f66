package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avatarctic/herdbook/go/internal/core/domain/access"
	"github.com/avatarctic/herdbook/go/internal/core/ports"
	"github.com/avatarctic/herdbook/go/internal/infrastructure/db"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// ProfileRepository stores access profiles and their grants in PostgreSQL.
// Writes run at SERIALIZABLE isolation; callers retry on transient errors.
type ProfileRepository struct {
	db     *db.Database
	logger *logrus.Logger
}

func NewProfileRepository(database *db.Database, logger *logrus.Logger) ports.ProfileRepository {
	return &ProfileRepository{
		db:     database,
		logger: logger,
	}
}

const profileColumns = `id, org_id, name, description, created_at, updated_at`

type accessControlRow struct {
	ProfileID uuid.UUID `db:"profile_id"`
	access.AccessControl
}

func (r *ProfileRepository) List(ctx context.Context, orgID uuid.UUID) ([]*access.AccessProfile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM access_profiles
		WHERE org_id = $1
		ORDER BY name`

	var profiles []*access.AccessProfile
	if err := r.db.DB.SelectContext(ctx, &profiles, query, orgID); err != nil {
		return nil, r.fail("list profiles", logrus.Fields{"org_id": orgID}, err)
	}
	if len(profiles) == 0 {
		return []*access.AccessProfile{}, nil
	}

	ids := make([]string, 0, len(profiles))
	byID := make(map[uuid.UUID]*access.AccessProfile, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.ID.String())
		byID[p.ID] = p
		p.AccessControls = []access.AccessControl{}
	}
	var rows []accessControlRow
	grantsQuery := `
		SELECT profile_id, resource, can_view, can_edit, can_delete, description
		FROM access_controls
		WHERE profile_id = ANY($1::uuid[])
		ORDER BY profile_id, position`
	if err := r.db.DB.SelectContext(ctx, &rows, grantsQuery, pq.Array(ids)); err != nil {
		return nil, r.fail("list grants", logrus.Fields{"org_id": orgID}, err)
	}
	for _, row := range rows {
		if p, ok := byID[row.ProfileID]; ok {
			p.AccessControls = append(p.AccessControls, row.AccessControl)
		}
	}
	return profiles, nil
}

func (r *ProfileRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*access.AccessProfile, error) {
	p, err := r.load(ctx, r.db.DB, orgID, id, false)
	if err != nil {
		return nil, r.fail("get profile", logrus.Fields{"org_id": orgID, "profile_id": id}, err)
	}
	return p, nil
}

func (r *ProfileRepository) Create(ctx context.Context, p *access.AccessProfile) error {
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO access_profiles (id, org_id, name, description, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)`
		if _, err := tx.ExecContext(ctx, query, p.ID, p.OrgID, p.Name, p.Description, p.CreatedAt, p.UpdatedAt); err != nil {
			return err
		}
		return insertGrants(ctx, tx, p.ID, p.AccessControls)
	})
	if err != nil {
		return r.fail("create profile", logrus.Fields{"org_id": p.OrgID, "name": p.Name}, err)
	}
	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{"org_id": p.OrgID, "profile_id": p.ID}).Info("db: access profile created")
	}
	return nil
}

// Update merges patch into the locked row and writes only when content differs.
// Grants are rewritten only when they changed.
func (r *ProfileRepository) Update(ctx context.Context, orgID, id uuid.UUID, patch access.ProfilePatch) (*access.AccessProfile, bool, error) {
	var (
		result  *access.AccessProfile
		changed bool
	)
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		result, changed = nil, false
		stored, err := r.load(ctx, tx, orgID, id, true)
		if err != nil {
			return err
		}
		next := patch.Apply(stored)
		if stored.SameContent(next) {
			result = stored
			return nil
		}

		query := `
			UPDATE access_profiles
			SET name = $3, description = $4, updated_at = $5
			WHERE org_id = $1 AND id = $2`
		if _, err := tx.ExecContext(ctx, query, orgID, id, next.Name, next.Description, next.UpdatedAt); err != nil {
			return err
		}
		if !access.GrantsEqual(stored.AccessControls, next.AccessControls) {
			if _, err := tx.ExecContext(ctx, `DELETE FROM access_controls WHERE profile_id = $1`, id); err != nil {
				return err
			}
			if err := insertGrants(ctx, tx, id, next.AccessControls); err != nil {
				return err
			}
		}
		result, changed = next, true
		return nil
	})
	if err != nil {
		return nil, false, r.fail("update profile", logrus.Fields{"org_id": orgID, "profile_id": id}, err)
	}
	return result, changed, nil
}

// Delete removes a profile, moving its users to reassignTo when given.
// The in-use check and the delete share one transaction.
func (r *ProfileRepository) Delete(ctx context.Context, orgID, id uuid.UUID, reassignTo *uuid.UUID) ([]uuid.UUID, error) {
	var reassigned []uuid.UUID
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		reassigned = nil
		if err := lockProfile(ctx, tx, orgID, id, "FOR UPDATE"); err != nil {
			return err
		}

		if reassignTo == nil {
			var bound int
			countQuery := `SELECT COUNT(*) FROM users WHERE org_id = $1 AND access_profile_id = $2`
			if err := tx.GetContext(ctx, &bound, countQuery, orgID, id); err != nil {
				return err
			}
			if bound > 0 {
				return ports.NewValidationError(ports.CodeInUse, fmt.Sprintf("profile is bound to %d user(s)", bound))
			}
		} else {
			if err := lockProfile(ctx, tx, orgID, *reassignTo, "FOR SHARE"); err != nil {
				if ports.KindOf(err) == ports.KindNotFound {
					return ports.NewValidationError(ports.CodeInvalidReassignment, "reassignment target not found")
				}
				return err
			}
			moveQuery := `
				UPDATE users
				SET access_profile_id = $3, updated_at = NOW()
				WHERE org_id = $1 AND access_profile_id = $2
				RETURNING id`
			if err := tx.SelectContext(ctx, &reassigned, moveQuery, orgID, id, *reassignTo); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx, `DELETE FROM access_profiles WHERE org_id = $1 AND id = $2`, orgID, id)
		return err
	})
	if err != nil {
		if pqCode(err) == sqlStateForeignKeyViolation {
			// a user was bound concurrently
			err = ports.NewValidationError(ports.CodeInUse, "profile is bound to users")
		}
		return nil, r.fail("delete profile", logrus.Fields{"org_id": orgID, "profile_id": id}, err)
	}
	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{"org_id": orgID, "profile_id": id, "reassigned": len(reassigned)}).Info("db: access profile deleted")
	}
	return reassigned, nil
}

// BindUser points a user at a profile. Both rows must belong to orgID.
func (r *ProfileRepository) BindUser(ctx context.Context, orgID, userID, profileID uuid.UUID) error {
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := lockProfile(ctx, tx, orgID, profileID, "FOR SHARE"); err != nil {
			return err
		}
		query := `
			UPDATE users
			SET access_profile_id = $3, updated_at = NOW()
			WHERE org_id = $1 AND id = $2`
		res, err := tx.ExecContext(ctx, query, orgID, userID, profileID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return ports.NewNotFoundError("user not found")
		}
		return nil
	})
	if err != nil {
		if pqCode(err) == sqlStateForeignKeyViolation {
			err = ports.NewNotFoundError("access profile not found")
		}
		return r.fail("bind user", logrus.Fields{"org_id": orgID, "user_id": userID, "profile_id": profileID}, err)
	}
	return nil
}

// load reads a profile and its grants. forUpdate locks the profile row.
func (r *ProfileRepository) load(ctx context.Context, q sqlx.QueryerContext, orgID, id uuid.UUID, forUpdate bool) (*access.AccessProfile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM access_profiles
		WHERE org_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var p access.AccessProfile
	if err := sqlx.GetContext(ctx, q, &p, query, orgID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.NewNotFoundError("access profile not found")
		}
		return nil, err
	}

	grantsQuery := `
		SELECT resource, can_view, can_edit, can_delete, description
		FROM access_controls
		WHERE profile_id = $1
		ORDER BY position`
	grants := []access.AccessControl{}
	if err := sqlx.SelectContext(ctx, q, &grants, grantsQuery, id); err != nil {
		return nil, err
	}
	p.AccessControls = grants
	return &p, nil
}

func lockProfile(ctx context.Context, tx *sqlx.Tx, orgID, id uuid.UUID, lock string) error {
	var found uuid.UUID
	query := `SELECT id FROM access_profiles WHERE org_id = $1 AND id = $2 ` + lock
	if err := tx.GetContext(ctx, &found, query, orgID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ports.NewNotFoundError("access profile not found")
		}
		return err
	}
	return nil
}

func insertGrants(ctx context.Context, tx *sqlx.Tx, profileID uuid.UUID, grants []access.AccessControl) error {
	query := `
		INSERT INTO access_controls (profile_id, resource, can_view, can_edit, can_delete, description, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for i, g := range grants {
		if _, err := tx.ExecContext(ctx, query, profileID, g.Resource, g.CanView, g.CanEdit, g.CanDelete, g.Description, i); err != nil {
			return err
		}
	}
	return nil
}

func (r *ProfileRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginSerializable(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *ProfileRepository) fail(op string, fields logrus.Fields, err error) error {
	out := classify("failed to "+op, err)
	if r.logger != nil {
		entry := r.logger.WithFields(fields).WithError(err)
		if ports.KindOf(out) == ports.KindStore {
			entry.WithField("transient", ports.IsTransient(out)).Error("db: failed to " + op)
		} else {
			entry.Debug("db: " + op + " rejected")
		}
	}
	return out
}
