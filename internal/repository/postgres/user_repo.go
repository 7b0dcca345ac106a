package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/and161185/retail-desk/internal/errs"
	"github.com/and161185/retail-desk/internal/model"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts the user row and, when present, its wholesaler or local seller profile.
func (r *UserRepo) Create(ctx context.Context, u *model.User, p *model.Profile) error {
	const insUser = `
INSERT INTO users (username, email, phone, pwd_hash, role, active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at`
	const insWholesaler = `
INSERT INTO wholesalers (user_id, business_name, address, gst_number)
VALUES ($1, $2, $3, $4)
RETURNING id`
	const insSeller = `
INSERT INTO local_sellers (user_id, shop_name, address, latitude, longitude)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`

	email := strings.ToLower(strings.TrimSpace(u.Email))
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, insUser, u.Username, email, u.Phone, u.PwdHash, string(u.Role), u.Active).
			Scan(&u.ID, &u.CreatedAt); err != nil {
			return err
		}
		if p == nil {
			return nil
		}
		if w := p.Wholesaler; w != nil {
			w.UserID = u.ID
			return tx.QueryRow(ctx, insWholesaler, w.UserID, w.BusinessName, w.Address, w.GSTNumber).Scan(&w.ID)
		}
		if s := p.LocalSeller; s != nil {
			s.UserID = u.ID
			return tx.QueryRow(ctx, insSeller, s.UserID, s.ShopName, s.Address, s.Latitude, s.Longitude).Scan(&s.ID)
		}
		return nil
	})
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	if err == nil {
		u.Email = email
	}
	return err
}

// GetByEmail selects a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `
SELECT id, username, email, phone, pwd_hash, role, active, created_at
FROM users WHERE email=$1`
	row := r.db.Pool.QueryRow(ctx, q, strings.ToLower(strings.TrimSpace(email)))
	var (
		u    model.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Phone, &u.PwdHash, &role, &u.Active, &u.CreatedAt); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	u.Role = model.Role(role)
	return &u, nil
}

// ExistsByEmail reports whether the email is taken.
func (r *UserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE email=$1)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, strings.ToLower(strings.TrimSpace(email))).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// GetProfile loads the role profile of the user.
func (r *UserRepo) GetProfile(ctx context.Context, userID int64, role model.Role) (model.Profile, error) {
	switch role {
	case model.RoleWholesaler:
		const q = `
SELECT id, user_id, business_name, address, gst_number, active
FROM wholesalers WHERE user_id=$1`
		var w model.Wholesaler
		err := r.db.Pool.QueryRow(ctx, q, userID).Scan(&w.ID, &w.UserID, &w.BusinessName, &w.Address, &w.GSTNumber, &w.Active)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return model.Profile{}, errs.ErrNotFound
			}
			return model.Profile{}, err
		}
		return model.Profile{Wholesaler: &w}, nil
	case model.RoleLocalSeller:
		const q = `
SELECT id, user_id, shop_name, address, latitude, longitude
FROM local_sellers WHERE user_id=$1`
		var s model.LocalSeller
		err := r.db.Pool.QueryRow(ctx, q, userID).Scan(&s.ID, &s.UserID, &s.ShopName, &s.Address, &s.Latitude, &s.Longitude)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return model.Profile{}, errs.ErrNotFound
			}
			return model.Profile{}, err
		}
		return model.Profile{LocalSeller: &s}, nil
	}
	return model.Profile{}, nil
}
