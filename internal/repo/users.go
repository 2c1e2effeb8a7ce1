package repo

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"detailcrm/pkg/domain"
)

// NewUser is the user creation request.
type NewUser struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Role     domain.Role `json:"role"`
	Password string      `json:"password,omitempty"`
}

// Users is the account repository. Listed users never carry password
// hashes.
type Users struct {
	env    Env
	table  *Table[domain.User]
	alerts *Alerts
}

// NewUsers builds the user repository.
func NewUsers(env Env, alerts *Alerts) *Users {
	u := &Users{env: env, alerts: alerts}
	u.table = NewTable(env, domain.KeyUsers, "user", "u",
		func(u domain.User) string { return u.ID },
		WithSeed(u.seedRows), WithValidator(uniqueEmail))
	return u
}

func uniqueEmail(rows []domain.User, idx int, u domain.User) error {
	if idx >= 0 {
		return nil
	}
	for _, existing := range rows {
		if strings.EqualFold(existing.Email, u.Email) {
			return &domain.Error{Code: domain.CodeDuplicateEmail, Entity: "user", ID: u.Email}
		}
	}
	return nil
}

func (r *Users) seedRows() []domain.User {
	now := r.env.now()
	var rows []domain.User
	for _, su := range r.env.catalog().Users {
		u := su.User
		u.Email = strings.ToLower(u.Email)
		u.CreatedAt, u.UpdatedAt = now, now
		if su.Password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(su.Password), bcrypt.DefaultCost)
			if err != nil {
				r.env.logger().Error("hash seed password", "user", u.ID, "error", err)
				continue
			}
			u.PasswordHash = string(hash)
		}
		rows = append(rows, u)
	}
	return rows
}

// List returns every user, redacted.
func (r *Users) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.table.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.User, len(rows))
	for i, u := range rows {
		out[i] = u.Redacted()
	}
	return out, nil
}

// Find returns a user by id, redacted.
func (r *Users) Find(ctx context.Context, id string) (domain.User, bool, error) {
	u, ok, err := r.table.Find(ctx, id)
	return u.Redacted(), ok, err
}

// Create adds an account. Email uniqueness is case-insensitive.
func (r *Users) Create(ctx context.Context, in NewUser) (domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || strings.TrimSpace(in.Name) == "" {
		return domain.User{}, domain.Invalid("name and email are required")
	}
	if in.Role == "" {
		in.Role = domain.RoleEmployee
	}
	if !in.Role.Valid() {
		return domain.User{}, &domain.Error{Code: domain.CodeInvalidRole, Entity: "user", ID: string(in.Role)}
	}
	patch := Patch{"name": strings.TrimSpace(in.Name), "email": email, "role": string(in.Role)}
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.User{}, domain.Invalid("password: %v", err)
		}
		patch["passwordHash"] = string(hash)
	}
	u, _, err := r.table.Upsert(ctx, patch)
	if err != nil {
		return domain.User{}, err
	}
	r.alerts.Notify(ctx, AlertInput{
		Type:       AlertUserCreated,
		Message:    "New user: " + u.Name + " (" + string(u.Role) + ")",
		Source:     "users",
		RecordType: "user",
		Payload:    map[string]string{"id": u.ID, "email": u.Email, "role": string(u.Role)},
	})
	return u.Redacted(), nil
}

// SetRole changes a user's role.
func (r *Users) SetRole(ctx context.Context, id string, role domain.Role) (domain.User, error) {
	if !role.Valid() {
		return domain.User{}, &domain.Error{Code: domain.CodeInvalidRole, Entity: "user", ID: string(role)}
	}
	u, err := r.table.Update(ctx, id, Patch{"role": string(role)})
	return u.Redacted(), err
}

// TouchLogin stamps lastLogin.
func (r *Users) TouchLogin(ctx context.Context, id string) error {
	_, err := r.table.Update(ctx, id, Patch{"lastLogin": r.env.now()})
	return err
}

// VerifyPassword checks password against the stored hash.
func (r *Users) VerifyPassword(ctx context.Context, email, password string) (domain.User, bool, error) {
	rows, err := r.table.List(ctx)
	if err != nil {
		return domain.User{}, false, err
	}
	for _, u := range rows {
		if !strings.EqualFold(u.Email, strings.TrimSpace(email)) || u.PasswordHash == "" {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil {
			return u.Redacted(), true, nil
		}
		return domain.User{}, false, nil
	}
	return domain.User{}, false, nil
}

// Remove deletes a user.
func (r *Users) Remove(ctx context.Context, id string) (bool, error) {
	return r.table.Remove(ctx, id)
}
