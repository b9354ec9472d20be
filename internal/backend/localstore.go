package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"connectkids/internal/model"
)

const localIssuer = "connectkids-local"

// LocalOptions configures the development backend.
type LocalOptions struct {
	Path         string
	Secret       []byte
	SeedPassword string
	TokenTTL     time.Duration
	LoginPath    string
}

// LocalStore implements Client and PasswordLogin on a SQLite file so the
// site can run without the hosted service.
type LocalStore struct {
	db        *sql.DB
	secret    []byte
	tokenTTL  time.Duration
	loginPath string
	logger    *slog.Logger
	now       func() time.Time
}

// OpenLocal opens (creating and seeding if needed) the SQLite database.
func OpenLocal(ctx context.Context, opts LocalOptions, logger *slog.Logger) (*LocalStore, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("local backend: session secret is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}

	db, err := sql.Open("sqlite3", opts.Path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer keeps SQLite's locking out of the request path
	db.SetMaxOpenConns(1)

	s := &LocalStore{
		db:        db,
		secret:    opts.Secret,
		tokenTTL:  opts.TokenTTL,
		loginPath: opts.LoginPath,
		logger:    logger,
		now:       time.Now,
	}

	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	if err := s.seedData(ctx, opts.SeedPassword); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed data: %w", err)
	}
	return s, nil
}

func (s *LocalStore) Close() error {
	return s.db.Close()
}

func (s *LocalStore) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		user_type TEXT NOT NULL DEFAULT '' CHECK(user_type IN ('', 'organizer', 'parent')),
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS opportunities (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		age_range TEXT NOT NULL CHECK(age_range IN ('6-8', '9-11', '12-14', '15-18')),
		interest TEXT NOT NULL CHECK(interest IN ('arts', 'music', 'stem', 'sports', 'coding')),
		description TEXT NOT NULL,
		link TEXT NOT NULL,
		organization TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_opportunities_created ON opportunities(created_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *LocalStore) seedData(ctx context.Context, password string) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if password == "" {
		return errors.New("seed password is required for an empty database")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	users := []struct {
		email string
		name  string
		role  model.Role
	}{
		{"organizer@connectkids.org", "Olivia Organizer", model.RoleOrganizer},
		{"parent@connectkids.org", "Pat Parent", model.RoleParent},
		{"new@connectkids.org", "Newcomer", ""},
	}
	for _, u := range users {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO users (email, password, full_name, user_type) VALUES (?, ?, ?, ?)",
			u.email, string(hashed), u.name, string(u.role))
		if err != nil {
			return fmt.Errorf("insert user %s: %w", u.email, err)
		}
	}

	samples := []model.Draft{
		{
			Title:        "Saturday Robotics Club",
			AgeRange:     model.Age12to14,
			Interest:     model.InterestSTEM,
			Description:  "Build and program small robots with volunteer engineers.",
			Link:         "https://example.org/robotics",
			Organization: "Makers Library",
		},
		{
			Title:        "Community Youth Choir",
			AgeRange:     model.Age9to11,
			Interest:     model.InterestMusic,
			Description:  "Weekly rehearsals and two free concerts a year.",
			Link:         "https://example.org/choir",
			Organization: "Eastside Arts Center",
		},
	}
	for _, d := range samples {
		if _, err := s.insertOpportunity(ctx, d, users[0].email); err != nil {
			s.logger.Warn("seed opportunity", "title", d.Title, "error", err)
		}
	}

	s.logger.Info("local backend seeded", "users", len(users), "opportunities", len(samples))
	return nil
}

// Login checks the password and issues a session token.
func (s *LocalStore) Login(ctx context.Context, email, password string) (string, error) {
	var id int64
	var hashed string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, password FROM users WHERE email = ?", email).Scan(&id, &hashed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    localIssuer,
		Subject:   strconv.FormatInt(id, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func (s *LocalStore) userID(token string) (int64, error) {
	if token == "" {
		return 0, ErrUnauthenticated
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(localIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", ErrUnauthenticated)
	}
	return id, nil
}

func (s *LocalStore) Me(ctx context.Context, token string) (model.User, error) {
	id, err := s.userID(token)
	if err != nil {
		return model.User{}, err
	}
	return s.loadUser(ctx, id)
}

func (s *LocalStore) loadUser(ctx context.Context, id int64) (model.User, error) {
	var u model.User
	var role string
	err := s.db.QueryRowContext(ctx,
		"SELECT email, full_name, user_type FROM users WHERE id = ?", id).Scan(&u.Email, &u.FullName, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrUnauthenticated
	}
	if err != nil {
		return model.User{}, fmt.Errorf("load user: %w", err)
	}
	u.ID = strconv.FormatInt(id, 10)
	u.Role = model.Role(role)
	return u, nil
}

func (s *LocalStore) UpdateMe(ctx context.Context, token string, update model.ProfileUpdate) (model.User, error) {
	id, err := s.userID(token)
	if err != nil {
		return model.User{}, err
	}
	if !model.ValidRole(update.Role) {
		return model.User{}, &StatusError{Op: "auth.updateMe", Status: http.StatusBadRequest, Body: "unknown user_type"}
	}
	// the role is chosen once; switching parent to organizer is not a profile edit
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET user_type = ? WHERE id = ? AND user_type = ''", string(update.Role), id)
	if err != nil {
		return model.User{}, fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.User{}, fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return model.User{}, &StatusError{Op: "auth.updateMe", Status: http.StatusConflict, Body: "user_type already set"}
	}
	return s.loadUser(ctx, id)
}

func (s *LocalStore) LoginURL(returnURL string) string {
	return s.loginPath + "?from_url=" + url.QueryEscape(returnURL)
}

// CreateOpportunity stores d for the signed-in organizer.
func (s *LocalStore) CreateOpportunity(ctx context.Context, token string, d model.Draft) (model.Opportunity, error) {
	user, err := s.Me(ctx, token)
	if err != nil {
		return model.Opportunity{}, err
	}
	if user.Role != model.RoleOrganizer {
		return model.Opportunity{}, &StatusError{Op: "Opportunity.create", Status: http.StatusForbidden, Body: "organizers only"}
	}
	return s.insertOpportunity(ctx, d, user.Email)
}

func (s *LocalStore) insertOpportunity(ctx context.Context, d model.Draft, createdBy string) (model.Opportunity, error) {
	rec := model.Opportunity{
		Draft:       d,
		ID:          uuid.NewString(),
		CreatedBy:   createdBy,
		CreatedDate: s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO opportunities (id, title, age_range, interest, description, link, organization, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, d.Title, string(d.AgeRange), string(d.Interest), d.Description, d.Link, d.Organization, createdBy, rec.CreatedDate)
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("insert opportunity: %w", err)
	}
	return rec, nil
}

// ListOpportunities returns every listing, newest first.
func (s *LocalStore) ListOpportunities(ctx context.Context, _ string) ([]model.Opportunity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, age_range, interest, description, link, organization, created_by, created_at
		FROM opportunities
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()

	var out []model.Opportunity
	for rows.Next() {
		var rec model.Opportunity
		var age, interest string
		if err := rows.Scan(&rec.ID, &rec.Title, &age, &interest, &rec.Description,
			&rec.Link, &rec.Organization, &rec.CreatedBy, &rec.CreatedDate); err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		rec.AgeRange = model.AgeRange(age)
		rec.Interest = model.Interest(interest)
		out = append(out, rec)
	}
	return out, rows.Err()
}

var (
	_ Client        = (*LocalStore)(nil)
	_ PasswordLogin = (*LocalStore)(nil)
	_ Client        = (*HTTPClient)(nil)
)
