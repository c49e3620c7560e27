package content

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/quill/internal/uuid"
	"github.com/jmcleod/quill/storage"
)

// MinPasswordLength is the minimum number of characters in a password.
const MinPasswordLength = 6

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// UserInput creates a user. An empty Role means RoleUser.
type UserInput struct {
	Username string
	Email    string
	Password string
	Role     Role
}

// UserUpdate changes the fields that are non-nil.
type UserUpdate struct {
	Email   *string
	Role    *Role
	Active  *bool
	Version uint64
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return invalid("password", "user.passwordTooShort")
	}
	return nil
}

func validateEmail(email string) error {
	if email != "" && !emailPattern.MatchString(email) {
		return invalid("email", "user.emailInvalid")
	}
	return nil
}

func (in UserInput) normalize() (UserInput, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Role == "" {
		in.Role = RoleUser
	}
	if !usernamePattern.MatchString(in.Username) {
		return in, invalid("username", "user.usernameInvalid")
	}
	if err := validatePassword(in.Password); err != nil {
		return in, err
	}
	if err := validateEmail(in.Email); err != nil {
		return in, err
	}
	if !in.Role.Valid() {
		return in, invalid("role", "user.roleInvalid")
	}
	return in, nil
}

// checkUnique rejects a username or email already used by another user.
func checkUnique(users []User, selfID, username, email string) error {
	for _, u := range users {
		if u.ID == selfID {
			continue
		}
		if username != "" && strings.EqualFold(u.Username, username) {
			return ErrUsernameTaken
		}
		if email != "" && strings.EqualFold(u.Email, email) {
			return ErrEmailTaken
		}
	}
	return nil
}

func countActiveAdmins(users []User) int {
	n := 0
	for _, u := range users {
		if u.IsActiveAdmin() {
			n++
		}
	}
	return n
}

func findUser(users []User, id string) (User, bool) {
	i := slices.IndexFunc(users, func(u User) bool { return u.ID == id })
	if i < 0 {
		return User{}, false
	}
	return users[i], true
}

func (s *Store) CreateUser(ctx context.Context, in UserInput) (User, error) {
	in, err := in.normalize()
	if err != nil {
		return User{}, err
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	now := s.now()
	u := User{
		ID:           uuid.New(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.batch(ctx, func(tx storage.BatchTx) error {
		users, err := loadAll[User](tx, userType)
		if err != nil {
			return err
		}
		if err := checkUnique(users, "", u.Username, u.Email); err != nil {
			return err
		}
		return save(tx, userType, u.ID, 0, u)
	})
	if err != nil {
		return User{}, err
	}
	u.Version = 1
	return u, nil
}

// UpdateUser applies upd to the user. A change that would leave no active
// admin fails with ErrLastAdmin and stores nothing.
func (s *Store) UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error) {
	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		upd.Email = &email
		if err := validateEmail(email); err != nil {
			return User{}, err
		}
	}
	if upd.Role != nil && !upd.Role.Valid() {
		return User{}, invalid("role", "user.roleInvalid")
	}

	var u User
	err := s.batch(ctx, func(tx storage.BatchTx) error {
		users, err := loadAll[User](tx, userType)
		if err != nil {
			return err
		}
		current, ok := findUser(users, id)
		if !ok {
			return fmt.Errorf("%s %s: %w", userType, id, ErrNotFound)
		}
		if err := checkVersion(upd.Version, current.Version); err != nil {
			return err
		}

		u = current
		if upd.Email != nil {
			u.Email = *upd.Email
		}
		if upd.Role != nil {
			u.Role = *upd.Role
		}
		if upd.Active != nil {
			u.Active = *upd.Active
		}

		if current.IsActiveAdmin() && !u.IsActiveAdmin() && countActiveAdmins(users) <= 1 {
			return ErrLastAdmin
		}
		if err := checkUnique(users, id, "", u.Email); err != nil {
			return err
		}
		u.UpdatedAt = s.now()
		if err := save(tx, userType, id, current.Version, u); err != nil {
			return err
		}
		u.Version++
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// SetPassword replaces the user's password hash.
func (s *Store) SetPassword(ctx context.Context, id, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	hash, err := s.hashPassword(password)
	if err != nil {
		return err
	}
	return s.batch(ctx, func(tx storage.BatchTx) error {
		u, err := load[User](tx, userType, id)
		if err != nil {
			return err
		}
		u.PasswordHash = hash
		u.UpdatedAt = s.now()
		return save(tx, userType, id, u.Version, u)
	})
}

// DeleteUser removes a user on behalf of actorID. The last active admin
// and the actor's own account cannot be deleted.
func (s *Store) DeleteUser(ctx context.Context, id, actorID string) error {
	return s.batch(ctx, func(tx storage.BatchTx) error {
		users, err := loadAll[User](tx, userType)
		if err != nil {
			return err
		}
		target, ok := findUser(users, id)
		if !ok {
			return fmt.Errorf("%s %s: %w", userType, id, ErrNotFound)
		}
		if target.IsActiveAdmin() && countActiveAdmins(users) <= 1 {
			return ErrLastAdmin
		}
		if id == actorID {
			return ErrSelfDelete
		}
		return tx.Delete(userType, id)
	})
}

func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	return load[User](s.reader(ctx), userType, id)
}

// ListUsers returns all users, newest first.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	users, err := loadAll[User](s.reader(ctx), userType)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(users, func(a, b User) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return users, nil
}

func (s *Store) CountActiveAdmins(ctx context.Context) (int, error) {
	users, err := loadAll[User](s.reader(ctx), userType)
	if err != nil {
		return 0, err
	}
	return countActiveAdmins(users), nil
}

// Authenticate checks a username and password. Unknown users and wrong
// passwords both yield ErrInvalidCredentials; a disabled account with the
// right password yields ErrUserInactive.
func (s *Store) Authenticate(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	users, err := loadAll[User](s.reader(ctx), userType)
	if err != nil {
		return User{}, err
	}
	i := slices.IndexFunc(users, func(u User) bool { return strings.EqualFold(u.Username, username) })
	if i < 0 {
		s.equalizeTiming(password)
		return User{}, ErrInvalidCredentials
	}
	u := users[i]
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, fmt.Errorf("checking password: %w", err)
	}
	if !u.Active {
		return User{}, ErrUserInactive
	}
	return u, nil
}

// EnsureAdmin makes sure username exists as an active admin with the given
// password, creating the account if needed. It reports whether the user
// was created.
func (s *Store) EnsureAdmin(ctx context.Context, username, email, password string) (User, bool, error) {
	in, err := UserInput{Username: username, Email: email, Password: password, Role: RoleAdmin}.normalize()
	if err != nil {
		return User{}, false, err
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return User{}, false, err
	}

	var (
		u       User
		created bool
	)
	err = s.batch(ctx, func(tx storage.BatchTx) error {
		users, err := loadAll[User](tx, userType)
		if err != nil {
			return err
		}
		now := s.now()
		i := slices.IndexFunc(users, func(u User) bool { return strings.EqualFold(u.Username, in.Username) })
		if i >= 0 {
			u = users[i]
			u.PasswordHash = hash
			u.Role = RoleAdmin
			u.Active = true
			if in.Email != "" {
				if err := checkUnique(users, u.ID, "", in.Email); err != nil {
					return err
				}
				u.Email = in.Email
			}
			u.UpdatedAt = now
			if err := save(tx, userType, u.ID, u.Version, u); err != nil {
				return err
			}
			u.Version++
			return nil
		}
		if err := checkUnique(users, "", "", in.Email); err != nil {
			return err
		}
		created = true
		u = User{
			ID:           uuid.New(),
			Username:     in.Username,
			Email:        in.Email,
			PasswordHash: hash,
			Role:         RoleAdmin,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
			Version:      1,
		}
		return save(tx, userType, u.ID, 0, u)
	})
	if err != nil {
		return User{}, false, err
	}
	return u, created, nil
}
