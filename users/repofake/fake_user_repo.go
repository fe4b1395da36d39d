package fakeuserrepo

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/tutorhub-session/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users    map[string]*users.User
	emailIds map[string]string // email to user id
	lock     sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:    make(map[string]*users.User),
		emailIds: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Upsert(user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	stored := user.Clone()
	stored.PasswordHash = user.PasswordHash
	ur.users[user.ID] = stored
	ur.emailIds[normalizeEmail(user.Email)] = user.ID
	return nil
}

func (ur *FakeUserRepo) GetByEmail(email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	userID, ok := ur.emailIds[normalizeEmail(email)]
	if !ok {
		return nil, users.ErrNotFound
	}
	return ur.copyOf(userID)
}

func (ur *FakeUserRepo) GetByID(ID string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	return ur.copyOf(ID)
}

func (ur *FakeUserRepo) SetLastLogin(ID string, at time.Time) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[ID]
	if !ok {
		return users.ErrNotFound
	}
	u.LastLogin = &at
	return nil
}

// copyOf must be called with the lock held.
func (ur *FakeUserRepo) copyOf(ID string) (*users.User, error) {
	u, ok := ur.users[ID]
	if !ok {
		return nil, users.ErrNotFound
	}
	c := u.Clone()
	c.PasswordHash = u.PasswordHash
	return c, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
