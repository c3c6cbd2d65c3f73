// Package accounts holds the organisations and their members served by the demo server.
package accounts

import (
	"strings"
	"time"

	"firestore-dao/internal/dao"
	"firestore-dao/internal/dao/domain/model"
	"firestore-dao/internal/dao/domain/repository"
)

// Collection templates.
const (
	OrgsTemplate  = "orgs"
	UsersTemplate = "orgs/?/users"
)

// Plans an organisation can subscribe to.
const (
	PlanFree       = "free"
	PlanTeam       = "team"
	PlanEnterprise = "enterprise"
)

// Org is an organisation document.
type Org struct {
	model.Base
	Name      string    `firestore:"name" validate:"size(value) >= 2"`
	Plan      string    `firestore:"plan,omitempty" validate:"value in ['free', 'team', 'enterprise']"`
	Seats     int       `firestore:"seats,omitempty" validate:"value > 0"`
	CreatedAt time.Time `firestore:"createdAt,omitempty"`
}

// Profile is the public part of a user.
type Profile struct {
	DisplayName string `firestore:"displayName,omitempty"`
	Locale      string `firestore:"locale,omitempty"`
}

// User is a member of an organisation, stored under orgs/{org}/users.
type User struct {
	model.Base
	Email   string   `firestore:"email" validate:"value.matches('^[^@ ]+@[^@ ]+$')"`
	Role    string   `firestore:"role,omitempty" validate:"value in ['owner', 'admin', 'member']"`
	Tags    []string `firestore:"tags,omitempty"`
	Profile Profile  `firestore:"profile,omitempty"`
}

// OrgID returns the organisation holding the user, empty until the user is saved or read.
func (u *User) OrgID() string {
	ids := strings.Split(u.CollectionPath(), "/")
	if len(ids) != 3 {
		return ""
	}
	return ids[1]
}

// Required fields of a create through a form.
var (
	OrgRequired  = []string{"name"}
	UserRequired = []string{"email"}
)

// NewOrgDao creates the DAO of the orgs collection. Saved organisations get a
// trimmed name, the free plan and a creation date when missing.
func NewOrgDao(store repository.DocumentStore, opts ...dao.Option) *dao.Dao[*Org] {
	now := time.Now
	opts = append([]dao.Option{dao.WithBeforeSave(func(o *Org) *Org {
		o.Name = strings.TrimSpace(o.Name)
		if o.Plan == "" {
			o.Plan = PlanFree
		}
		if o.CreatedAt.IsZero() {
			o.CreatedAt = now().UTC()
		}
		return o
	})}, opts...)
	return dao.New(store, OrgsTemplate, func() *Org { return &Org{} }, opts...)
}

// NewUserDao creates the DAO of the users of every organisation. Saved users get
// a lower case email and the member role when missing.
func NewUserDao(store repository.DocumentStore, opts ...dao.Option) *dao.Dao[*User] {
	opts = append([]dao.Option{dao.WithBeforeSave(func(u *User) *User {
		u.Email = strings.ToLower(strings.TrimSpace(u.Email))
		if u.Role == "" {
			u.Role = "member"
		}
		return u
	})}, opts...)
	return dao.New(store, UsersTemplate, func() *User { return &User{} }, opts...)
}
